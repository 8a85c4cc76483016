package customfields

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// splitValue splits "256m" into 256 and "m", the unit is lower cased
func splitValue(s string) (uint64, string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	if end == 0 {
		return 0, "", fmt.Errorf("value %q does not start with a number", s)
	}
	number, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return number, s[end:], nil
}
