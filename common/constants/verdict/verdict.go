package verdict

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Flag is a set of verdict bits. A single test case may carry several of them,
// e.g. WA|TLE when the interaction failed because the submission was killed.
type Flag uint16

const (
	AC Flag = 0 // Accepted

	WA      Flag = 1 << 0 // Wrong answer
	PE      Flag = 1 << 1 // Presentation error
	IE      Flag = 1 << 2 // Internal error
	RTE     Flag = 1 << 3 // Runtime error
	TLE     Flag = 1 << 4 // Time limit (cpu or wall)
	MLE     Flag = 1 << 5 // Memory limit
	OLE     Flag = 1 << 6 // Output limit
	PARTIAL Flag = 1 << 7 // Partial score
)

// Bits in the order they are shown to the user. The first set bit is the primary verdict.
var priority = []Flag{IE, TLE, MLE, OLE, RTE, PE, WA, PARTIAL}

var names = map[Flag]string{
	AC:      "AC",
	WA:      "WA",
	PE:      "PE",
	IE:      "IE",
	RTE:     "RTE",
	TLE:     "TLE",
	MLE:     "MLE",
	OLE:     "OLE",
	PARTIAL: "PARTIAL",
}

// ResourceMask contains bits set by process supervision.
const ResourceMask = RTE | TLE | MLE | OLE

func (f Flag) Has(bits Flag) bool {
	return bits != 0 && f&bits == bits
}

// Failed reports whether the flag carries anything except AC and PARTIAL
func (f Flag) Failed() bool {
	return f&^PARTIAL != 0
}

// Primary returns the most significant bit of the flag
func (f Flag) Primary() Flag {
	for _, bit := range priority {
		if f&bit != 0 {
			return bit
		}
	}
	return AC
}

// Bits returns every set bit in display order
func (f Flag) Bits() []Flag {
	if f == AC {
		return []Flag{AC}
	}
	var bits []Flag
	for _, bit := range priority {
		if f&bit != 0 {
			bits = append(bits, bit)
		}
	}
	return bits
}

func (f Flag) String() string {
	bits := f.Bits()
	parts := make([]string, 0, len(bits))
	for _, bit := range bits {
		parts = append(parts, names[bit])
	}
	return strings.Join(parts, "|")
}

func Parse(s string) (Flag, error) {
	var f Flag
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for bit, name := range names {
			if name == part {
				f |= bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown verdict %s", part)
		}
	}
	return f, nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
