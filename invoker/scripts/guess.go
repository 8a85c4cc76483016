package scripts

import (
	"context"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"grading_system/invoker/grader"
	"grading_system/invoker/interaction"
	"grading_system/invoker/result"
)

// Guess plays higher or lower with the submission.
// Case input is "n x": the submission gets n and must find 1 <= x <= n, it has bits.Len(n) guesses.
// Every guess is answered with HIGHER, LOWER or OK.
func Guess(ctx context.Context, tc *grader.TestCase, it *interaction.Interactor) (grader.Outcome, error) {
	n, x, err := parseGuessCase(tc.InputData)
	if err != nil {
		return grader.Custom(result.InternalError("invalid test case", err.Error())), nil
	}

	err = it.WriteLine(n)
	if err != nil {
		return grader.Outcome{}, err
	}
	limit := bits.Len64(uint64(n))
	for guesses := 1; ; guesses++ {
		guess, err := it.ReadInt(interaction.IntRange(1, n))
		if err != nil {
			return grader.Outcome{}, err
		}
		switch {
		case guess == x:
			// the submission may stop without reading the reply
			it.WriteLine("OK")
			return grader.Bool(true), nil
		case guesses == limit:
			return grader.Custom(result.Wrong(fmt.Sprintf("number is not found in %d guesses", limit))), nil
		case guess < x:
			err = it.WriteLine("HIGHER")
		default:
			err = it.WriteLine("LOWER")
		}
		if err != nil {
			return grader.Outcome{}, err
		}
	}
}

func parseGuessCase(input []byte) (int64, int64, error) {
	fields := strings.Fields(string(input))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two numbers, got %d", len(fields))
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	x, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if n < 1 || x < 1 || x > n {
		return 0, 0, fmt.Errorf("hidden number %d is out of [1, %d]", x, n)
	}
	return n, x, nil
}
