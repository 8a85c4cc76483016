package convention

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"

	"grading_system/common/constants/verdict"
)

const PartialExitCode = 7

// PartialParser reads awarded points from interactor stderr
type PartialParser func(stderr []byte, casePoints int) (int, error)

// ExitCodeConvention is a table driven convention. Built-in conventions are defined with it,
// contrib ones may be too.
type ExitCodeConvention struct {
	name string
	// nullOutput inserts /dev/null between input and judge as testlib interactors expect output file there
	nullOutput bool
	codes      map[int]verdict.Flag
	partial    PartialParser
}

func NewExitCodeConvention(
	name string,
	nullOutput bool,
	codes map[int]verdict.Flag,
	partial PartialParser,
) *ExitCodeConvention {
	return &ExitCodeConvention{
		name:       name,
		nullOutput: nullOutput,
		codes:      codes,
		partial:    partial,
	}
}

var (
	Default = NewExitCodeConvention(
		"default",
		false,
		map[int]verdict.Flag{0: verdict.AC, 1: verdict.WA},
		nil,
	)

	Testlib = NewExitCodeConvention(
		"testlib",
		true,
		map[int]verdict.Flag{0: verdict.AC, 1: verdict.WA, 2: verdict.PE, 3: verdict.IE},
		parseTestlibPoints,
	)

	Coci = NewExitCodeConvention(
		"coci",
		false,
		map[int]verdict.Flag{0: verdict.AC, 1: verdict.WA, 2: verdict.PE, 3: verdict.IE},
		parseCociPartial,
	)
)

func (c *ExitCodeConvention) Name() string {
	return c.name
}

func (c *ExitCodeConvention) Args(input string, judge string) []string {
	if c.nullOutput {
		return []string{input, "/dev/null", judge}
	}
	return []string{input, judge}
}

func (c *ExitCodeConvention) Classify(exitCode int, stderr []byte, casePoints int) *Outcome {
	if exitCode == PartialExitCode && c.partial != nil {
		points, err := c.partial(stderr, casePoints)
		if err != nil {
			return internalError("%s interactor returned invalid partial score: %v", c.name, err)
		}
		return &Outcome{
			Flag:     verdict.PARTIAL,
			Points:   points,
			Feedback: firstLine(stderr),
		}
	}

	flag, ok := c.codes[exitCode]
	if !ok {
		return internalError("%s interactor exited with unexpected code %d", c.name, exitCode)
	}

	outcome := &Outcome{Flag: flag}
	switch flag {
	case verdict.AC:
		outcome.Points = casePoints
	case verdict.IE:
		outcome.Feedback = "interactor reported failure: " + firstLine(stderr)
		return outcome
	}
	outcome.Feedback = firstLine(stderr)
	return outcome
}

var (
	testlibPointsRegexp = regexp.MustCompile(`^points ([-+]?\d*\.?\d+)`)
	cociPartialRegexp   = regexp.MustCompile(`^partial (\d+)/(\d+)`)
)

func parseTestlibPoints(stderr []byte, casePoints int) (int, error) {
	match := testlibPointsRegexp.FindSubmatch(stderr)
	if match == nil {
		return 0, fmt.Errorf("stderr %q does not start with points", truncate(stderr))
	}
	points, err := strconv.ParseFloat(string(match[1]), 64)
	if err != nil {
		return 0, err
	}
	if points < 0 || points > float64(casePoints) {
		return 0, fmt.Errorf("points %v must be between 0 and %d", points, casePoints)
	}
	return int(math.Floor(points)), nil
}

func parseCociPartial(stderr []byte, casePoints int) (int, error) {
	match := cociPartialRegexp.FindSubmatch(stderr)
	if match == nil {
		return 0, fmt.Errorf("stderr %q does not start with partial X/Y", truncate(stderr))
	}
	num, okNum := new(big.Int).SetString(string(match[1]), 10)
	den, okDen := new(big.Int).SetString(string(match[2]), 10)
	if !okNum || !okDen {
		return 0, fmt.Errorf("can not parse partial score %s/%s", match[1], match[2])
	}
	if den.Sign() == 0 {
		return 0, fmt.Errorf("partial score denominator is zero")
	}
	if num.Cmp(den) > 0 {
		return 0, fmt.Errorf("partial score %s/%s is greater than one", num, den)
	}
	points := new(big.Int).Mul(big.NewInt(int64(casePoints)), num)
	points.Quo(points, den)
	return int(points.Int64()), nil
}
