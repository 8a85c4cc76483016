package convention

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"grading_system/common/constants/verdict"
)

var ErrUnknownConvention = errors.New("unknown interactor convention")

// Convention describes how an interactor is called and how its exit status is read
type Convention interface {
	Name() string
	// Args returns interactor arguments for test input and judge answer files
	Args(input string, judge string) []string
	// Classify turns interactor exit code and stderr into a verdict for a case worth casePoints
	Classify(exitCode int, stderr []byte, casePoints int) *Outcome
}

type Outcome struct {
	Flag     verdict.Flag
	Points   int
	Feedback string
}

var (
	mutex       sync.RWMutex
	conventions = make(map[string]Convention)
)

func init() {
	MustRegister(Default)
	MustRegister(Testlib)
	MustRegister(Coci)
}

// Register adds contrib convention. Names are unique.
func Register(c Convention) error {
	mutex.Lock()
	defer mutex.Unlock()
	if _, ok := conventions[c.Name()]; ok {
		return fmt.Errorf("interactor convention %s is already registered", c.Name())
	}
	conventions[c.Name()] = c
	return nil
}

func MustRegister(c Convention) {
	if err := Register(c); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Convention, error) {
	mutex.RLock()
	defer mutex.RUnlock()
	c, ok := conventions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConvention, name)
	}
	return c, nil
}

func Names() []string {
	mutex.RLock()
	defer mutex.RUnlock()
	names := make([]string, 0, len(conventions))
	for name := range conventions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func internalError(format string, values ...any) *Outcome {
	return &Outcome{
		Flag:     verdict.IE,
		Feedback: fmt.Sprintf(format, values...),
	}
}

const maxFeedbackLength = 256

// firstLine is shown to the user, the full stderr goes to extended feedback
func firstLine(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(s) > maxFeedbackLength {
		s = s[:maxFeedbackLength]
	}
	return s
}

func truncate(data []byte) string {
	if len(data) > maxFeedbackLength {
		data = data[:maxFeedbackLength]
	}
	return string(data)
}
