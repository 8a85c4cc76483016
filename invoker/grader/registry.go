package grader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"grading_system/common/constants/verdict"
	"grading_system/invoker/interaction"
	"grading_system/invoker/result"
)

var ErrUnknownRoutine = errors.New("unknown grading routine")

// GradeFunc grades the case after the submission was run on its input, see Program.Execution.
// It may launch the submission again.
type GradeFunc func(ctx context.Context, tc *TestCase, program *Program) (*result.Result, error)

// InteractFunc talks to the running submission through the interactor
type InteractFunc func(ctx context.Context, tc *TestCase, it *interaction.Interactor) (Outcome, error)

// Routine is problem author code referenced by custom_judge, exactly one function is set
type Routine struct {
	Grade    GradeFunc
	Interact InteractFunc
}

var routines = struct {
	sync.RWMutex
	byName map[string]Routine
}{byName: make(map[string]Routine)}

func Register(name string, routine Routine) error {
	if (routine.Grade == nil) == (routine.Interact == nil) {
		return fmt.Errorf("routine %s must define exactly one of grade and interact", name)
	}
	routines.Lock()
	defer routines.Unlock()
	if _, ok := routines.byName[name]; ok {
		return fmt.Errorf("routine %s is already registered", name)
	}
	routines.byName[name] = routine
	return nil
}

func MustRegister(name string, routine Routine) {
	if err := Register(name, routine); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Routine, error) {
	routines.RLock()
	defer routines.RUnlock()
	routine, ok := routines.byName[name]
	if !ok {
		return Routine{}, fmt.Errorf("%w: %s", ErrUnknownRoutine, name)
	}
	return routine, nil
}

func Routines() []string {
	routines.RLock()
	defer routines.RUnlock()
	names := make([]string, 0, len(routines.byName))
	for name := range routines.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outcome is returned by interact routines: either pass/fail or a complete result
type Outcome struct {
	passed bool
	custom bool
	result *result.Result
}

// Bool makes full points AC if passed, zero points WA otherwise
func Bool(passed bool) Outcome {
	return Outcome{passed: passed}
}

// Custom passes the result through unchanged
func Custom(r *result.Result) Outcome {
	return Outcome{custom: true, result: r}
}

func (o Outcome) normalize(casePoints int) *result.Result {
	switch {
	case o.custom && o.result == nil:
		return result.InternalError("interact returned empty result", "")
	case o.custom:
		return o.result
	case o.passed:
		return result.Accepted(casePoints)
	default:
		return &result.Result{Flag: verdict.WA}
	}
}
