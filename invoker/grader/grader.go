// Package grader selects grading strategy of a problem and grades one test case at a time.
//
// Every strategy is driven through the same session: INIT, RUNNING, CLOSED, SCORED.
// Nothing escapes Grade, failures of the strategy, the submission or author routines
// are folded into the returned result.
package grader

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"runtime/debug"

	"grading_system/common/config"
	"grading_system/invoker/checker"
	"grading_system/invoker/compiler"
	"grading_system/invoker/convention"
	"grading_system/invoker/result"
	"grading_system/invoker/sandbox"
	"grading_system/lib/logger"
)

const (
	StrategyScript      = "script"
	StrategyInteractive = "interactive"
	StrategyBridged     = "bridged"
	StrategySignature   = "signature"
)

// TestCase is immutable, it is graded by exactly one session
type TestCase struct {
	Position   int
	InputData  []byte
	OutputData []byte
	Points     int

	// WallTimeFactor scales the problem time limit into wall time limit, grader default is used if zero
	WallTimeFactor float64
}

// Submission is the program under test.
// Binary is required by all strategies except signature grading, which compiles Source instead.
type Submission struct {
	Language string
	Source   []byte
	Binary   string
}

type Environment struct {
	Config     *config.GraderConfig
	Compiler   *compiler.Compiler
	NewSandbox sandbox.Factory

	// Rand generates rename tokens of signature grading, crypto/rand is used if nil
	Rand io.Reader
}

type Grader interface {
	Grade(ctx context.Context, tc *TestCase) *result.Result
	Strategy() string
}

type strategy interface {
	name() string
	run(ctx context.Context, s *session) *result.Result
}

type driver struct {
	strategy   strategy
	problem    *config.ProblemConfig
	submission *Submission
	env        *Environment
}

// New validates problem configuration and returns grader of its strategy
func New(problem *config.ProblemConfig, submission *Submission, env *Environment) (Grader, error) {
	err := problem.Validate()
	if err != nil {
		return nil, err
	}
	if env.Rand == nil {
		env.Rand = rand.Reader
	}

	d := &driver{
		problem:    problem,
		submission: submission,
		env:        env,
	}
	switch {
	case problem.CustomJudge != nil:
		d.strategy, err = newScriptStrategy(*problem.CustomJudge)
	case problem.Interactive != nil:
		d.strategy, err = newBridgedStrategy(problem)
	case problem.SignatureGrader != nil:
		d.strategy, err = newSignatureStrategy(problem, env)
	}
	if err != nil {
		return nil, err
	}

	if d.strategy.name() != StrategySignature && len(submission.Binary) == 0 {
		return nil, fmt.Errorf("%s grading requires compiled submission", d.strategy.name())
	}
	if d.strategy.name() == StrategySignature && len(submission.Language) == 0 {
		return nil, fmt.Errorf("signature grading requires submission language")
	}
	return d, nil
}

func newScriptStrategy(name string) (strategy, error) {
	routine, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if routine.Interact != nil {
		return &interactiveStrategy{interact: routine.Interact}, nil
	}
	return &scriptStrategy{grade: routine.Grade}, nil
}

func newBridgedStrategy(problem *config.ProblemConfig) (strategy, error) {
	conv, err := convention.Lookup(problem.Interactive.Type)
	if err != nil {
		return nil, err
	}
	return &bridgedStrategy{convention: conv}, nil
}

func newSignatureStrategy(problem *config.ProblemConfig, env *Environment) (strategy, error) {
	c, err := checker.New(problem, problem.SignatureGrader.Checker, &checker.Deps{
		Compiler:   env.Compiler,
		NewSandbox: env.NewSandbox,
		Limits:     env.Config.CheckerLimits,
	})
	if err != nil {
		return nil, err
	}
	return &signatureStrategy{checker: c}, nil
}

func (d *driver) Strategy() string {
	return d.strategy.name()
}

func (d *driver) Grade(ctx context.Context, tc *TestCase) (res *result.Result) {
	s := newSession(d, tc)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Grading panicked for %s: %v", s.loggerData, r)
			res = result.InternalError("grader failed", fmt.Sprintf("%v\n%s", r, debug.Stack()))
		}
		s.close()
		res = s.score(res)
	}()

	s.advance(stateRunning)
	return d.strategy.run(ctx, s)
}
