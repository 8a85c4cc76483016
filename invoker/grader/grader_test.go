package grader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/invoker/compiler"
	"grading_system/invoker/interaction"
	"grading_system/invoker/result"
	"grading_system/invoker/sandbox"
	"grading_system/invoker/sandbox/simple"

	"github.com/stretchr/testify/require"
)

func init() {
	MustRegister("test_compare", Routine{Grade: func(ctx context.Context, tc *TestCase, program *Program) (*result.Result, error) {
		if string(program.Execution.Output) == string(tc.OutputData) {
			return result.Accepted(tc.Points), nil
		}
		return result.Wrong("output differs"), nil
	}})
	MustRegister("test_rerun", Routine{Grade: func(ctx context.Context, tc *TestCase, program *Program) (*result.Result, error) {
		execution, err := program.Run(ctx, []byte("second\n"))
		if err != nil {
			return nil, err
		}
		if string(execution.Output) != "second\n" {
			return result.Wrong("rerun output differs"), nil
		}
		return result.Accepted(tc.Points), nil
	}})
	MustRegister("test_panic", Routine{Grade: func(context.Context, *TestCase, *Program) (*result.Result, error) {
		panic("author bug")
	}})
	MustRegister("test_double", Routine{Interact: func(ctx context.Context, tc *TestCase, it *interaction.Interactor) (Outcome, error) {
		if err := it.WriteLine(21); err != nil {
			return Outcome{}, err
		}
		v, err := it.ReadInt(interaction.IntRange(0, 100))
		if err != nil {
			return Outcome{}, err
		}
		return Bool(v == 42), nil
	}})
	MustRegister("test_ignore_failure", Routine{Interact: func(ctx context.Context, tc *TestCase, it *interaction.Interactor) (Outcome, error) {
		it.ReadInt()
		return Bool(true), nil
	}})
	MustRegister("test_custom", Routine{Interact: func(ctx context.Context, tc *TestCase, it *interaction.Interactor) (Outcome, error) {
		line, err := it.ReadLine(true)
		if err != nil {
			return Outcome{}, err
		}
		points, _ := strconv.Atoi(line)
		return Custom(&result.Result{Flag: verdict.PARTIAL, Points: points, Feedback: "partial"}), nil
	}})
	MustRegister("test_interact_error", Routine{Interact: func(context.Context, *TestCase, *interaction.Interactor) (Outcome, error) {
		return Outcome{}, errors.New("author routine failed")
	}})
}

type testFactory struct {
	home    string
	created atomic.Int64
}

func (f *testFactory) newSandbox(context.Context) (sandbox.ISandbox, error) {
	id := f.created.Add(1)
	return simple.NewSandbox(filepath.Join(f.home, strconv.FormatInt(id, 10)))
}

func newTestEnvironment(t *testing.T) *Environment {
	dir := t.TempDir()
	graderConfig := &config.GraderConfig{
		SandboxHomePath:       filepath.Join(dir, "sandbox"),
		CachePath:             filepath.Join(dir, "cache"),
		CacheSize:             1 << 30,
		CompilerConfigsFolder: "../../configs/compiler",
	}
	config.FillInGraderConfig(graderConfig)

	factory := &testFactory{home: graderConfig.SandboxHomePath}
	c, err := compiler.NewCompiler(graderConfig, factory.newSandbox)
	require.NoError(t, err)
	return &Environment{
		Config:     graderConfig,
		Compiler:   c,
		NewSandbox: factory.newSandbox,
	}
}

type problemFile struct {
	name    string
	content string
}

func newTestProblem(t *testing.T, env *Environment, content string, files ...problemFile) *config.ProblemConfig {
	dir := t.TempDir()
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.name), []byte(f.content), 0644))
	}
	problem, err := config.ParseProblemConfig([]byte(content), dir, env.Config)
	require.NoError(t, err)
	return problem
}

func newScriptSubmission(t *testing.T, body string) *Submission {
	path := filepath.Join(t.TempDir(), "submission")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return &Submission{Language: "sh", Binary: path}
}

func grade(t *testing.T, problem *config.ProblemConfig, submission *Submission, env *Environment, tc *TestCase) *result.Result {
	g, err := New(problem, submission, env)
	require.NoError(t, err)
	return g.Grade(context.Background(), tc)
}

func customJudge(name string) string {
	return fmt.Sprintf("time_limit: 1s\ncustom_judge: %s\n", name)
}

func TestScriptGrader(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, customJudge("test_compare"))
	tc := &TestCase{InputData: []byte("hello\n"), OutputData: []byte("hello\n"), Points: 10}

	g, err := New(problem, newScriptSubmission(t, "cat"), env)
	require.NoError(t, err)
	require.Equal(t, StrategyScript, g.Strategy())
	res := g.Grade(context.Background(), tc)
	require.Equal(t, verdict.AC, res.Flag)
	require.Equal(t, 10, res.Points)
	require.True(t, res.HideOutput)
	require.Equal(t, "hello\n", string(res.ProcOutput))

	res = grade(t, problem, newScriptSubmission(t, "echo bye"), env, tc)
	require.Equal(t, verdict.WA, res.Flag)
	require.Zero(t, res.Points)
	require.False(t, res.HideOutput)
	require.Equal(t, "bye\n", string(res.ProcOutput))
}

func TestScriptGraderRerun(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, customJudge("test_rerun"))

	res := grade(t, problem, newScriptSubmission(t, "cat"), env, &TestCase{InputData: []byte("first\n"), Points: 3})
	require.Equal(t, verdict.AC, res.Flag)
	require.Equal(t, 3, res.Points)
	require.Equal(t, "first\n", string(res.ProcOutput))
}

func TestScriptGraderResourceFailure(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, "time_limit: 200ms\ncustom_judge: test_panic\n")

	start := time.Now()
	res := grade(t, problem, newScriptSubmission(t, "sleep 10"), env, &TestCase{Points: 10, WallTimeFactor: 2})
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, verdict.TLE, res.Flag)
	require.Zero(t, res.Points)

	res = grade(t, problem, newScriptSubmission(t, "exit 3"), env, &TestCase{Points: 10})
	require.Equal(t, verdict.RTE, res.Flag)
}

func TestPanicIsInternalError(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, customJudge("test_panic"))

	res := grade(t, problem, newScriptSubmission(t, "cat"), env, &TestCase{Points: 10})
	require.Equal(t, verdict.IE, res.Flag)
	require.Zero(t, res.Points)
	require.Contains(t, res.ExtendedFeedback, "author bug")
}

func TestInteractiveSession(t *testing.T) {
	env := newTestEnvironment(t)
	tc := &TestCase{Points: 7}

	problem := newTestProblem(t, env, customJudge("test_double"))
	g, err := New(problem, newScriptSubmission(t, `read x; echo $((x * 2))`), env)
	require.NoError(t, err)
	require.Equal(t, StrategyInteractive, g.Strategy())
	res := g.Grade(context.Background(), tc)
	require.Equal(t, verdict.AC, res.Flag, res.Feedback)
	require.Equal(t, 7, res.Points)
	require.True(t, res.HideOutput)

	res = grade(t, problem, newScriptSubmission(t, `read x; echo $((x * 3))`), env, tc)
	require.Equal(t, verdict.WA, res.Flag)
	require.Zero(t, res.Points)

	problem = newTestProblem(t, env, customJudge("test_custom"))
	res = grade(t, problem, newScriptSubmission(t, `echo 3`), env, tc)
	require.Equal(t, verdict.PARTIAL, res.Flag)
	require.Equal(t, 3, res.Points)
	require.Equal(t, "partial", res.Feedback)
	require.False(t, res.HideOutput)

	res = grade(t, problem, newScriptSubmission(t, `echo 500`), env, tc)
	require.Equal(t, 7, res.Points)
}

func TestInteractiveProtocolError(t *testing.T) {
	env := newTestEnvironment(t)
	tc := &TestCase{Points: 7}

	problem := newTestProblem(t, env, customJudge("test_double"))
	res := grade(t, problem, newScriptSubmission(t, `read x; echo foo`), env, tc)
	require.Equal(t, verdict.WA, res.Flag)
	require.Contains(t, res.Feedback, "foo")

	res = grade(t, problem, newScriptSubmission(t, `read x; echo 1000`), env, tc)
	require.Equal(t, verdict.WA, res.Flag)

	problem = newTestProblem(t, env, customJudge("test_ignore_failure"))
	res = grade(t, problem, newScriptSubmission(t, `echo foo`), env, tc)
	require.Equal(t, verdict.WA, res.Flag)

	problem = newTestProblem(t, env, customJudge("test_interact_error"))
	res = grade(t, problem, newScriptSubmission(t, `exit 0`), env, tc)
	require.Equal(t, verdict.IE, res.Flag)
}

func TestProtocolErrorStopsSubmission(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, customJudge("test_double"))

	start := time.Now()
	res := grade(t, problem, newScriptSubmission(t, `read x; echo foo; sleep 30`), env, &TestCase{Points: 7, WallTimeFactor: 10})
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, verdict.WA, res.Flag, res.Flag.String())
	require.Zero(t, res.Points)
	require.Contains(t, res.Feedback, "foo")

	start = time.Now()
	res = grade(t, problem, newScriptSubmission(t, `read x; echo 5; sleep 30`), env, &TestCase{Points: 7, WallTimeFactor: 10})
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, verdict.WA, res.Flag, res.Flag.String())
}

func TestInteractiveWallTime(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, "time_limit: 200ms\ncustom_judge: test_double\n")

	start := time.Now()
	res := grade(t, problem, newScriptSubmission(t, `sleep 30`), env, &TestCase{Points: 7, WallTimeFactor: 2})
	require.Less(t, time.Since(start), 10*time.Second)
	require.True(t, res.Flag.Has(verdict.TLE), res.Flag.String())
	require.True(t, res.Flag.Has(verdict.WA))
	require.Zero(t, res.Points)
}

const doublingInteractor = `#!/bin/sh
read n < "$1"
echo "$n"
read reply
[ "$reply" = "$(cat "$2")" ] || exit 1
`

func TestBridgedGrader(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, `
time_limit: 1s
interactive:
  files: interactor.sh
  lang: sh
  preprocessing_time: 1s
`, problemFile{"interactor.sh", doublingInteractor})
	tc := &TestCase{InputData: []byte("21\n"), OutputData: []byte("42\n"), Points: 10}

	g, err := New(problem, newScriptSubmission(t, `read x; echo $((x * 2))`), env)
	require.NoError(t, err)
	require.Equal(t, StrategyBridged, g.Strategy())
	res := g.Grade(context.Background(), tc)
	require.Equal(t, verdict.AC, res.Flag, res.Feedback)
	require.Equal(t, 10, res.Points)

	res = grade(t, problem, newScriptSubmission(t, `read x; echo 0`), env, tc)
	require.Equal(t, verdict.WA, res.Flag)
}

func TestBridgedInteractorCompileError(t *testing.T) {
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, `
time_limit: 1s
interactive:
  files: interactor.sh
  lang: sh
`, problemFile{"interactor.sh", "if then ("})

	res := grade(t, problem, newScriptSubmission(t, `exit 0`), env, &TestCase{Points: 10})
	require.Equal(t, verdict.IE, res.Flag)
	require.Equal(t, "interactor compilation error", res.Feedback)
	require.NotEmpty(t, res.ExtendedFeedback)
}

const signatureEntry = `#include <cstdio>
#include "header.h"
int main() {
	int n;
	scanf("%d", &n);
	puts(is_valid(n) ? "correct" : "wrong");
}
`

func TestSignatureGrader(t *testing.T) {
	if _, err := exec.LookPath("g++"); err != nil {
		t.Skip("g++ is not available")
	}
	env := newTestEnvironment(t)
	problem := newTestProblem(t, env, `
time_limit: 2s
signature_grader:
  entry: entry.cpp
  header: header.h
`, problemFile{"entry.cpp", signatureEntry}, problemFile{"header.h", "#pragma once\nbool is_valid(int);\n"})
	tc := &TestCase{InputData: []byte("5"), OutputData: []byte("correct\n"), Points: 10}

	submission := &Submission{Language: "cpp", Source: []byte("#include \"header.h\"\nbool is_valid(int n) { return n == 5; }\n")}
	g, err := New(problem, submission, env)
	require.NoError(t, err)
	require.Equal(t, StrategySignature, g.Strategy())
	res := g.Grade(context.Background(), tc)
	require.Equal(t, verdict.AC, res.Flag, res.ExtendedFeedback)
	require.Equal(t, 10, res.Points)

	submission.Source = []byte("bool is_valid(int n) { return n == 4; }\nint main() { return 0; }\n")
	res = grade(t, problem, submission, env, tc)
	require.Equal(t, verdict.WA, res.Flag)

	submission.Source = []byte("bool is_valid(int n) { return n == 5 }\n")
	res = grade(t, problem, submission, env, tc)
	require.Equal(t, verdict.IE, res.Flag)
	require.Contains(t, res.ExtendedFeedback, "error")
}

func TestNew(t *testing.T) {
	env := newTestEnvironment(t)

	problem := newTestProblem(t, env, customJudge("test_compare"))
	_, err := New(problem, &Submission{}, env)
	require.Error(t, err)

	problem = newTestProblem(t, env, customJudge("missing_routine"))
	_, err = New(problem, newScriptSubmission(t, "cat"), env)
	require.ErrorIs(t, err, ErrUnknownRoutine)

	problem.CustomJudge = nil
	_, err = New(problem, newScriptSubmission(t, "cat"), env)
	require.ErrorIs(t, err, config.ErrNoStrategy)
}

func TestRegister(t *testing.T) {
	require.Error(t, Register("test_invalid", Routine{}))
	require.Error(t, Register("test_compare", Routine{Grade: func(context.Context, *TestCase, *Program) (*result.Result, error) {
		return nil, nil
	}}))
	require.Contains(t, Routines(), "test_double")
}

func TestOutcome(t *testing.T) {
	require.Equal(t, result.Accepted(5), Bool(true).normalize(5))
	require.Equal(t, verdict.WA, Bool(false).normalize(5).Flag)
	custom := &result.Result{Flag: verdict.WA | verdict.PE}
	require.Same(t, custom, Custom(custom).normalize(5))
	require.Equal(t, verdict.IE, Custom(nil).normalize(5).Flag)
}
