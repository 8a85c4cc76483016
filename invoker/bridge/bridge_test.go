package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/invoker/convention"
	"grading_system/invoker/sandbox"
	"grading_system/invoker/sandbox/simple"
	"grading_system/lib/customfields"

	"github.com/stretchr/testify/require"
)

type testFactory struct {
	home    string
	created atomic.Int64
}

func (f *testFactory) newSandbox(context.Context) (sandbox.ISandbox, error) {
	id := f.created.Add(1)
	return simple.NewSandbox(filepath.Join(f.home, strconv.FormatInt(id, 10)))
}

func writeScript(t *testing.T, dir string, name string, body string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func limits(timeLimit string, wallTimeLimit string) config.RunLimitsConfig {
	l := config.RunLimitsConfig{MaxThreads: -1}
	l.TimeLimit.FromStr(timeLimit)
	l.WallTimeLimit.FromStr(wallTimeLimit)
	l.MemoryLimit.FromStr("256m")
	l.FillIn()
	return l
}

func newRequest(t *testing.T, conv convention.Convention, interactor string, submission string) *Request {
	dir := t.TempDir()
	factory := &testFactory{home: filepath.Join(dir, "sandbox")}
	return &Request{
		Convention: conv,
		Interactor: Endpoint{
			Binary: writeScript(t, dir, "interactor", interactor),
			Limits: limits("2s", "5s"),
		},
		Submission: Endpoint{
			Binary: writeScript(t, dir, "submission", submission),
			Limits: limits("1s", "3s"),
		},
		InputData:  []byte("21\n"),
		JudgeData:  []byte("42\n"),
		CasePoints: 100,
		NewSandbox: factory.newSandbox,
		LoggerData: t.Name(),
	}
}

const doublingInteractor = `read n < "$1"
echo "$n"
read reply
if [ "$reply" = "$(cat "$2")" ]; then
	echo "ok" >&2
	exit 0
fi
echo "expected $(cat "$2"), found $reply" >&2
exit 1`

func TestInteraction(t *testing.T) {
	outcome := Run(context.Background(), newRequest(t, convention.Default, doublingInteractor, `read x; echo $((x * 2))`))
	require.Equal(t, verdict.AC, outcome.Result.Flag, outcome.Result.ExtendedFeedback)
	require.Equal(t, 100, outcome.Result.Points)
	require.Equal(t, "ok\n", string(outcome.InteractorStderr))

	outcome = Run(context.Background(), newRequest(t, convention.Default, doublingInteractor, `read x; echo $((x * 3))`))
	require.Equal(t, verdict.WA, outcome.Result.Flag)
	require.Zero(t, outcome.Result.Points)
	require.Equal(t, "expected 42, found 63", outcome.Result.Feedback)
}

func TestConventionArguments(t *testing.T) {
	interactor := `[ "$2" = /dev/null ] || exit 3
[ "$(cat "$3")" = 42 ] || exit 3
echo "points 45" >&2
exit 7`
	outcome := Run(context.Background(), newRequest(t, convention.Testlib, interactor, `exit 0`))
	require.Equal(t, verdict.PARTIAL, outcome.Result.Flag, outcome.Result.Feedback)
	require.Equal(t, 45, outcome.Result.Points)

	outcome = Run(context.Background(), newRequest(t, convention.Coci, `echo "partial 1/4" >&2; exit 7`, `exit 0`))
	require.Equal(t, verdict.PARTIAL, outcome.Result.Flag)
	require.Equal(t, 25, outcome.Result.Points)

	request := newRequest(t, convention.Coci, `echo "partial 1/4" >&2; exit 7`, `exit 0`)
	request.CasePoints = 80
	outcome = Run(context.Background(), request)
	require.Equal(t, verdict.PARTIAL, outcome.Result.Flag)
	require.Equal(t, 20, outcome.Result.Points)

	outcome = Run(context.Background(), newRequest(t, convention.Default, `exit 5`, `exit 0`))
	require.Equal(t, verdict.IE, outcome.Result.Flag)
}

func TestSubmissionWallTimeUnblocksInteractor(t *testing.T) {
	request := newRequest(t, convention.Default, `read x; exit 1`, `sleep 30`)
	request.Submission.Limits = limits("1s", "500ms")
	request.Interactor.Limits = limits("20s", "20s")

	start := time.Now()
	outcome := Run(context.Background(), request)
	require.Less(t, time.Since(start), 10*time.Second)

	require.True(t, outcome.Result.Flag.Has(verdict.TLE), outcome.Result.Flag.String())
	require.True(t, outcome.Result.Flag.Has(verdict.WA))
	require.Zero(t, outcome.Result.Points)
	require.Equal(t, 1, outcome.Interactor.Statistics.ExitCode)
}

func TestInteractorExitUnblocksSubmission(t *testing.T) {
	request := newRequest(t, convention.Default, `exit 0`, `read x; exit 0`)
	request.Submission.Limits = limits("1s", "20s")

	start := time.Now()
	outcome := Run(context.Background(), request)
	require.Less(t, time.Since(start), 10*time.Second)
	require.Equal(t, verdict.AC, outcome.Result.Flag)
}

func TestSubmissionClosesInputEarly(t *testing.T) {
	outcome := Run(context.Background(), newRequest(t, convention.Default, `sleep 0.5; echo 5; read x; exit 1`, `exit 0`))
	require.Equal(t, int(syscall.SIGPIPE), outcome.Interactor.Statistics.Signal)
	require.Equal(t, verdict.WA, outcome.Result.Flag)
	require.Equal(t, "submission closed its input", outcome.Result.Feedback)
	require.Zero(t, outcome.Result.Points)
}

func TestInteractorTimeLimit(t *testing.T) {
	request := newRequest(t, convention.Default, `sleep 30`, `exit 0`)
	request.Interactor.Limits = limits("1s", "500ms")

	outcome := Run(context.Background(), request)
	require.Equal(t, verdict.IE, outcome.Result.Flag)
}

func TestMissingBinary(t *testing.T) {
	request := newRequest(t, convention.Default, `exit 0`, `exit 0`)
	request.Interactor.Binary = filepath.Join(t.TempDir(), "missing")

	outcome := Run(context.Background(), request)
	require.Equal(t, verdict.IE, outcome.Result.Flag)
	require.Nil(t, outcome.Interactor)
}

func runResult(v verdict.Flag, exitCode int, signal int) *sandbox.RunResult {
	return &sandbox.RunResult{
		Verdict: v,
		Statistics: &sandbox.Statistics{
			ExitCode: exitCode,
			Signal:   signal,
			Time:     customfields.Time(time.Millisecond),
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		interactor  *sandbox.RunResult
		submission  *sandbox.RunResult
		stderr      string
		exitedFirst bool
		flag        verdict.Flag
		points      int
	}{
		{"accepted", runResult(verdict.AC, 0, 0), runResult(verdict.AC, 0, 0), "", false, verdict.AC, 10},
		{"partial", runResult(verdict.RTE, 7, 0), runResult(verdict.AC, 0, 0), "points 4", false, verdict.PARTIAL, 4},
		{"partial and tle", runResult(verdict.RTE, 7, 0), runResult(verdict.TLE, 0, 9), "points 4", false, verdict.TLE, 0},
		{"accepted but rte", runResult(verdict.AC, 0, 0), runResult(verdict.RTE, 1, 0), "", true, verdict.RTE, 0},
		{"wa and mle", runResult(verdict.RTE, 1, 0), runResult(verdict.MLE, 0, 9), "", false, verdict.WA | verdict.MLE, 0},
		{"unmapped", runResult(verdict.RTE, 9, 0), runResult(verdict.AC, 0, 0), "", false, verdict.IE, 0},
		{"interactor tle", runResult(verdict.TLE, 0, 9), runResult(verdict.AC, 0, 0), "", true, verdict.IE, 0},
		{"interactor signal", runResult(verdict.RTE, -1, int(syscall.SIGSEGV)), runResult(verdict.AC, 0, 0), "", true, verdict.IE, 0},
		{
			"interactor broken pipe after submission tle",
			runResult(verdict.RTE, -1, int(syscall.SIGPIPE)),
			runResult(verdict.TLE, 0, 9),
			"", false, verdict.TLE, 0,
		},
		{
			"interactor broken pipe after submission exit",
			runResult(verdict.RTE, -1, int(syscall.SIGPIPE)),
			runResult(verdict.AC, 0, 0),
			"", true, verdict.WA, 0,
		},
		{
			"interactor broken pipe while submission runs",
			runResult(verdict.RTE, -1, int(syscall.SIGPIPE)),
			runResult(verdict.AC, 0, 0),
			"", false, verdict.IE, 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(convention.Testlib, 10, tt.interactor, tt.submission, []byte(tt.stderr), tt.exitedFirst)
			require.Equal(t, tt.flag, res.Flag)
			require.Equal(t, tt.points, res.Points)
			require.Equal(t, time.Millisecond, res.Time.Duration())
		})
	}
}
