package invoker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/common/metrics"
	"grading_system/invoker/compiler"
	"grading_system/invoker/grader"
	_ "grading_system/invoker/scripts"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestInvoker(t *testing.T, sandboxes int) *Invoker {
	dir := t.TempDir()
	graderConfig := &config.GraderConfig{
		SandboxType:           "simple",
		SandboxHomePath:       filepath.Join(dir, "sandbox"),
		CachePath:             filepath.Join(dir, "cache"),
		CacheSize:             1 << 30,
		CompilerConfigsFolder: "../configs/compiler",
		Sandboxes:             sandboxes,
	}
	config.FillInGraderConfig(graderConfig)

	i, err := NewInvoker(graderConfig, metrics.NewCollector())
	require.NoError(t, err)
	return i
}

func TestSandboxPool(t *testing.T) {
	i := newTestInvoker(t, 2)

	first, err := i.NewSandbox(context.Background())
	require.NoError(t, err)
	second, err := i.NewSandbox(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Dir(), second.Dir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = i.NewSandbox(ctx)
	require.Error(t, err)

	second.Delete()
	third, err := i.NewSandbox(context.Background())
	require.NoError(t, err)
	third.Delete()
	first.Delete()
	require.Len(t, i.slots, 2)
}

func TestCompileSubmission(t *testing.T) {
	i := newTestInvoker(t, 2)

	submission, release, err := i.CompileSubmission(context.Background(), "sh", []byte("cat\n"))
	require.NoError(t, err)
	defer release()
	require.Equal(t, "sh", submission.Language)
	require.FileExists(t, submission.Binary)

	_, release, err = i.CompileSubmission(context.Background(), "sh", []byte("if then\n"))
	defer release()
	var compileErr *compiler.CompileError
	require.True(t, errors.As(err, &compileErr), "expected compile error, got %v", err)

	_, release, err = i.CompileSubmission(context.Background(), "brainfuck", nil)
	defer release()
	require.Error(t, err)
}

func TestGrade(t *testing.T) {
	i := newTestInvoker(t, 2)
	problem, err := config.ParseProblemConfig([]byte("time_limit: 1s\ncustom_judge: echo\n"), t.TempDir(), i.Config)
	require.NoError(t, err)

	submission, release, err := i.CompileSubmission(context.Background(), "sh", []byte("cat\n"))
	require.NoError(t, err)
	defer release()

	results := i.Grade(context.Background(), problem, submission, []*grader.TestCase{
		{Position: 1, InputData: []byte("a\n"), Points: 4},
		{Position: 2, InputData: []byte("b c\n"), Points: 6},
	})
	require.Len(t, results, 2)
	for _, res := range results {
		require.Equal(t, verdict.AC, res.Flag, res.Feedback)
	}
	require.Equal(t, 6, results[1].Points)

	require.Equal(t, 2.0, testutil.ToFloat64(i.Metrics.GradedCases.WithLabelValues(grader.StrategyScript, "AC")))
	require.Equal(t, 10.0, testutil.ToFloat64(i.Metrics.AwardedPoints.WithLabelValues(grader.StrategyScript)))
	require.Len(t, i.slots, 2)
}

func TestGradeInvalidProblem(t *testing.T) {
	i := newTestInvoker(t, 2)
	problem, err := config.ParseProblemConfig([]byte("time_limit: 1s\ncustom_judge: missing_routine\n"), t.TempDir(), i.Config)
	require.NoError(t, err)

	submission, release, err := i.CompileSubmission(context.Background(), "sh", []byte("cat\n"))
	require.NoError(t, err)
	defer release()

	results := i.Grade(context.Background(), problem, submission, []*grader.TestCase{{Points: 3}, {Points: 4}})
	require.Len(t, results, 2)
	for _, res := range results {
		require.Equal(t, verdict.IE, res.Flag)
		require.Zero(t, res.Points)
	}
}
