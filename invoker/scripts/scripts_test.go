package scripts

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/invoker/compiler"
	"grading_system/invoker/grader"
	"grading_system/invoker/result"
	"grading_system/invoker/sandbox"
	"grading_system/invoker/sandbox/simple"

	"github.com/stretchr/testify/require"
)

const binarySearch = `read n || exit 0
lo=1
hi=$n
while :; do
	mid=$(( (lo + hi) / 2 ))
	echo $mid
	read reply || exit 0
	case $reply in
	OK) exit 0 ;;
	HIGHER) lo=$((mid + 1)) ;;
	LOWER) hi=$((mid - 1)) ;;
	esac
done`

const linearSearch = `read n || exit 0
i=1
while :; do
	echo $i
	read reply || exit 0
	[ "$reply" = OK ] && exit 0
	i=$((i + 1))
done`

func gradeCase(t *testing.T, judge string, body string, tc *grader.TestCase) *result.Result {
	dir := t.TempDir()
	graderConfig := &config.GraderConfig{
		SandboxHomePath:       filepath.Join(dir, "sandbox"),
		CachePath:             filepath.Join(dir, "cache"),
		CacheSize:             1 << 30,
		CompilerConfigsFolder: "../../configs/compiler",
	}
	config.FillInGraderConfig(graderConfig)

	var created atomic.Int64
	newSandbox := func(context.Context) (sandbox.ISandbox, error) {
		return simple.NewSandbox(filepath.Join(graderConfig.SandboxHomePath, strconv.FormatInt(created.Add(1), 10)))
	}
	c, err := compiler.NewCompiler(graderConfig, newSandbox)
	require.NoError(t, err)
	env := &grader.Environment{Config: graderConfig, Compiler: c, NewSandbox: newSandbox}

	problem, err := config.ParseProblemConfig([]byte("time_limit: 1s\ncustom_judge: "+judge+"\n"), dir, graderConfig)
	require.NoError(t, err)

	binary := filepath.Join(dir, "submission")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	g, err := grader.New(problem, &grader.Submission{Language: "sh", Binary: binary}, env)
	require.NoError(t, err)
	return g.Grade(context.Background(), tc)
}

func TestEcho(t *testing.T) {
	tc := &grader.TestCase{InputData: []byte("1 2 3\nfour\n"), Points: 5}

	res := gradeCase(t, "echo", "cat", tc)
	require.Equal(t, verdict.AC, res.Flag, res.Feedback)
	require.Equal(t, 5, res.Points)

	res = gradeCase(t, "echo", "cat; echo extra", tc)
	require.Equal(t, verdict.WA, res.Flag)
	require.Zero(t, res.Points)
	require.Equal(t, "output is not the echo of input", res.Feedback)
}

func TestGuess(t *testing.T) {
	for _, x := range []int{1, 37, 100} {
		res := gradeCase(t, "guess", binarySearch, &grader.TestCase{InputData: []byte("100 " + strconv.Itoa(x) + "\n"), Points: 10})
		require.Equal(t, verdict.AC, res.Flag, "x = %d: %s", x, res.Feedback)
		require.Equal(t, 10, res.Points)
	}

	res := gradeCase(t, "guess", linearSearch, &grader.TestCase{InputData: []byte("100 50\n"), Points: 10})
	require.Equal(t, verdict.WA, res.Flag)
	require.Equal(t, "number is not found in 7 guesses", res.Feedback)

	res = gradeCase(t, "guess", `read n; echo 1000`, &grader.TestCase{InputData: []byte("100 50\n"), Points: 10})
	require.Equal(t, verdict.WA, res.Flag)
	require.Contains(t, res.Feedback, "out of range")

	res = gradeCase(t, "guess", binarySearch, &grader.TestCase{InputData: []byte("10 11\n"), Points: 10})
	require.Equal(t, verdict.IE, res.Flag)
}

func TestParseGuessCase(t *testing.T) {
	n, x, err := parseGuessCase([]byte(" 8\n3 "))
	require.NoError(t, err)
	require.Equal(t, int64(8), n)
	require.Equal(t, int64(3), x)

	for _, input := range []string{"", "5", "5 0", "a 1", "1 b", "3 4 5"} {
		_, _, err = parseGuessCase([]byte(input))
		require.Error(t, err, input)
	}
}
