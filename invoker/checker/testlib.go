package checker

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/invoker/compiler"
	"grading_system/invoker/result"
	"grading_system/invoker/sandbox"
	"grading_system/lib/logger"

	"golang.org/x/net/html/charset"
)

const (
	checkerBinaryFile  = "checker"
	testInputFile      = "input.txt"
	testOutputFile     = "output.txt"
	testAnswerFile     = "answer.txt"
	checkResultFile    = "result.xml"
	checkResultFileArg = "-appes"

	maxCommentLength = 256
)

type CheckerResultXML struct {
	Outcome string   `xml:"outcome,attr"`
	Points  *float64 `xml:"points,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

// Testlib runs checker compiled from problem files, the result is read from testlib xml in appes mode
type Testlib struct {
	problem *config.ProblemConfig
	config  *config.CheckerConfig
	deps    *Deps
}

func newTestlib(problem *config.ProblemConfig, c *config.CheckerConfig, deps *Deps) *Testlib {
	return &Testlib{problem: problem, config: c, deps: deps}
}

func (t *Testlib) Check(ctx context.Context, input []byte, output []byte, answer []byte, casePoints int) *result.Result {
	box, err := t.prepare(ctx, input, output, answer)
	if box != nil {
		defer box.Delete()
	}
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			return result.InternalError("checker compilation error", compileErr.Log)
		}
		return result.InternalError("can not prepare checker", err.Error())
	}
	defer box.Cleanup()

	runConfig := &sandbox.ExecuteConfig{
		RunLimitsConfig: *t.deps.Limits,
		Command:         checkerBinaryFile,
		Args:            []string{testInputFile, testOutputFile, testAnswerFile, checkResultFile, checkResultFileArg},
		Ctx:             ctx,
	}
	runResult := box.Run(runConfig)
	if runResult.Err != nil {
		return result.InternalError("can not run checker", runResult.Err.Error())
	}
	switch runResult.Verdict {
	case verdict.AC, verdict.RTE:
	case verdict.TLE:
		return result.InternalError(fmt.Sprintf("checker running took more than %v time", runConfig.TimeLimit), "")
	case verdict.MLE:
		return result.InternalError(fmt.Sprintf("checker running took more than %v memory", runConfig.MemoryLimit), "")
	default:
		return result.InternalError(fmt.Sprintf("unknown checker sandbox run verdict: %s", runResult.Verdict), "")
	}

	resultReader, err := os.Open(filepath.Join(box.Dir(), checkResultFile))
	if err != nil {
		return result.InternalError(fmt.Sprintf(
			"checker exited with exit code %d, can not open checker result xml file in appes mode",
			runResult.Statistics.ExitCode,
		), err.Error())
	}
	defer resultReader.Close()
	return parseTestlibResult(resultReader, runResult.Statistics.ExitCode, casePoints)
}

// prepare returns sandbox with checker binary and test files, the sandbox is returned even on error if it was created
func (t *Testlib) prepare(ctx context.Context, input []byte, output []byte, answer []byte) (sandbox.ISandbox, error) {
	request := &compiler.Request{
		Language: t.config.Lang,
		Flags:    t.config.Flags,
	}
	for _, name := range t.config.Files {
		content, err := os.ReadFile(t.problem.Path(name))
		if err != nil {
			return nil, fmt.Errorf("can not read checker source %s, error: %v", name, err)
		}
		request.Sources = append(request.Sources, compiler.Source{Name: filepath.Base(name), Content: content})
	}

	artifact, release, err := t.deps.Compiler.Compile(ctx, request)
	defer release()
	if err != nil {
		return nil, err
	}

	box, err := t.deps.NewSandbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("can not create checker sandbox, error: %v", err)
	}
	err = box.Init()
	if err != nil {
		return box, fmt.Errorf("can not initialize checker sandbox, error: %v", err)
	}

	err = artifact.CopyTo(filepath.Join(box.Dir(), checkerBinaryFile))
	if err == nil {
		err = writeFiles(box.Dir(), map[string][]byte{
			testInputFile:  input,
			testOutputFile: output,
			testAnswerFile: answer,
		})
	}
	if err != nil {
		box.Cleanup()
		return box, fmt.Errorf("can not copy files to checker sandbox, error: %v", err)
	}
	return box, nil
}

func writeFiles(dir string, files map[string][]byte) error {
	for name, content := range files {
		err := os.WriteFile(filepath.Join(dir, name), content, 0644)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseTestlibResult(r io.Reader, exitCode int, casePoints int) *result.Result {
	var checkerResult CheckerResultXML
	xmlReader := xml.NewDecoder(r)
	xmlReader.CharsetReader = charset.NewReaderLabel
	err := xmlReader.Decode(&checkerResult)
	if err != nil {
		return result.InternalError(
			fmt.Sprintf("can not parse checker result xml file in appes mode, exit code %d", exitCode),
			err.Error(),
		)
	}

	comment := strings.TrimSpace(checkerResult.Value)
	res := &result.Result{ExtendedFeedback: comment}
	if first, _, ok := strings.Cut(comment, "\n"); ok {
		comment = first
	}
	if len(comment) > maxCommentLength {
		comment = comment[:maxCommentLength]
	}
	res.Feedback = comment

	switch checkerResult.Outcome {
	case "accepted":
		res.Flag = verdict.AC
		res.Points = casePoints
	case "wrong-answer", "unexpected-eof":
		res.Flag = verdict.WA
	case "presentation-error":
		res.Flag = verdict.PE
	case "fail":
		res.Flag = verdict.IE
		res.Feedback = "checker failed: " + comment
	case "points", "relative-scoring":
		if checkerResult.Points == nil {
			return result.InternalError(fmt.Sprintf(
				"checker exited with exit code %d and verdict %s, but no points specified",
				exitCode, checkerResult.Outcome,
			), checkerResult.Value)
		}
		points := math.Floor(*checkerResult.Points)
		if points < 0 || points > float64(casePoints) {
			return result.InternalError(fmt.Sprintf(
				"checker awarded %v points, case has %d", *checkerResult.Points, casePoints,
			), checkerResult.Value)
		}
		res.Flag = verdict.PARTIAL
		res.Points = int(points)
	default:
		return result.InternalError(fmt.Sprintf(
			"unknown checker verdict %s, checker exited with exit code %d",
			checkerResult.Outcome, exitCode,
		), checkerResult.Value)
	}
	logger.Trace("Parsed testlib checker result, outcome is %s", checkerResult.Outcome)
	return res
}
