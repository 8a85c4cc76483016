package checker

import (
	"bytes"
	"context"
	"fmt"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/invoker/compiler"
	"grading_system/invoker/result"
	"grading_system/invoker/sandbox"
)

// Checker compares submission output with the expected answer of the case
type Checker interface {
	Check(ctx context.Context, input []byte, output []byte, answer []byte, casePoints int) *result.Result
}

type Deps struct {
	Compiler   *compiler.Compiler
	NewSandbox sandbox.Factory
	Limits     *config.RunLimitsConfig
}

func New(problem *config.ProblemConfig, c *config.CheckerConfig, deps *Deps) (Checker, error) {
	switch c.Name {
	case config.CheckerStandard:
		return Standard{}, nil
	case config.CheckerIdentical:
		return Identical{}, nil
	case config.CheckerTestlib:
		return newTestlib(problem, c, deps), nil
	default:
		return nil, fmt.Errorf("unknown checker %s", c.Name)
	}
}

// Standard accepts output which has the same tokens as the answer, whitespace is ignored
type Standard struct{}

func (Standard) Check(_ context.Context, _ []byte, output []byte, answer []byte, casePoints int) *result.Result {
	outputTokens := bytes.Fields(output)
	answerTokens := bytes.Fields(answer)
	for i := range min(len(outputTokens), len(answerTokens)) {
		if !bytes.Equal(outputTokens[i], answerTokens[i]) {
			return result.Wrong(fmt.Sprintf(
				"token %d differs, expected %s, found %s",
				i+1, clip(answerTokens[i]), clip(outputTokens[i]),
			))
		}
	}
	switch {
	case len(outputTokens) < len(answerTokens):
		return result.Wrong(fmt.Sprintf("expected %d tokens, found %d", len(answerTokens), len(outputTokens)))
	case len(outputTokens) > len(answerTokens):
		return result.Wrong(fmt.Sprintf("extra tokens after %d expected", len(answerTokens)))
	}
	return result.Accepted(casePoints)
}

// Identical requires byte exact output. Output that differs only in whitespace is PE.
type Identical struct{}

func (Identical) Check(ctx context.Context, input []byte, output []byte, answer []byte, casePoints int) *result.Result {
	if bytes.Equal(output, answer) {
		return result.Accepted(casePoints)
	}
	if (Standard{}).Check(ctx, input, output, answer, casePoints).Flag == verdict.AC {
		return &result.Result{Flag: verdict.PE, Feedback: "output differs in whitespace"}
	}
	return result.Wrong("output differs")
}

const maxTokenShown = 32

func clip(token []byte) string {
	if len(token) > maxTokenShown {
		return string(token[:maxTokenShown]) + "..."
	}
	return string(token)
}
