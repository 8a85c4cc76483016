package grader

import (
	"context"
	"os"
	"path/filepath"

	"grading_system/invoker/checker"
	"grading_system/invoker/compiler"
	"grading_system/invoker/glue"
	"grading_system/invoker/result"
	"grading_system/lib/logger"
)

// signatureStrategy builds the submission together with judge entry and header, then checks its output
type signatureStrategy struct {
	checker checker.Checker
}

func (g *signatureStrategy) name() string {
	return StrategySignature
}

func (g *signatureStrategy) run(ctx context.Context, s *session) *result.Result {
	signature := s.problem.SignatureGrader
	entry, err := readSource(s, signature.Entry)
	if err != nil {
		return result.InternalError("can not read entry source", err.Error())
	}
	header, err := readSource(s, signature.Header)
	if err != nil {
		return result.InternalError("can not read header", err.Error())
	}

	artifact, release, err := glue.Build(ctx, s.env.Compiler, &glue.Request{
		Language:   s.submission.Language,
		Entry:      entry,
		Header:     header,
		Submission: s.submission.Source,
	}, s.env.Rand)
	defer release()
	if err != nil {
		return compileFailure("signature grader", err, s.loggerData)
	}
	s.binary = artifact.Path

	execution, err := s.program().Run(ctx, s.tc.InputData)
	if err != nil {
		logger.Error("Can not run signature graded program for %s, error: %v", s.loggerData, err)
		return result.InternalError("can not run submission", err.Error())
	}
	if execution.Result.Verdict.Failed() {
		return &result.Result{Flag: execution.Result.Verdict}
	}
	return g.checker.Check(ctx, s.tc.InputData, execution.Output, s.tc.OutputData, s.tc.Points)
}

func readSource(s *session, name string) (compiler.Source, error) {
	content, err := os.ReadFile(s.problem.Path(name))
	if err != nil {
		return compiler.Source{}, err
	}
	return compiler.Source{Name: filepath.Base(name), Content: content}, nil
}
