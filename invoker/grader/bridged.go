package grader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"grading_system/invoker/bridge"
	"grading_system/invoker/compiler"
	"grading_system/invoker/convention"
	"grading_system/invoker/result"
	"grading_system/lib/logger"
)

// bridgedStrategy runs the submission against the compiled interactor of the problem
type bridgedStrategy struct {
	convention convention.Convention
}

func (g *bridgedStrategy) name() string {
	return StrategyBridged
}

func (g *bridgedStrategy) run(ctx context.Context, s *session) *result.Result {
	interactive := s.problem.Interactive
	request := &compiler.Request{
		Language:  interactive.Lang,
		Flags:     interactive.Flags,
		TimeLimit: interactive.CompilerTimeLimit,
	}
	for _, name := range interactive.Files {
		content, err := os.ReadFile(s.problem.Path(name))
		if err != nil {
			return result.InternalError("can not read interactor source", err.Error())
		}
		request.Sources = append(request.Sources, compiler.Source{Name: filepath.Base(name), Content: content})
	}

	artifact, release, err := s.env.Compiler.Compile(ctx, request)
	defer release()
	if err != nil {
		return compileFailure("interactor", err, s.loggerData)
	}

	outcome := bridge.Run(ctx, &bridge.Request{
		Convention: g.convention,
		Interactor: bridge.Endpoint{
			Binary: artifact.Path,
			Limits: *s.problem.InteractorLimits(),
		},
		Submission: bridge.Endpoint{
			Binary: s.binary,
			Limits: *s.program().limits(),
		},
		InputData:  s.tc.InputData,
		JudgeData:  s.tc.OutputData,
		CasePoints: s.tc.Points,
		NewSandbox: s.env.NewSandbox,
		LoggerData: s.loggerData,
	})
	return outcome.Result
}

// compileFailure reports failed build of judge code, compiler log goes to extended feedback
func compileFailure(what string, err error, loggerData string) *result.Result {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		logger.Warn("Compilation of %s failed for %s", what, loggerData)
		return result.InternalError(fmt.Sprintf("%s compilation error", what), compileErr.Log)
	}
	logger.Error("Can not compile %s for %s, error: %v", what, loggerData, err)
	return result.InternalError(fmt.Sprintf("can not compile %s", what), err.Error())
}
