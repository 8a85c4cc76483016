package grader

import (
	"context"

	"grading_system/invoker/result"
	"grading_system/lib/logger"
)

// scriptStrategy runs the submission on case input, then author routine grades it
type scriptStrategy struct {
	grade GradeFunc
}

func (g *scriptStrategy) name() string {
	return StrategyScript
}

func (g *scriptStrategy) run(ctx context.Context, s *session) *result.Result {
	program := s.program()
	execution, err := program.Run(ctx, s.tc.InputData)
	if err != nil {
		logger.Error("Can not run submission for %s, error: %v", s.loggerData, err)
		return result.InternalError("can not run submission", err.Error())
	}
	if execution.Result.Verdict.Failed() {
		return &result.Result{Flag: execution.Result.Verdict}
	}
	program.Execution = execution

	res, err := g.grade(ctx, s.tc, program)
	if err != nil {
		logger.Error("Grade routine failed for %s, error: %v", s.loggerData, err)
		return result.InternalError("grade routine failed", err.Error())
	}
	return res
}
