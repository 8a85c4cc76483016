package grader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"grading_system/common/config"
	"grading_system/invoker/sandbox"
)

const (
	submissionBinaryFile = "solution"
	submissionInputFile  = "input.txt"
	submissionOutputFile = "output.txt"
)

// Program launches the submission under problem limits. Processes started by Program belong to
// the grading session, they are killed when the session is closed.
type Program struct {
	s *session

	// Execution is the run on the case input made before the grade routine is called
	Execution *Execution
}

type Execution struct {
	Output []byte
	Result *sandbox.RunResult
}

func (s *session) program() *Program {
	return &Program{s: s}
}

func (p *Program) limits() *config.RunLimitsConfig {
	factor := p.s.tc.WallTimeFactor
	if factor <= 0 {
		factor = p.s.env.Config.WallTimeFactor
	}
	return p.s.problem.SubmissionLimits(factor)
}

// Run runs the submission to completion on input and returns its output.
// Resource violations are reported in Execution.Result and are added to the case verdict.
func (p *Program) Run(ctx context.Context, input []byte) (*Execution, error) {
	box, err := p.s.newBox(ctx)
	if err != nil {
		return nil, err
	}
	err = os.WriteFile(filepath.Join(box.Dir(), submissionInputFile), input, 0644)
	if err != nil {
		return nil, fmt.Errorf("can not write submission input, error: %v", err)
	}

	runResult := box.Run(&sandbox.ExecuteConfig{
		RunLimitsConfig: *p.limits(),
		Command:         submissionBinaryFile,
		Stdin:           &sandbox.IORedirect{FileName: submissionInputFile},
		Stdout:          &sandbox.IORedirect{FileName: submissionOutputFile},
		Ctx:             ctx,
	})
	output, err := os.ReadFile(filepath.Join(box.Dir(), submissionOutputFile))
	if err != nil && runResult.Err == nil {
		runResult.Err = fmt.Errorf("can not read submission output, error: %v", err)
	}
	p.s.record(runResult, output)
	if runResult.Err != nil {
		return nil, runResult.Err
	}
	return &Execution{Output: output, Result: runResult}, nil
}

// Launch starts the submission with its standard streams connected to pipes.
// Stdout is a pseudo-terminal if the problem is unbuffered.
func (p *Program) Launch(ctx context.Context) (sandbox.Process, error) {
	box, err := p.s.newBox(ctx)
	if err != nil {
		return nil, err
	}
	process, err := box.Start(&sandbox.ExecuteConfig{
		RunLimitsConfig: *p.limits(),
		Command:         submissionBinaryFile,
		Unbuffered:      p.s.problem.Unbuffered,
		Ctx:             ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("can not start submission, error: %v", err)
	}
	p.s.track(process)
	return process, nil
}
