// Package scripts contains grading routines which problems reference by custom_judge name
package scripts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"grading_system/invoker/grader"
	"grading_system/invoker/result"
)

func init() {
	grader.MustRegister("echo", grader.Routine{Grade: Echo})
	grader.MustRegister("guess", grader.Routine{Interact: Guess})
}

// Echo launches the submission again, feeds it the case input and expects the same text back
func Echo(ctx context.Context, tc *grader.TestCase, program *grader.Program) (*result.Result, error) {
	process, err := program.Launch(ctx)
	if err != nil {
		return nil, err
	}
	go io.Copy(io.Discard, process.Stderr())

	writeErr := make(chan error, 1)
	go func() {
		_, err := process.Stdin().Write(tc.InputData)
		process.Stdin().Close()
		writeErr <- err
	}()
	output, err := io.ReadAll(process.Stdout())
	if err != nil {
		return nil, fmt.Errorf("can not read submission output, error: %v", err)
	}
	process.Wait()
	if err = <-writeErr; err != nil {
		return result.Wrong("submission did not read its input"), nil
	}

	if !bytes.Equal(bytes.TrimRight(output, " \n"), bytes.TrimRight(tc.InputData, " \n")) {
		return result.Wrong("output is not the echo of input"), nil
	}
	return result.Accepted(tc.Points), nil
}
