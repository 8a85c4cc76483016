package grader

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"grading_system/invoker/interaction"
	"grading_system/invoker/result"
	"grading_system/lib/logger"
)

// interactiveStrategy lets author routine talk to the submission through its streams
type interactiveStrategy struct {
	interact InteractFunc
}

func (g *interactiveStrategy) name() string {
	return StrategyInteractive
}

func (g *interactiveStrategy) run(ctx context.Context, s *session) *result.Result {
	process, err := s.program().Launch(ctx)
	if err != nil {
		logger.Error("Can not launch submission for %s, error: %v", s.loggerData, err)
		return result.InternalError("can not launch submission", err.Error())
	}
	go io.Copy(io.Discard, process.Stderr())

	it := interaction.New(ctx, process.Stdin(), process.Stdout())
	outcome, err := g.interact(ctx, s.tc, it)
	it.Close()
	it.Finish()

	res := interactionResult(outcome, err, it, s.tc.Points)
	if res.Flag.Failed() {
		// the verdict is decided, the rest of the run can not change it
		process.Kill()
	}
	process.Wait()
	logger.Trace("Interaction finished for %s with verdict %s", s.loggerData, res.Flag)
	return res
}

func interactionResult(outcome Outcome, err error, it *interaction.Interactor, casePoints int) *result.Result {
	if failure := it.Failure(); failure != nil {
		return result.Wrong(failure.Message)
	}
	if err == nil {
		return outcome.normalize(casePoints)
	}

	var protocolErr *interaction.ProtocolError
	switch {
	case errors.As(err, &protocolErr):
		return result.Wrong(protocolErr.Message)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.EPIPE), errors.Is(err, os.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return result.Wrong("submission closed the stream")
	default:
		return result.InternalError("interact routine failed", err.Error())
	}
}
