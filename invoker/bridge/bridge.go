// Package bridge runs a submission against a compiled interactor, the output of each process is the input of the other.
package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/invoker/convention"
	"grading_system/invoker/result"
	"grading_system/invoker/sandbox"
	"grading_system/lib/logger"

	"golang.org/x/sync/errgroup"
)

const (
	interactorBinaryFile = "interactor"
	submissionBinaryFile = "solution"
	inputFile            = "input.txt"
	judgeFile            = "answer.txt"

	defaultStderrLimit = 64 << 10
)

type Endpoint struct {
	// Binary is the executable on host, it is copied to the sandbox
	Binary string
	Limits config.RunLimitsConfig
}

type Request struct {
	Convention convention.Convention
	Interactor Endpoint
	Submission Endpoint

	InputData  []byte
	JudgeData  []byte
	CasePoints int

	NewSandbox sandbox.Factory

	// StderrLimit bounds captured interactor stderr
	StderrLimit int

	// LoggerData identifies the session in logs
	LoggerData string
}

type Outcome struct {
	Result *result.Result

	Interactor       *sandbox.RunResult
	Submission       *sandbox.RunResult
	InteractorStderr []byte
}

type bridge struct {
	request *Request

	interactorBox sandbox.ISandbox
	submissionBox sandbox.ISandbox

	interactor sandbox.Process
	submission sandbox.Process
	stderr     *headWriter
}

// Run interacts submission with interactor until both exit. Failures of the bridge itself are IE.
func Run(ctx context.Context, request *Request) *Outcome {
	b := &bridge{request: request}
	defer b.release()

	err := b.prepare(ctx)
	if err != nil {
		logger.Error("Can not prepare interaction for %s, error: %v", request.LoggerData, err)
		return &Outcome{Result: result.InternalError("can not prepare interaction", err.Error())}
	}

	err = b.start(ctx)
	if err != nil {
		logger.Error("Can not start interaction for %s, error: %v", request.LoggerData, err)
		return &Outcome{Result: result.InternalError("can not start interaction", err.Error())}
	}
	logger.Trace("Started interaction for %s", request.LoggerData)

	var interactorResult, submissionResult *sandbox.RunResult
	var interactorEnd, submissionEnd time.Time
	var g errgroup.Group
	g.Go(func() error {
		interactorResult = b.interactor.Wait()
		interactorEnd = time.Now()
		if interactorResult.Err != nil {
			b.submission.Kill()
			return fmt.Errorf("interactor run failed, error: %v", interactorResult.Err)
		}
		return nil
	})
	g.Go(func() error {
		submissionResult = b.submission.Wait()
		submissionEnd = time.Now()
		if submissionResult.Err != nil {
			b.interactor.Kill()
			return fmt.Errorf("submission run failed, error: %v", submissionResult.Err)
		}
		return nil
	})
	err = g.Wait()

	outcome := &Outcome{
		Interactor:       interactorResult,
		Submission:       submissionResult,
		InteractorStderr: b.stderr.Bytes(),
	}
	if err != nil {
		logger.Error("Interaction failed for %s, error: %v", request.LoggerData, err)
		outcome.Result = result.InternalError("interaction failed", err.Error())
		return outcome
	}
	outcome.Result = Classify(
		request.Convention,
		request.CasePoints,
		interactorResult,
		submissionResult,
		outcome.InteractorStderr,
		submissionEnd.Before(interactorEnd),
	)
	logger.Trace(
		"Finished interaction for %s, interactor exit code %d, verdict %s",
		request.LoggerData, interactorResult.Statistics.ExitCode, outcome.Result.Flag,
	)
	return outcome
}

func (b *bridge) prepare(ctx context.Context) error {
	var err error
	b.interactorBox, err = newBox(ctx, b.request.NewSandbox)
	if err != nil {
		return err
	}
	b.submissionBox, err = newBox(ctx, b.request.NewSandbox)
	if err != nil {
		return err
	}

	err = copyBinary(b.request.Interactor.Binary, filepath.Join(b.interactorBox.Dir(), interactorBinaryFile))
	if err != nil {
		return fmt.Errorf("can not copy interactor to sandbox, error: %v", err)
	}
	err = copyBinary(b.request.Submission.Binary, filepath.Join(b.submissionBox.Dir(), submissionBinaryFile))
	if err != nil {
		return fmt.Errorf("can not copy submission to sandbox, error: %v", err)
	}

	err = os.WriteFile(filepath.Join(b.interactorBox.Dir(), inputFile), b.request.InputData, 0644)
	if err != nil {
		return fmt.Errorf("can not write input file, error: %v", err)
	}
	err = os.WriteFile(filepath.Join(b.interactorBox.Dir(), judgeFile), b.request.JudgeData, 0644)
	if err != nil {
		return fmt.Errorf("can not write judge file, error: %v", err)
	}
	return nil
}

func (b *bridge) start(ctx context.Context) error {
	// submission stdout -> interactor stdin
	toInteractorR, toInteractorW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("can not create pipe, error: %v", err)
	}
	// interactor stdout -> submission stdin
	toSubmissionR, toSubmissionW, err := os.Pipe()
	if err != nil {
		toInteractorR.Close()
		toInteractorW.Close()
		return fmt.Errorf("can not create pipe, error: %v", err)
	}
	// Started processes own their copies of the pipe ends, so that death of one side is end of file for the other
	defer toInteractorR.Close()
	defer toInteractorW.Close()
	defer toSubmissionR.Close()
	defer toSubmissionW.Close()

	stderrLimit := b.request.StderrLimit
	if stderrLimit <= 0 {
		stderrLimit = defaultStderrLimit
	}
	b.stderr = &headWriter{limit: stderrLimit}

	b.interactor, err = b.interactorBox.Start(&sandbox.ExecuteConfig{
		RunLimitsConfig: b.request.Interactor.Limits,
		Command:         interactorBinaryFile,
		Args:            b.request.Convention.Args(inputFile, judgeFile),
		Stdin:           &sandbox.IORedirect{Input: toInteractorR},
		Stdout:          &sandbox.IORedirect{Output: toSubmissionW},
		Stderr:          &sandbox.IORedirect{Output: b.stderr},
		Ctx:             ctx,
	})
	if err != nil {
		return fmt.Errorf("can not start interactor, error: %v", err)
	}

	b.submission, err = b.submissionBox.Start(&sandbox.ExecuteConfig{
		RunLimitsConfig: b.request.Submission.Limits,
		Command:         submissionBinaryFile,
		Stdin:           &sandbox.IORedirect{Input: toSubmissionR},
		Stdout:          &sandbox.IORedirect{Output: toInteractorW},
		Stderr:          &sandbox.IORedirect{Output: io.Discard},
		Ctx:             ctx,
	})
	if err != nil {
		b.interactor.Kill()
		b.interactor.Wait()
		b.interactor.Close()
		b.interactor = nil
		return fmt.Errorf("can not start submission, error: %v", err)
	}
	return nil
}

func (b *bridge) release() {
	for _, p := range []sandbox.Process{b.interactor, b.submission} {
		if p != nil {
			p.Close()
		}
	}
	for _, box := range []sandbox.ISandbox{b.interactorBox, b.submissionBox} {
		if box != nil {
			box.Cleanup()
			box.Delete()
		}
	}
}

// Classify turns finished interaction into a result.
// The interactor decides through the convention, unless it failed on its own.
// Resource failures of the submission are added to the verdict of the interactor and take all points.
// An interactor killed by SIGPIPE after the submission exited is blamed on the submission.
func Classify(
	conv convention.Convention,
	casePoints int,
	interactor *sandbox.RunResult,
	submission *sandbox.RunResult,
	stderr []byte,
	submissionExitedFirst bool,
) *result.Result {
	res := &result.Result{
		Time:     submission.Statistics.Time,
		WallTime: submission.Statistics.WallTime,
		Memory:   submission.Statistics.Memory,
	}
	submissionFailed := submission.Verdict&verdict.ResourceMask != 0
	brokenPipe := interactor.Statistics.Signal == int(syscall.SIGPIPE) && (submissionFailed || submissionExitedFirst)

	switch {
	case interactor.Verdict&(verdict.TLE|verdict.MLE|verdict.OLE) != 0:
		res.Flag = verdict.IE
		res.Feedback = fmt.Sprintf("interactor failed with verdict %s", interactor.Verdict)
	case interactor.Statistics.Signal != 0 && !brokenPipe:
		res.Flag = verdict.IE
		res.Feedback = fmt.Sprintf("interactor is killed by signal %d", interactor.Statistics.Signal)
	case brokenPipe:
		if !submissionFailed {
			res.Flag = verdict.WA
			res.Feedback = "submission closed its input"
		}
	default:
		outcome := conv.Classify(interactor.Statistics.ExitCode, stderr, casePoints)
		res.Flag = outcome.Flag
		res.Points = outcome.Points
		res.Feedback = outcome.Feedback
	}
	res.ExtendedFeedback = string(stderr)

	if submissionFailed {
		res.Flag = res.Flag&^verdict.PARTIAL | submission.Verdict
		res.Points = 0
	}
	return res
}

func newBox(ctx context.Context, factory sandbox.Factory) (sandbox.ISandbox, error) {
	box, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("can not create sandbox, error: %v", err)
	}
	err = box.Init()
	if err != nil {
		box.Delete()
		return nil, fmt.Errorf("can not initialize sandbox, error: %v", err)
	}
	return box, nil
}

func copyBinary(src string, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0755)
}

// headWriter keeps first limit bytes and discards the rest
type headWriter struct {
	limit int
	data  []byte
}

func (w *headWriter) Write(p []byte) (int, error) {
	if room := w.limit - len(w.data); room > 0 {
		w.data = append(w.data, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (w *headWriter) Bytes() []byte {
	if w == nil {
		return nil
	}
	return w.data
}
