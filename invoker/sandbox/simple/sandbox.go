package simple

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"grading_system/common/constants/verdict"
	"grading_system/invoker/sandbox"
	"grading_system/lib/customfields"
	"grading_system/lib/logger"

	"golang.org/x/sys/unix"
)

// Sandbox runs processes directly in a directory. It enforces limits but gives no isolation.
type Sandbox struct {
	dir         string
	initialized bool
}

func NewSandbox(dir string) (*Sandbox, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return nil, err
	}

	logger.Warn("Using simple sandbox is not safe. Consider using isolate sandbox")

	return &Sandbox{
		dir:         dir,
		initialized: false,
	}, nil
}

func (s *Sandbox) Init() error {
	if s.initialized {
		return fmt.Errorf("sandbox already initialized")
	}
	err := os.MkdirAll(s.dir, 0777)
	if err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *Sandbox) Dir() string {
	return s.dir
}

func (s *Sandbox) parseReader(r *io.Reader, conf *sandbox.IORedirect) (func() error, error) {
	if conf == nil {
		return nil, nil
	}
	if conf.Input != nil {
		*r = conf.Input
		return nil, nil
	}
	if conf.Output != nil {
		return nil, fmt.Errorf("writer is specified for reading")
	}
	if len(conf.FileName) == 0 {
		return nil, fmt.Errorf("no source is specified for IORedirect")
	}

	fd, err := os.Open(filepath.Join(s.dir, conf.FileName))
	if err != nil {
		return nil, err
	}
	*r = fd
	return fd.Close, nil
}

func (s *Sandbox) parseWriter(w *io.Writer, conf *sandbox.IORedirect) (func() error, error) {
	if conf == nil {
		return nil, nil
	}
	if conf.Input != nil {
		return nil, fmt.Errorf("reader is specified for writing")
	}
	if conf.Output != nil {
		*w = conf.Output
		return nil, nil
	}
	if len(conf.FileName) == 0 {
		return nil, fmt.Errorf("no source is specified for IORedirect")
	}

	fd, err := os.OpenFile(filepath.Join(s.dir, conf.FileName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	*w = fd
	return fd.Close, nil
}

type process struct {
	*sandbox.Streams

	cmd     *exec.Cmd
	config  *sandbox.ExecuteConfig
	cancel  context.CancelFunc
	closers []func() error
	start   time.Time

	wallTimeLimit atomic.Bool
	outputLimit   atomic.Bool
	killed        atomic.Bool
	cancelled     atomic.Bool

	waitOnce sync.Once
	result   *sandbox.RunResult
}

func (s *Sandbox) Start(config *sandbox.ExecuteConfig) (sandbox.Process, error) {
	return s.start(config, true)
}

func (s *Sandbox) Run(config *sandbox.ExecuteConfig) *sandbox.RunResult {
	p, err := s.start(config, false)
	if err != nil {
		return &sandbox.RunResult{
			Err:        err,
			Statistics: &sandbox.Statistics{},
		}
	}
	return p.Wait()
}

func (s *Sandbox) start(config *sandbox.ExecuteConfig, openStreams bool) (*process, error) {
	baseCtx := config.Ctx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if config.WallTimeLimit > 0 {
		ctx, cancel = context.WithTimeout(baseCtx, time.Duration(config.WallTimeLimit))
	} else {
		ctx, cancel = context.WithCancel(baseCtx)
	}

	command := config.Command
	if !filepath.IsAbs(command) {
		command = filepath.Join(s.dir, command)
	}
	p := &process{
		cmd:    exec.CommandContext(ctx, command, config.Args...),
		config: config,
		cancel: cancel,
	}
	p.cmd.Dir = s.dir
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p.cmd.WaitDelay = time.Second
	p.cmd.Cancel = func() error {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.wallTimeLimit.Store(true)
		} else {
			p.cancelled.Store(true)
		}
		return p.killGroup()
	}

	err := p.redirect(s, config)
	if err != nil {
		p.release()
		return nil, err
	}

	if openStreams {
		p.Streams, err = sandbox.OpenStreams(p.cmd, config)
		if err != nil {
			p.release()
			return nil, err
		}
		p.Streams.LimitStdout(uint64(config.MaxOutputSize), func() {
			p.outputLimit.Store(true)
			p.killGroup()
		})
	} else {
		p.Streams = &sandbox.Streams{}
		if config.StderrToStdout {
			p.cmd.Stderr = p.cmd.Stdout
		}
	}

	p.start = time.Now()
	err = p.cmd.Start()
	p.Streams.CloseChildEnds()
	if err != nil {
		p.Streams.Close()
		p.release()
		return nil, fmt.Errorf("can not start process %s, error: %v", config.Command, err)
	}

	err = applyLimits(p.cmd.Process.Pid, config)
	if err != nil {
		logger.Warn("Can not apply limits to process %s, error: %v", config.Command, err)
	}
	return p, nil
}

func (p *process) redirect(s *Sandbox, config *sandbox.ExecuteConfig) error {
	closer, err := s.parseReader(&p.cmd.Stdin, config.Stdin)
	if err != nil {
		return fmt.Errorf("can not parse stdin: %v", err)
	}
	p.addCloser(closer)

	closer, err = s.parseWriter(&p.cmd.Stdout, config.Stdout)
	if err != nil {
		return fmt.Errorf("can not parse stdout: %v", err)
	}
	p.addCloser(closer)

	closer, err = s.parseWriter(&p.cmd.Stderr, config.Stderr)
	if err != nil {
		return fmt.Errorf("can not parse stderr: %v", err)
	}
	p.addCloser(closer)
	return nil
}

func (p *process) addCloser(closer func() error) {
	if closer != nil {
		p.closers = append(p.closers, closer)
	}
}

func (p *process) release() {
	p.cancel()
	for _, closer := range p.closers {
		closer()
	}
	p.closers = nil
}

func (p *process) killGroup() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

func (p *process) Kill() {
	p.killed.Store(true)
	err := p.killGroup()
	if err != nil {
		logger.Warn("Can not kill process %s, error: %v", p.config.Command, err)
	}
}

func (p *process) Wait() *sandbox.RunResult {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		wallTime := time.Since(p.start)
		p.release()
		p.result = p.collectResult(err, wallTime)
	})
	return p.result
}

func (p *process) collectResult(err error, wallTime time.Duration) *sandbox.RunResult {
	result := &sandbox.RunResult{
		Statistics: &sandbox.Statistics{},
		Killed:     p.killed.Load(),
	}

	if p.cmd.ProcessState == nil {
		result.Err = fmt.Errorf("sandbox process state is nil, something wrong with sandbox, process error: %v", err)
		return result
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		result.Err = fmt.Errorf("sandbox process exited with unknown error: %v", err)
		return result
	}
	if p.cancelled.Load() {
		result.Err = fmt.Errorf("process %s is cancelled", p.config.Command)
		return result
	}

	rusage := p.cmd.ProcessState.SysUsage().(*syscall.Rusage)
	result.Statistics.Time = customfields.Time(rusage.Utime.Nano() + rusage.Stime.Nano())
	result.Statistics.Memory = customfields.Memory(rusage.Maxrss)
	if runtime.GOOS != "darwin" { // maxrss is in bytes on macOS
		result.Statistics.Memory *= 1024
	}
	result.Statistics.WallTime = customfields.Time(wallTime)
	result.Statistics.ExitCode = p.cmd.ProcessState.ExitCode()

	signal := syscall.Signal(0)
	if status, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		signal = status.Signal()
		result.Statistics.Signal = int(signal)
	}

	switch {
	case p.outputLimit.Load() || signal == syscall.SIGXFSZ:
		result.Verdict = verdict.OLE
	case p.wallTimeLimit.Load() || signal == syscall.SIGXCPU || exceeds(result.Statistics.Time, p.config.TimeLimit):
		result.Verdict = verdict.TLE
	case exceeds(result.Statistics.Memory, p.config.MemoryLimit):
		result.Verdict = verdict.MLE
	case result.Statistics.ExitCode != 0:
		result.Verdict = verdict.RTE
	default:
		result.Verdict = verdict.AC
	}
	return result
}

// Zero limit means no limit
func exceeds[T ~uint64](value T, limit T) bool {
	return limit != 0 && value > limit
}

func (s *Sandbox) Cleanup() {
	if !s.initialized {
		logger.Error("Cleaning up uninitialized sandbox")
		return
	}
	err := os.RemoveAll(s.dir)
	if err != nil {
		logger.Error("Can not clean up sandbox, error: %v", err)
	} else {
		s.initialized = false
	}
}

func (s *Sandbox) Delete() {
	if s.initialized {
		logger.Error("sandbox %s was initialized before delete", s.dir)
	}
}
