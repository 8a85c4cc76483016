package isolate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"grading_system/common/constants/verdict"
	"grading_system/invoker/sandbox"
	"grading_system/lib/logger"

	"golang.org/x/sys/unix"
)

const (
	isolateCommand   = "/usr/local/bin/isolate"
	bytesInKB        = 1024
	memoryAdditional = 1024
	timeAdditional   = 0.001
	extraTime        = 0.5
)

type Sandbox struct {
	id           int
	localHomeDir string
	initialized  bool
}

func NewSandbox(id int, localHomeDir string) (*Sandbox, error) {
	s := &Sandbox{
		id:           id,
		localHomeDir: localHomeDir,
	}

	_, err := os.Stat(isolateCommand)
	if err != nil {
		return nil, fmt.Errorf("can not find isolate, error: %v", err)
	}

	err = os.MkdirAll(localHomeDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("can not create isolate home dir, error: %v", err)
	}

	_, err = os.Stat(s.Dir())
	if err == nil {
		logger.Warn("Isolate box %d already existed, cleaning up", s.id)
		s.initialized = true
		s.Cleanup()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("can not stat isolate box %d, error: %v", s.id, err)
	}
	logger.Info("Initialized isolate box %d", id)
	return s, nil
}

func (s *Sandbox) Dir() string {
	return fmt.Sprintf("/var/local/lib/isolate/%d/box", s.id)
}

func (s *Sandbox) command(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, isolateCommand, "--cg", fmt.Sprintf("--box-id=%d", s.id), "-s")
}

func (s *Sandbox) metaPath() string {
	return filepath.Join(s.localHomeDir, "meta-"+strconv.Itoa(s.id))
}

func (s *Sandbox) Init() error {
	cmd := s.command(context.Background())
	cmd.Args = append(cmd.Args, "--init")
	err := cmd.Run()
	if err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *Sandbox) Cleanup() {
	if !s.initialized {
		logger.Error("Cleaning up uninitialized sandbox")
		return
	}
	cmd := s.command(context.Background())
	cmd.Args = append(cmd.Args, "--cleanup")
	err := cmd.Run()
	if err != nil {
		logger.Error("Can not clean up sandbox, error: %v", err)
	}
	s.initialized = false
}

func (s *Sandbox) Delete() {
	if s.initialized {
		logger.Error("sandbox %d was initialized before delete", s.id)
		s.Cleanup()
	}
}

type process struct {
	*sandbox.Streams

	box    *Sandbox
	cmd    *exec.Cmd
	config *sandbox.ExecuteConfig

	killed      atomic.Bool
	cancelled   atomic.Bool
	outputLimit atomic.Bool

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
	p := &process{
		box:    s,
		cmd:    s.prepareRun(config),
		config: config,
	}
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p.cmd.WaitDelay = time.Second
	p.cmd.Cancel = func() error {
		p.cancelled.Store(true)
		return p.killGroup()
	}

	var err error
	if openStreams {
		p.Streams, err = sandbox.OpenStreams(p.cmd, config)
		if err != nil {
			return nil, err
		}
		// isolate limits files only, streams are limited while reading
		p.Streams.LimitStdout(uint64(config.MaxOutputSize), func() {
			p.outputLimit.Store(true)
			p.killGroup()
		})
	} else {
		p.Streams = &sandbox.Streams{}
	}

	err = p.cmd.Start()
	p.Streams.CloseChildEnds()
	if err != nil {
		p.Streams.Close()
		return nil, fmt.Errorf("error starting isolate box %d, error: %v", s.id, err)
	}
	return p, nil
}

func (s *Sandbox) prepareRun(config *sandbox.ExecuteConfig) *exec.Cmd {
	ctx := context.Background()
	if config.Ctx != nil {
		ctx = config.Ctx
	}
	cmd := s.command(ctx)
	cmd.Args = append(cmd.Args, "--run")

	cmd.Dir = s.localHomeDir
	cmd.Args = append(cmd.Args, "--meta="+s.metaPath())

	// PATH is needed for compilers
	cmd.Args = append(cmd.Args, "--env=PATH=/usr/bin")

	cmd.Args = append(cmd.Args, fmt.Sprintf("--time=%f", float64(config.TimeLimit)/float64(time.Second)+timeAdditional))
	cmd.Args = append(cmd.Args, fmt.Sprintf("--extra-time=%f", extraTime))
	cmd.Args = append(cmd.Args, fmt.Sprintf("--wall-time=%f", float64(config.WallTimeLimit)/float64(time.Second)))

	cmd.Args = append(cmd.Args, fmt.Sprintf("--cg-mem=%d", uint64(config.MemoryLimit)/bytesInKB+memoryAdditional))

	if config.MaxThreads != 0 {
		if config.MaxThreads == -1 {
			cmd.Args = append(cmd.Args, "--processes")
		} else {
			cmd.Args = append(cmd.Args, "--processes", fmt.Sprintf("%d", config.MaxThreads))
		}
	}

	cmd.Args = append(cmd.Args, fmt.Sprintf("--open-files=%d", config.MaxOpenFiles))
	cmd.Args = append(cmd.Args, fmt.Sprintf("--fsize=%d", config.MaxOutputSize/bytesInKB))

	if config.Stdin != nil {
		if config.Stdin.Input != nil {
			cmd.Stdin = config.Stdin.Input
		} else {
			cmd.Args = append(cmd.Args, "--stdin="+config.Stdin.FileName)
		}
	}

	if config.Stdout != nil {
		if config.Stdout.Output != nil {
			cmd.Stdout = config.Stdout.Output
		} else {
			cmd.Args = append(cmd.Args, "--stdout="+config.Stdout.FileName)
		}
	}

	if config.StderrToStdout {
		cmd.Args = append(cmd.Args, "--stderr-to-stdout")
	} else if config.Stderr != nil {
		if config.Stderr.Output != nil {
			cmd.Stderr = config.Stderr.Output
		} else {
			cmd.Args = append(cmd.Args, "--stderr="+config.Stderr.FileName)
		}
	}

	cmd.Args = append(cmd.Args, "--")
	cmd.Args = append(cmd.Args, config.Command)
	cmd.Args = append(cmd.Args, config.Args...)

	return cmd
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
		logger.Warn("Can not kill isolate box %d, error: %v", p.box.id, err)
	}
}

func (p *process) Wait() *sandbox.RunResult {
	p.waitOnce.Do(func() {
		p.result = p.collectResult(p.cmd.Wait())
	})
	return p.result
}

func (p *process) collectResult(err error) *sandbox.RunResult {
	result := &sandbox.RunResult{
		Statistics: &sandbox.Statistics{},
		Killed:     p.killed.Load(),
	}

	if p.cancelled.Load() {
		result.Err = fmt.Errorf("isolate box %d run is cancelled", p.box.id)
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			result.Err = fmt.Errorf("error running isolate box %d, error: %v", p.box.id, err)
			return result
		}
	}

	reader, err := os.Open(p.box.metaPath())
	if err != nil {
		result.Err = fmt.Errorf("can not open meta file, error: %v", err)
		return result
	}
	defer reader.Close()

	parseMeta(reader, p.config, result)
	if result.Err == nil && p.outputLimit.Load() {
		result.Verdict = verdict.OLE
	}
	return result
}
