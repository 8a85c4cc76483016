package grader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"grading_system/common/constants/verdict"
	"grading_system/invoker/result"
	"grading_system/invoker/sandbox"
	"grading_system/lib/logger"
)

type state int

const (
	stateInit state = iota
	stateRunning
	stateClosed
	stateScored
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateRunning:
		return "RUNNING"
	case stateClosed:
		return "CLOSED"
	case stateScored:
		return "SCORED"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// session owns every process and sandbox of the submission launched while grading one case
type session struct {
	*driver
	tc *TestCase

	state      state
	loggerData string

	// binary is the submission executable, signature grading replaces it with the combined program
	binary string

	mutex     sync.Mutex
	boxes     []sandbox.ISandbox
	processes []sandbox.Process
	runs      []*sandbox.RunResult
	output    []byte
}

func newSession(d *driver, tc *TestCase) *session {
	s := &session{
		driver:     d,
		tc:         tc,
		state:      stateInit,
		loggerData: fmt.Sprintf("case %d of %s (%s grading)", tc.Position, d.problem.Dir, d.strategy.name()),
		binary:     d.submission.Binary,
	}
	logger.Trace("Created session for %s", s.loggerData)
	return s
}

func (s *session) advance(to state) {
	if to != s.state+1 {
		logger.Panic("Invalid session transition from %s to %s for %s", s.state, to, s.loggerData)
	}
	s.state = to
	logger.Trace("Session of %s is %s", s.loggerData, to)
}

// close kills processes which are still running and removes sandboxes
func (s *session) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, p := range s.processes {
		p.Kill()
		s.runs = append(s.runs, p.Wait())
		p.Close()
	}
	s.processes = nil
	for _, box := range s.boxes {
		box.Cleanup()
		box.Delete()
	}
	s.boxes = nil
	if s.state == stateRunning {
		s.advance(stateClosed)
	}
}

// score adds resource failures of submission runs to the result and finalizes it
func (s *session) score(res *result.Result) *result.Result {
	if res == nil {
		res = result.InternalError("grader returned no result", "")
	}
	for _, run := range s.runs {
		if run.Err != nil {
			res.Add(result.InternalError("submission run failed", run.Err.Error()))
			continue
		}
		flag := run.Verdict & verdict.ResourceMask
		if run.Killed {
			flag &^= verdict.RTE
		}
		if flag != 0 {
			res.Flag = res.Flag&^verdict.PARTIAL | flag
			res.Points = 0
		}
		res.Time = max(res.Time, run.Statistics.Time)
		res.WallTime = max(res.WallTime, run.Statistics.WallTime)
		res.Memory = max(res.Memory, run.Statistics.Memory)
	}
	if res.ProcOutput == nil {
		res.ProcOutput = s.output
	}
	res.Finalize(s.tc.Points)
	if s.state == stateInit {
		s.advance(stateRunning)
	}
	if s.state == stateRunning {
		s.advance(stateClosed)
	}
	s.advance(stateScored)
	logger.Trace("Scored %s with verdict %s and %d points", s.loggerData, res.Flag, res.Points)
	return res
}

// newBox creates sandbox with the submission binary, it is removed when the session is closed
func (s *session) newBox(ctx context.Context) (sandbox.ISandbox, error) {
	box, err := s.env.NewSandbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("can not create sandbox, error: %v", err)
	}
	err = box.Init()
	if err != nil {
		box.Delete()
		return nil, fmt.Errorf("can not initialize sandbox, error: %v", err)
	}
	s.mutex.Lock()
	s.boxes = append(s.boxes, box)
	s.mutex.Unlock()

	data, err := os.ReadFile(s.binary)
	if err != nil {
		return nil, fmt.Errorf("can not read submission binary, error: %v", err)
	}
	err = os.WriteFile(filepath.Join(box.Dir(), submissionBinaryFile), data, 0755)
	if err != nil {
		return nil, fmt.Errorf("can not copy submission binary to sandbox, error: %v", err)
	}
	return box, nil
}

func (s *session) track(p sandbox.Process) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.processes = append(s.processes, p)
}

func (s *session) record(run *sandbox.RunResult, output []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.runs = append(s.runs, run)
	if s.output == nil && output != nil {
		s.output = outputHead(output, s.env.Config.SaveOutputHead)
	}
}

func outputHead(output []byte, limit *uint64) []byte {
	if limit != nil && uint64(len(output)) > *limit {
		output = output[:*limit]
	}
	return append([]byte{}, output...)
}
