package sandbox

import (
	"context"
	"io"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/lib/customfields"
)

type ExecuteConfig struct {
	config.RunLimitsConfig `yaml:",inline"`

	Command string   `yaml:"-"`
	Args    []string `yaml:"-"` // Except zero argument (command name itself)

	Stdin          *IORedirect `yaml:"-"`
	Stdout         *IORedirect `yaml:"-"`
	Stderr         *IORedirect `yaml:"-"`
	StderrToStdout bool        `yaml:"-"`

	// Unbuffered connects stdout to a pseudo-terminal if stdout is not redirected
	Unbuffered bool `yaml:"-"`

	Ctx context.Context `yaml:"-"`
}

// IORedirect specifies files to read/write to.
// Either Input, Output or FileName should be specified
// FileName should be relative inside sandbox
type IORedirect struct {
	Input    io.Reader `yaml:"-"`
	Output   io.Writer `yaml:"-"`
	FileName string    `yaml:"-"`
}

type RunResult struct {
	Err error

	// Verdict is one of AC, RTE, TLE, MLE, OLE
	Verdict verdict.Flag

	Statistics *Statistics

	// Killed is set if the process was killed by Kill call
	Killed bool
}

type Statistics struct {
	Time     customfields.Time   `json:"Time"`
	WallTime customfields.Time   `json:"WallTime"`
	Memory   customfields.Memory `json:"Memory"`
	ExitCode int                 `json:"ExitCode"`
	Signal   int                 `json:"Signal,omitempty"`
}
