package sandbox

import (
	"context"
	"io"
)

type ISandbox interface {
	Init() error
	Dir() string
	// Start launches process and returns handle to it, streams which are not redirected are connected to pipes
	Start(config *ExecuteConfig) (Process, error)
	// Run executes process until it finishes, streams which are not redirected are discarded
	Run(config *ExecuteConfig) *RunResult
	Cleanup()
	Delete()
}

// Process is a running process. The owner must call Wait exactly once.
type Process interface {
	// Stdin, Stdout and Stderr return parent ends of process streams, nil if the stream is redirected
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser

	// Kill kills the whole process group, closed streams of the process are seen as end of file
	Kill()
	Wait() *RunResult
	// Close releases parent ends of streams, it is called when all output is read
	Close()
}

// Factory creates a new sandbox, the caller initializes and deletes it.
// It blocks while all sandboxes are in use.
type Factory func(ctx context.Context) (ISandbox, error)
