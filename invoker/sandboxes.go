package invoker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"grading_system/invoker/sandbox"
	"grading_system/invoker/sandbox/isolate"
	"grading_system/invoker/sandbox/simple"
	"grading_system/lib/logger"

	"github.com/google/uuid"
)

// pooledSandbox returns its slot to the pool when it is deleted
type pooledSandbox struct {
	sandbox.ISandbox
	release func()
}

func (s *pooledSandbox) Delete() {
	s.ISandbox.Delete()
	s.release()
}

// NewSandbox creates sandbox of configured type, it waits while all slots are taken.
// Delete of the returned sandbox frees the slot.
func (i *Invoker) NewSandbox(ctx context.Context) (sandbox.ISandbox, error) {
	var slot int
	select {
	case slot = <-i.slots:
	case <-ctx.Done():
		return nil, fmt.Errorf("can not wait for free sandbox, error: %v", ctx.Err())
	}
	release := sync.OnceFunc(func() { i.slots <- slot })

	s, err := i.newSandbox(slot)
	if err != nil {
		release()
		return nil, err
	}
	return &pooledSandbox{ISandbox: s, release: release}, nil
}

func (i *Invoker) newSandbox(slot int) (sandbox.ISandbox, error) {
	err := os.MkdirAll(i.Config.SandboxHomePath, 0755)
	if err != nil {
		return nil, fmt.Errorf("can not create sandbox home dir, error: %v", err)
	}

	var s sandbox.ISandbox
	switch i.Config.SandboxType {
	case "simple":
		s, err = simple.NewSandbox(filepath.Join(i.Config.SandboxHomePath, uuid.NewString()))
	case "isolate":
		s, err = isolate.NewSandbox(i.Config.IsolateBoxID+slot, i.Config.SandboxHomePath)
	default:
		logger.Panic("Unsupported sandbox type: %s", i.Config.SandboxType)
	}
	if err != nil {
		return nil, fmt.Errorf("can not create %s sandbox in slot %d, error: %v", i.Config.SandboxType, slot, err)
	}
	return s, nil
}
