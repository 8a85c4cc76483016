package simple

import (
	"time"

	"grading_system/invoker/sandbox"

	"golang.org/x/sys/unix"
)

// applyLimits sets rlimits of a started process. Cpu limit is rounded up to whole seconds
// plus one, exact time is checked after the process exits.
func applyLimits(pid int, config *sandbox.ExecuteConfig) error {
	if config.TimeLimit > 0 {
		seconds := uint64(time.Duration(config.TimeLimit).Seconds()) + 2
		err := unix.Prlimit(pid, unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds - 1, Max: seconds}, nil)
		if err != nil {
			return err
		}
	}
	if config.MaxOutputSize > 0 {
		size := uint64(config.MaxOutputSize)
		err := unix.Prlimit(pid, unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: size, Max: size}, nil)
		if err != nil {
			return err
		}
	}
	if config.MaxOpenFiles > 0 {
		err := unix.Prlimit(pid, unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: config.MaxOpenFiles, Max: config.MaxOpenFiles}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}
