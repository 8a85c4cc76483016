package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Streams holds parent ends of pipes created for process standard streams.
// Child ends must be closed right after the process starts, so that end of file
// is seen as soon as the process exits.
type Streams struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	childEnds  []*os.File
	parentEnds []io.Closer
}

// OpenStreams connects every standard stream of cmd which is not set yet to a new pipe.
// With config.Unbuffered stdout is connected to a pseudo-terminal in raw mode,
// so that the process stdio treats it as interactive and flushes it on every write.
func OpenStreams(cmd *exec.Cmd, config *ExecuteConfig) (*Streams, error) {
	s := &Streams{}
	if cmd.Stdin == nil {
		r, w, err := os.Pipe()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("can not create stdin pipe, error: %v", err)
		}
		cmd.Stdin = r
		s.childEnds = append(s.childEnds, r)
		s.parentEnds = append(s.parentEnds, w)
		s.stdin = w
	}

	if cmd.Stdout == nil {
		var err error
		if config.Unbuffered {
			err = s.openPty(cmd)
		} else {
			var r, w *os.File
			r, w, err = os.Pipe()
			if err == nil {
				cmd.Stdout = w
				s.childEnds = append(s.childEnds, w)
				s.parentEnds = append(s.parentEnds, r)
				s.stdout = r
			}
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("can not create stdout stream, error: %v", err)
		}
	}

	if config.StderrToStdout {
		cmd.Stderr = cmd.Stdout
	} else if cmd.Stderr == nil {
		r, w, err := os.Pipe()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("can not create stderr pipe, error: %v", err)
		}
		cmd.Stderr = w
		s.childEnds = append(s.childEnds, w)
		s.parentEnds = append(s.parentEnds, r)
		s.stderr = r
	}
	return s, nil
}

func (s *Streams) openPty(cmd *exec.Cmd) error {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return err
	}
	// No echo and no \n -> \r\n translation
	_, err = term.MakeRaw(int(tty.Fd()))
	if err != nil {
		ptmx.Close()
		tty.Close()
		return err
	}
	cmd.Stdout = tty
	s.childEnds = append(s.childEnds, tty)
	s.parentEnds = append(s.parentEnds, ptmx)
	s.stdout = &ptyReader{ptmx}
	return nil
}

func (s *Streams) Stdin() io.WriteCloser {
	return s.stdin
}

func (s *Streams) Stdout() io.ReadCloser {
	return s.stdout
}

func (s *Streams) Stderr() io.ReadCloser {
	return s.stderr
}

// CloseChildEnds must be called after the process is started
func (s *Streams) CloseChildEnds() {
	for _, f := range s.childEnds {
		f.Close()
	}
	s.childEnds = nil
}

// Close releases parent ends, readers blocked on them return even if a leftover child keeps the other end open
func (s *Streams) Close() {
	s.CloseChildEnds()
	for _, c := range s.parentEnds {
		c.Close()
	}
	s.parentEnds = nil
}

// LimitStdout makes stdout report end of file after limit bytes, onExceed is called once when it happens
func (s *Streams) LimitStdout(limit uint64, onExceed func()) {
	if s.stdout == nil || limit == 0 {
		return
	}
	s.stdout = &limitedReader{
		ReadCloser: s.stdout,
		remaining:  limit,
		onExceed:   sync.OnceFunc(onExceed),
	}
}

// Reading pty master after all slave ends are closed fails with EIO instead of EOF
type ptyReader struct {
	*os.File
}

func (r *ptyReader) Read(p []byte) (int, error) {
	n, err := r.File.Read(p)
	if err != nil && errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

type limitedReader struct {
	io.ReadCloser
	remaining uint64
	onExceed  func()
}

func (r *limitedReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		// Reading one more byte to tell the limit from a clean end of stream
		var b [1]byte
		n, err := r.ReadCloser.Read(b[:])
		if n > 0 {
			r.onExceed()
		}
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	if uint64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= uint64(n)
	return n, err
}
