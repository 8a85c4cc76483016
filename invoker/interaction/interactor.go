package interaction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

const (
	chunkSize   = 4096
	chunkBuffer = 64

	defaultDelims = " \t\n\r\v\f"
)

// Interactor is a token level view of a submission process streams used by interactive graders.
//
// Reads are served from a background pump, so pending output may be drained without blocking.
// The first malformed or out of range value fails the interaction, all later reads return the same error.
type Interactor struct {
	ctx   context.Context
	stdin io.WriteCloser

	chunks   chan []byte
	readErr  error // valid after chunks is closed
	done     chan struct{}
	stopOnce sync.Once

	buf     []byte
	eof     bool
	failure *ProtocolError
}

func New(ctx context.Context, stdin io.WriteCloser, stdout io.Reader) *Interactor {
	it := &Interactor{
		ctx:    ctx,
		stdin:  stdin,
		chunks: make(chan []byte, chunkBuffer),
		done:   make(chan struct{}),
	}
	go it.pump(stdout)
	return it
}

func (it *Interactor) pump(stdout io.Reader) {
	defer close(it.chunks)
	for {
		chunk := make([]byte, chunkSize)
		n, err := stdout.Read(chunk)
		if n > 0 {
			select {
			case it.chunks <- chunk[:n]:
			case <-it.done:
				// nobody reads anymore, output is discarded until the process closes it
			}
		}
		if err != nil {
			if err != io.EOF {
				it.readErr = err
			}
			return
		}
	}
}

// Finish stops delivering output, the owner calls it once the interaction is over.
// The rest of the stream is discarded, so the process never blocks on a full pipe.
func (it *Interactor) Finish() {
	it.stopOnce.Do(func() { close(it.done) })
}

// Failure returns protocol error which failed the interaction, if any
func (it *Interactor) Failure() *ProtocolError {
	return it.failure
}

func (it *Interactor) fail(format string, values ...any) *ProtocolError {
	it.failure = &ProtocolError{Message: fmt.Sprintf(format, values...)}
	return it.failure
}

// fill appends the next chunk to the buffer, it returns io.EOF when the stream is over
func (it *Interactor) fill() error {
	if it.eof {
		return io.EOF
	}
	select {
	case chunk, ok := <-it.chunks:
		if !ok {
			it.eof = true
			if it.readErr != nil {
				return fmt.Errorf("can not read submission output, error: %w", it.readErr)
			}
			return io.EOF
		}
		it.buf = append(it.buf, chunk...)
		return nil
	case <-it.ctx.Done():
		return it.ctx.Err()
	}
}

// drain appends chunks which are already available
func (it *Interactor) drain() {
	for !it.eof {
		select {
		case chunk, ok := <-it.chunks:
			if !ok {
				it.eof = true
				return
			}
			it.buf = append(it.buf, chunk...)
		default:
			return
		}
	}
}

// Read returns all output available now, waiting for at least one byte.
// io.EOF is returned when the stream is closed and nothing is left.
func (it *Interactor) Read() ([]byte, error) {
	if it.failure != nil {
		return nil, it.failure
	}
	if len(it.buf) == 0 {
		if err := it.fill(); err != nil {
			return nil, err
		}
	}
	it.drain()
	data := it.buf
	it.buf = nil
	return data, nil
}

// ReadLine returns the next line. The last line of the stream may have no line feed.
func (it *Interactor) ReadLine(stripNewline bool) (string, error) {
	if it.failure != nil {
		return "", it.failure
	}
	scanned := 0
	for {
		if i := bytes.IndexByte(it.buf[scanned:], '\n'); i >= 0 {
			end := scanned + i + 1
			line := string(it.buf[:end])
			it.buf = it.buf[end:]
			if stripNewline {
				line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			}
			return line, nil
		}
		scanned = len(it.buf)
		err := it.fill()
		if err == io.EOF && len(it.buf) > 0 {
			line := string(it.buf)
			it.buf = nil
			return line, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// ReadToken returns the next token separated by delimiters, whitespace by default
func (it *Interactor) ReadToken(opts ...ReadOption) (string, error) {
	if it.failure != nil {
		return "", it.failure
	}
	o := newReadOptions(opts)
	isDelim := func(b byte) bool {
		return strings.IndexByte(o.delims, b) >= 0
	}

	// skip leading delimiters
	for {
		start := 0
		for start < len(it.buf) && isDelim(it.buf[start]) {
			start++
		}
		it.buf = it.buf[start:]
		if len(it.buf) > 0 {
			break
		}
		if err := it.fill(); err != nil {
			return "", it.endOfStream(err)
		}
	}

	scanned := 0
	for {
		for scanned < len(it.buf) && !isDelim(it.buf[scanned]) {
			scanned++
		}
		if scanned < len(it.buf) {
			break
		}
		err := it.fill()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	token := string(it.buf[:scanned])
	it.buf = it.buf[scanned:]
	return token, nil
}

func (it *Interactor) endOfStream(err error) error {
	if err == io.EOF {
		return it.fail("unexpected end of submission output")
	}
	return err
}

// ReadInt reads a token as a decimal integer, IntRange option bounds the value
func (it *Interactor) ReadInt(opts ...ReadOption) (int64, error) {
	token, err := it.ReadToken(opts...)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, it.fail("expected integer, got %q", truncate(token))
	}
	o := newReadOptions(opts)
	if o.intRange && (value < o.intLo || value > o.intHi) {
		return 0, it.fail("integer %d is out of range [%d, %d]", value, o.intLo, o.intHi)
	}
	return value, nil
}

// ReadFloat reads a token as a finite float, FloatRange option bounds the value
func (it *Interactor) ReadFloat(opts ...ReadOption) (float64, error) {
	token, err := it.ReadToken(opts...)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, it.fail("expected float, got %q", truncate(token))
	}
	o := newReadOptions(opts)
	if o.floatRange && (value < o.floatLo || value > o.floatHi) {
		return 0, it.fail("float %v is out of range [%v, %v]", value, o.floatLo, o.floatHi)
	}
	return value, nil
}

// Write sends values to submission stdin formatted as fmt.Fprint does
func (it *Interactor) Write(values ...any) error {
	_, err := fmt.Fprint(it.stdin, values...)
	return err
}

// WriteLine sends values to submission stdin formatted as fmt.Fprintln does
func (it *Interactor) WriteLine(values ...any) error {
	_, err := fmt.Fprintln(it.stdin, values...)
	return err
}

// Close closes submission stdin, reading is still possible
func (it *Interactor) Close() error {
	return it.stdin.Close()
}

func truncate(s string) string {
	const maxLength = 64
	if len(s) > maxLength {
		return s[:maxLength] + "..."
	}
	return s
}
