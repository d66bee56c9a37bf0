// Package stream implements a transport of newline-delimited JSON messages over
// a byte stream, such as the stdio pipes of a worker process.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// maxFrameSize bounds a single encoded message.
const maxFrameSize = 64 << 20

// Transport implements ports.Transport over an io.Reader and io.Writer pair.
type Transport struct {
	logger  ports.Logger
	closers []io.Closer

	wmu sync.Mutex
	enc *json.Encoder

	frames    chan domain.Message
	readErr   error
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger reports malformed frames.
func WithLogger(logger ports.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithClosers adds closers that are closed, in order, when the transport is closed.
func WithClosers(closers ...io.Closer) Option {
	return func(t *Transport) { t.closers = append(t.closers, closers...) }
}

// New starts reading messages from r and writes messages to w.
func New(r io.Reader, w io.Writer, opts ...Option) *Transport {
	t := &Transport{
		enc:    json.NewEncoder(w),
		frames: make(chan domain.Message, 64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.read(r)
	return t
}

func (t *Transport) read(r io.Reader) {
	defer close(t.frames)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg domain.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			if t.logger != nil {
				t.logger.Warn("dropping malformed frame", "error", err)
			}
			continue
		}
		select {
		case t.frames <- msg:
		case <-t.done:
			return
		}
	}
	// A pipe closed by the process owner ends the stream like EOF does.
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
		t.readErr = zerr.Wrap(err, "failed to read message stream")
	}
}

// Send writes msg as one JSON line.
func (t *Transport) Send(_ context.Context, msg domain.Message) error {
	select {
	case <-t.done:
		return domain.ErrTransportClosed
	default:
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if err := t.enc.Encode(msg); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return domain.ErrTransportClosed
		}
		return zerr.With(zerr.Wrap(err, "failed to write message"), "id", msg.ID)
	}
	return nil
}

// Receive returns the next message. It reports domain.ErrTransportClosed at end of stream.
func (t *Transport) Receive(ctx context.Context) (domain.Message, error) {
	select {
	case msg, ok := <-t.frames:
		if !ok {
			if t.readErr != nil {
				return domain.Message{}, t.readErr
			}
			return domain.Message{}, domain.ErrTransportClosed
		}
		return msg, nil
	case <-t.done:
		return domain.Message{}, domain.ErrTransportClosed
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

// Close stops the transport and closes the configured closers.
func (t *Transport) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		close(t.done)
		for _, c := range t.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

var _ ports.Transport = (*Transport)(nil)
