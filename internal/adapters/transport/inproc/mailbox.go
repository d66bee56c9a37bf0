package inproc

import (
	"context"
	"sync"

	"go.trai.ch/kbridge/internal/core/domain"
)

// mailbox is an unbounded FIFO of encoded messages.
// Enqueue never blocks, so a sender cannot deadlock on a peer that is busy computing.
type mailbox struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	signal chan struct{} // buffered, size 1
	done   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		frames: make([][]byte, 0, 64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (m *mailbox) enqueue(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrTransportClosed
	}
	m.frames = append(m.frames, frame)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

// dequeue blocks until a frame is available. Frames queued before close are still delivered.
func (m *mailbox) dequeue(ctx context.Context) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.frames) > 0 {
			frame := m.frames[0]
			m.frames[0] = nil
			m.frames = m.frames[1:]
			m.mu.Unlock()
			return frame, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return nil, domain.ErrTransportClosed
		}

		select {
		case <-m.signal:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}
