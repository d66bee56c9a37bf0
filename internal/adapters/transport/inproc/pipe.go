// Package inproc provides an in-process transport pair.
//
// Messages are JSON encoded on Send and decoded on Receive, so both ends only
// ever share values that survive the same serialization boundary as a real
// out-of-process worker.
package inproc

import (
	"context"
	"encoding/json"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// Endpoint is one end of an in-process transport.
type Endpoint struct {
	in  *mailbox
	out *mailbox
}

// Pipe returns two connected endpoints. Closing either end closes both directions.
func Pipe() (*Endpoint, *Endpoint) {
	a, b := newMailbox(), newMailbox()
	return &Endpoint{in: a, out: b}, &Endpoint{in: b, out: a}
}

// Send encodes msg and queues it for the peer.
func (e *Endpoint) Send(_ context.Context, msg domain.Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to encode message"), "id", msg.ID)
	}
	return e.out.enqueue(frame)
}

// Receive returns the next message from the peer.
func (e *Endpoint) Receive(ctx context.Context) (domain.Message, error) {
	frame, err := e.in.dequeue(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Close closes both directions. Queued messages remain readable.
func (e *Endpoint) Close() error {
	e.in.close()
	e.out.close()
	return nil
}

var _ ports.Transport = (*Endpoint)(nil)
