// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/kbridge/internal/core/domain"
)

// Transport is one end of a bidirectional, FIFO, asynchronous message channel.
//
//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=mocks/mock_transport.go -package=mocks
type Transport interface {
	// Send delivers a message to the peer. It does not wait for any reply.
	Send(ctx context.Context, msg domain.Message) error

	// Receive blocks until the next inbound message arrives.
	// It returns domain.ErrTransportClosed once the transport is closed and drained.
	Receive(ctx context.Context) (domain.Message, error)

	// Close releases the transport. Pending Receive calls return domain.ErrTransportClosed.
	Close() error
}

// WorkerLauncher starts an out-of-process worker and connects to it.
type WorkerLauncher interface {
	// Launch starts the worker command. Closing the returned transport stops the worker.
	Launch(ctx context.Context, command []string) (Transport, error)
}
