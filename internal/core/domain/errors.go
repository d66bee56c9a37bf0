package domain

import "go.trai.ch/zerr"

var (
	// ErrCacheMiss is returned when a cache key has no live entry.
	ErrCacheMiss = zerr.New("cache miss")

	// ErrAlreadyDisposed is returned by a native handle that was released before.
	ErrAlreadyDisposed = zerr.New("handle already disposed")

	// ErrUnresolvedReference is returned when a call input references an entry that is no longer cached.
	ErrUnresolvedReference = zerr.New("unresolved handle reference")

	// ErrKernelFailure is returned when the kernel function failed or panicked.
	ErrKernelFailure = zerr.New("kernel computation failed")

	// ErrUnknownFunction is returned when a function name does not resolve to a kernel function.
	ErrUnknownFunction = zerr.New("unknown kernel function")

	// ErrInvalidFunctionName is returned when a function name is not a one or two segment dot path.
	ErrInvalidFunctionName = zerr.New("invalid function name")

	// ErrRemoteCall is returned to callers whose request was answered with an error reply.
	ErrRemoteCall = zerr.New("remote call failed")

	// ErrTransportClosed is returned when a transport was closed while in use.
	ErrTransportClosed = zerr.New("transport closed")

	// ErrUnhashableValue is returned when call arguments contain a value without a canonical form.
	ErrUnhashableValue = zerr.New("value cannot be canonicalized")

	// ErrUnknownBackend is returned when the configured kernel backend is not available.
	ErrUnknownBackend = zerr.New("unknown kernel backend")

	// ErrKeyCollision is reported when two different canonical forms produce the same cache key.
	ErrKeyCollision = zerr.New("cache key collision")

	// ErrInvalidScenario is returned when a scenario file cannot be executed.
	ErrInvalidScenario = zerr.New("invalid scenario")

	// ErrInvalidMessage is returned when a transport payload is not a bridge message.
	ErrInvalidMessage = zerr.New("invalid bridge message")
)
