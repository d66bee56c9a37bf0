package ports

import "go.trai.ch/kbridge/internal/core/domain"

// Kernel is a geometry kernel module addressed by dot-path segments.
type Kernel interface {
	// Lookup returns the function at the given one or two path segments.
	Lookup(path ...string) (domain.KernelFunc, bool)
}

// NativeHandle is a foreign-owned resource that must be released explicitly.
//
//go:generate go run go.uber.org/mock/mockgen -source=kernel.go -destination=mocks/mock_kernel.go -package=mocks
type NativeHandle interface {
	// IsLive reports whether the underlying resource is still allocated.
	IsLive() bool

	// Dispose releases the resource. Releasing twice returns domain.ErrAlreadyDisposed.
	Dispose() error
}

// HandleBackend is the per-kernel capability that recognises native handles.
type HandleBackend interface {
	// Kind is the discriminant carried by references to this backend's handles.
	Kind() string

	// Handle returns v as a native handle when this backend owns it.
	Handle(v any) (NativeHandle, bool)
}

// KernelBackend bundles a kernel with its handle capability.
// Backends are selected by static configuration.
type KernelBackend interface {
	Name() string
	Kernel() Kernel
	Handles() HandleBackend
}
