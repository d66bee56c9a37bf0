package domain

import (
	"context"
	"strings"

	"go.trai.ch/zerr"
)

const (
	// FunctionStartRound marks the beginning of a computation round.
	// It sweeps entries unused across the last two rounds and bypasses caching.
	FunctionStartRound = "startRound"
	// FunctionFlushCache disposes every cached entry and bypasses caching.
	FunctionFlushCache = "flushCache"
)

// CallArguments identify one kernel call by value.
type CallArguments struct {
	FunctionName string         `json:"functionName"`
	Inputs       map[string]any `json:"inputs"`
	// Index distinguishes the elements of a fanned-out result. Unset for calls.
	Index any `json:"index,omitempty"`
}

// WithIndex returns a copy of the arguments keyed for one element of a fanned-out result.
func (a CallArguments) WithIndex(index any) CallArguments {
	a.Index = index
	return a
}

// IsReserved reports whether the call targets one of the bridge lifecycle functions.
func (a CallArguments) IsReserved() bool {
	return a.FunctionName == FunctionStartRound || a.FunctionName == FunctionFlushCache
}

// SplitFunctionName splits a dot path into its one or two segments.
func SplitFunctionName(name string) ([]string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, zerr.With(zerr.Wrap(ErrInvalidFunctionName, "too many path segments"), "function", name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, zerr.With(zerr.Wrap(ErrInvalidFunctionName, "empty path segment"), "function", name)
		}
	}
	return parts, nil
}

// KernelFunc is one kernel operation. It receives inputs with handle references
// already replaced by live native handles.
type KernelFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Namespace is a nested kernel module: values are KernelFunc or Namespace.
type Namespace map[string]any

// Lookup indexes into the namespace by one or two path segments.
func (n Namespace) Lookup(path ...string) (KernelFunc, bool) {
	if len(path) == 0 || len(path) > 2 {
		return nil, false
	}
	v, ok := n[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		fn, ok := v.(KernelFunc)
		return fn, ok
	}
	sub, ok := v.(Namespace)
	if !ok {
		return nil, false
	}
	fn, ok := sub[path[1]].(KernelFunc)
	return fn, ok
}
