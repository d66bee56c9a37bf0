// Package dispatcher implements the worker side of the bridge.
//
// A Dispatcher reads call requests from its transport one at a time, resolves
// handle references against its object cache, invokes the kernel function by
// dot path and replies with the reply form of the cached result.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"unicode/utf8"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/kbridge/internal/engine/objectcache"
	"go.trai.ch/zerr"
)

// maxRenderedInputs bounds the input rendering attached to kernel failures.
const maxRenderedInputs = 512

// Dispatcher serves kernel calls for one kernel backend.
// It owns its cache exclusively and handles requests strictly in arrival order.
type Dispatcher struct {
	transport ports.Transport
	kernel    ports.Kernel
	kind      string
	cache     *objectcache.Cache
	logger    ports.Logger
	telemetry ports.Telemetry
	threshold int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger ports.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithTelemetry records one vertex per kernel call.
func WithTelemetry(telemetry ports.Telemetry) Option {
	return func(d *Dispatcher) { d.telemetry = telemetry }
}

// WithFlushThreshold sets the entry count past which a round start flushes the cache.
// Zero disables the threshold flush.
func WithFlushThreshold(n int) Option {
	return func(d *Dispatcher) { d.threshold = n }
}

// New creates a Dispatcher serving backend's kernel over transport.
func New(
	transport ports.Transport,
	backend ports.KernelBackend,
	cache *objectcache.Cache,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		kernel:    backend.Kernel(),
		kind:      backend.Handles().Kind(),
		cache:     cache,
		logger:    ports.NopLogger{},
		telemetry: nopTelemetry{},
		threshold: domain.DefaultFlushThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cache returns the cache owned by the dispatcher.
func (d *Dispatcher) Cache() *objectcache.Cache {
	return d.cache
}

// Serve announces the worker and handles requests until the transport closes.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if err := d.transport.Send(ctx, domain.NewSignal(domain.SignalInitialised)); err != nil {
		return zerr.Wrap(err, "failed to announce worker")
	}

	for {
		msg, err := d.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrTransportClosed) {
				return nil
			}
			return zerr.Wrap(err, "failed to receive request")
		}

		if !msg.IsRequest() {
			d.logger.Debug("ignoring message that is not a request", "id", msg.ID, "signal", string(msg.Signal))
			continue
		}

		if err := d.transport.Send(ctx, domain.NewSignal(domain.SignalBusy)); err != nil {
			d.logger.Debug("failed to send busy signal", "error", err)
		}

		reply := d.Handle(ctx, msg)
		err = d.transport.Send(ctx, reply)
		if err != nil && encodingFailure(err) {
			// The reply alone is at fault; the worker keeps serving.
			d.logger.Warn("failed to encode reply", "id", msg.ID, "error", err)
			err = d.transport.Send(ctx, domain.NewErrorReply(msg.ID,
				kernelFailure(msg.CallArguments(), zerr.Wrap(err, "result cannot be encoded"))))
		}
		if err != nil {
			if errors.Is(err, domain.ErrTransportClosed) {
				return nil
			}
			return zerr.With(zerr.Wrap(err, "failed to send reply"), "id", msg.ID)
		}
	}
}

// encodingFailure reports whether err comes from encoding a message rather than from the transport.
func encodingFailure(err error) bool {
	var (
		unsupportedValue *json.UnsupportedValueError
		unsupportedType  *json.UnsupportedTypeError
		marshaler        *json.MarshalerError
	)
	return errors.As(err, &unsupportedValue) ||
		errors.As(err, &unsupportedType) ||
		errors.As(err, &marshaler)
}

// Handle executes one request and returns its reply.
func (d *Dispatcher) Handle(ctx context.Context, msg domain.Message) domain.Message {
	args := msg.CallArguments()

	result, err := d.dispatch(ctx, args)
	if err != nil {
		d.logger.Debug("call failed", "id", msg.ID, "function", args.FunctionName, "error", err)
		return domain.NewErrorReply(msg.ID, err)
	}
	return domain.NewReply(msg.ID, result)
}

func (d *Dispatcher) dispatch(ctx context.Context, args domain.CallArguments) (any, error) {
	switch args.FunctionName {
	case domain.FunctionStartRound:
		d.startRound()
		return map[string]any{}, nil
	case domain.FunctionFlushCache:
		n := d.cache.Flush()
		d.logger.Debug("flushed cache", "entries", n)
		return map[string]any{}, nil
	}

	path, err := domain.SplitFunctionName(args.FunctionName)
	if err != nil {
		return nil, err
	}
	fn, ok := d.kernel.Lookup(path...)
	if !ok {
		return nil, zerr.Wrap(domain.ErrUnknownFunction, args.FunctionName)
	}

	inputs, err := d.resolve(args)
	if err != nil {
		return nil, err
	}

	ctx, vertex := d.telemetry.Record(ctx, args.FunctionName)
	res, err := d.cache.CacheOp(args, func() (any, error) {
		return invoke(ctx, fn, args, inputs)
	})
	if err == nil {
		err = d.checkEncodable(args, res)
	}
	if res.Hit {
		vertex.Cached()
	}
	vertex.Complete(err)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// checkEncodable fails a result that cannot cross the wire and drops it from the cache.
func (d *Dispatcher) checkEncodable(args domain.CallArguments, res objectcache.Result) error {
	if _, err := json.Marshal(res.Value); err != nil {
		n := d.cache.Discard(res.Key)
		d.logger.Debug("discarded result that cannot be encoded", "function", args.FunctionName, "entries", n)
		return kernelFailure(args, zerr.Wrap(err, "result cannot be encoded"))
	}
	return nil
}

// startRound flushes an oversized cache, then sweeps entries unused for a round.
func (d *Dispatcher) startRound() {
	if d.threshold > 0 {
		if n := d.cache.Len(); n > d.threshold {
			d.cache.Flush()
			d.logger.Info("cache exceeded flush threshold", "entries", n, "threshold", d.threshold)
		}
	}
	d.cache.Sweep()
}

// resolve replaces handle references in the call inputs with their live objects.
// References are recognised at the top level and one level inside sequences.
func (d *Dispatcher) resolve(args domain.CallArguments) (map[string]any, error) {
	if len(args.Inputs) == 0 {
		return args.Inputs, nil
	}

	out := make(map[string]any, len(args.Inputs))
	for _, name := range slices.Sorted(maps.Keys(args.Inputs)) {
		v := args.Inputs[name]

		if ref, ok := domain.AsHandleReference(v); ok {
			obj, err := d.lookup(args.FunctionName, name, ref)
			if err != nil {
				return nil, err
			}
			out[name] = obj
			continue
		}

		elems, ok := sequence(v)
		if !ok {
			out[name] = v
			continue
		}
		resolved := make([]any, len(elems))
		found := false
		for i, elem := range elems {
			ref, ok := domain.AsHandleReference(elem)
			if !ok {
				resolved[i] = elem
				continue
			}
			obj, err := d.lookup(args.FunctionName, fmt.Sprintf("%s[%d]", name, i), ref)
			if err != nil {
				return nil, err
			}
			resolved[i] = obj
			found = true
		}
		if found {
			out[name] = resolved
		} else {
			out[name] = v
		}
	}
	return out, nil
}

func (d *Dispatcher) lookup(function, input string, ref domain.HandleReference) (any, error) {
	if ref.Kind != d.kind {
		return nil, zerr.With(
			zerr.Wrap(domain.ErrUnresolvedReference,
				fmt.Sprintf("%s: input %q references a %q handle, worker holds %q", function, input, ref.Kind, d.kind)),
			"function", function,
		)
	}

	entry, err := d.cache.CheckCache(ref.Hash)
	if err != nil {
		return nil, zerr.With(
			zerr.Wrap(domain.ErrUnresolvedReference,
				fmt.Sprintf("%s: input %q references %s which is no longer cached", function, input, ref.Hash)),
			"function", function,
		)
	}
	return entry.Payload, nil
}

func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []domain.HandleReference:
		out := make([]any, len(s))
		for i, ref := range s {
			out[i] = ref
		}
		return out, true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// invoke runs the kernel function, turning failures and panics into domain.ErrKernelFailure.
func invoke(ctx context.Context, fn domain.KernelFunc, args domain.CallArguments, inputs map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, kernelFailure(args, fmt.Errorf("panic: %v", r))
		}
	}()

	out, err = fn(ctx, inputs)
	if err != nil {
		return nil, kernelFailure(args, err)
	}
	return out, nil
}

func kernelFailure(args domain.CallArguments, cause error) error {
	return zerr.With(
		zerr.Wrap(domain.ErrKernelFailure,
			fmt.Sprintf("%s with inputs %s: %v", args.FunctionName, renderInputs(args.Inputs), cause)),
		"function", args.FunctionName,
	)
}

// renderInputs renders call inputs for diagnostics on a best-effort basis.
func renderInputs(inputs map[string]any) string {
	var s string
	if b, err := json.Marshal(inputs); err == nil {
		s = string(b)
	} else {
		s = fmt.Sprintf("%v", inputs)
	}
	return truncate(s, maxRenderedInputs)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

type nopTelemetry struct{}

func (nopTelemetry) Record(ctx context.Context, _ string) (context.Context, ports.Vertex) {
	return ctx, nopVertex{}
}

func (nopTelemetry) Close() error { return nil }

type nopVertex struct{}

func (nopVertex) Log(domain.LogLevel, string) {}
func (nopVertex) Complete(error)              {}
func (nopVertex) Cached()                     {}
