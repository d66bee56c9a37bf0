package app

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/engine/correlator"
	"go.trai.ch/zerr"
)

// binding is the eventual result of a named scenario call.
type binding struct {
	future  *correlator.Future
	settled bool
	value   any
	err     error
}

func (b *binding) await(ctx context.Context) (any, error) {
	if !b.settled {
		b.value, b.err = b.future.Await(ctx)
		b.settled = true
	}
	return b.value, b.err
}

// driver issues scenario calls, pipelining every call whose inputs do not wait
// on a result that is still in flight.
type driver struct {
	c        *correlator.Correlator
	bindings map[string]*binding
}

func newDriver(c *correlator.Correlator) *driver {
	return &driver{c: c, bindings: make(map[string]*binding)}
}

type issued struct {
	outcome *CallOutcome
	b       *binding
}

// round runs the calls of one round and returns their outcomes in call order.
func (d *driver) round(ctx context.Context, n int, round domain.Round) ([]CallOutcome, error) {
	calls := make([]issued, 0, len(round.Calls))
	for _, call := range round.Calls {
		outcome := &CallOutcome{Round: n, Name: call.Name, Function: call.Function}

		inputs, err := d.substitute(ctx, call.Inputs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			outcome.Error = err.Error()
			d.bind(call.Name, &binding{settled: true, err: err})
			calls = append(calls, issued{outcome: outcome})
			continue
		}
		if inputs == nil {
			inputs = map[string]any{}
		}

		f, err := d.c.Issue(ctx, call.Function, inputs)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to issue call"), "round", n)
		}
		b := &binding{future: f}
		d.bind(call.Name, b)
		calls = append(calls, issued{outcome: outcome, b: b})
	}

	outcomes := make([]CallOutcome, len(calls))
	for i, call := range calls {
		if call.b != nil {
			v, err := call.b.await(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				call.outcome.Error = err.Error()
			} else {
				call.outcome.Result = v
			}
		}
		outcomes[i] = *call.outcome
	}
	return outcomes, nil
}

func (d *driver) bind(name string, b *binding) {
	if name != "" {
		d.bindings[name] = b
	}
}

// substitute replaces "$name" references with the results they name.
// A reference inside a list that yields a list is spliced into it.
func (d *driver) substitute(ctx context.Context, v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, zerr.New("call inputs must be a record")
	}
	out, err := d.value(ctx, m)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func (d *driver) value(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case string:
		if _, _, ok := domain.ScenarioRefPath(val); ok {
			return d.lookup(ctx, val)
		}
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			sub, err := d.value(ctx, val[k])
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(val))
		for _, elem := range val {
			sub, err := d.value(ctx, elem)
			if err != nil {
				return nil, err
			}
			if _, _, isRef := domain.ScenarioRefPath(elem); isRef {
				if spliced, ok := sub.([]any); ok {
					out = append(out, spliced...)
					continue
				}
			}
			out = append(out, sub)
		}
		return out, nil
	default:
		return v, nil
	}
}

func (d *driver) lookup(ctx context.Context, ref string) (any, error) {
	name, path, _ := domain.ScenarioRefPath(ref)
	b, ok := d.bindings[name]
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidScenario, "reference to unknown call"), "ref", ref)
	}

	v, err := b.await(ctx)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "input depends on failed call $"+name), "ref", ref)
	}

	for _, field := range path {
		next, ok := selectField(v, field)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidScenario, "result has no field "+strconv.Quote(field)), "ref", ref)
		}
		v = next
	}
	return v, nil
}

// selectField indexes into a decoded result: a record by key, a list by position,
// or a list of named members by name.
func selectField(v any, field string) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		sub, ok := val[field]
		return sub, ok
	case []any:
		if i, err := strconv.Atoi(field); err == nil {
			if i < 0 || i >= len(val) {
				return nil, false
			}
			return val[i], true
		}
		for _, elem := range val {
			member, ok := elem.(map[string]any)
			if !ok || member["name"] != field {
				continue
			}
			if ref, ok := member["ref"]; ok {
				return ref, true
			}
			return member, true
		}
	}
	return nil, false
}
