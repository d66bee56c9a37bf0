package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/zerr"
)

// Name selects the arena backend in configuration.
const Name = "arena"

// Version is returned by the single-segment "version" function.
const Version = "arena/1"

// Namespace returns the kernel functions that allocate into a.
func Namespace(a *Arena) domain.Namespace {
	k := &kernel{arena: a}
	return domain.Namespace{
		"version": domain.KernelFunc(k.version),
		"shapes": domain.Namespace{
			"box":    domain.KernelFunc(k.box),
			"sphere": domain.KernelFunc(k.sphere),
		},
		"booleans": domain.Namespace{
			"union": domain.KernelFunc(k.union),
		},
		"transforms": domain.Namespace{
			"translate": domain.KernelFunc(k.translate),
			"scale":     domain.KernelFunc(k.scale),
		},
		"patterns": domain.Namespace{
			"array": domain.KernelFunc(k.array),
		},
		"assembly": domain.Namespace{
			"group": domain.KernelFunc(k.group),
		},
		"measure": domain.Namespace{
			"volume": domain.KernelFunc(k.volume),
		},
		"debug": domain.Namespace{
			"fail": domain.KernelFunc(k.fail),
		},
	}
}

type kernel struct {
	arena *Arena
}

func (k *kernel) version(context.Context, map[string]any) (any, error) {
	return Version, nil
}

func (k *kernel) box(_ context.Context, in map[string]any) (any, error) {
	w, err := positive(in, "width")
	if err != nil {
		return nil, err
	}
	h, err := positive(in, "height")
	if err != nil {
		return nil, err
	}
	d, err := positive(in, "depth")
	if err != nil {
		return nil, err
	}
	return k.arena.Alloc("box", w*h*d), nil
}

func (k *kernel) sphere(_ context.Context, in map[string]any) (any, error) {
	r, err := positive(in, "radius")
	if err != nil {
		return nil, err
	}
	return k.arena.Alloc("sphere", 4.0/3.0*math.Pi*r*r*r), nil
}

func (k *kernel) union(_ context.Context, in map[string]any) (any, error) {
	shapes, err := solids(in, "shapes")
	if err != nil {
		return nil, err
	}
	if len(shapes) == 0 {
		return nil, zerr.New("union needs at least one shape")
	}
	var volume float64
	for _, s := range shapes {
		volume += s.Volume
	}
	return k.arena.Alloc("union", volume), nil
}

func (k *kernel) translate(_ context.Context, in map[string]any) (any, error) {
	s, err := solid(in, "shape")
	if err != nil {
		return nil, err
	}
	if _, err := vector(in, "offset"); err != nil {
		return nil, err
	}
	return k.arena.Alloc("translate", s.Volume), nil
}

func (k *kernel) scale(_ context.Context, in map[string]any) (any, error) {
	s, err := solid(in, "shape")
	if err != nil {
		return nil, err
	}
	f, err := positive(in, "factor")
	if err != nil {
		return nil, err
	}
	return k.arena.Alloc("scale", s.Volume*f*f*f), nil
}

// array returns count copies of a shape, one handle per element.
func (k *kernel) array(_ context.Context, in map[string]any) (any, error) {
	s, err := solid(in, "shape")
	if err != nil {
		return nil, err
	}
	n, err := number(in, "count")
	if err != nil {
		return nil, err
	}
	if n < 0 || n != math.Trunc(n) {
		return nil, zerr.With(zerr.New("count must be a non-negative integer"), "count", n)
	}
	out := make([]any, int(n))
	for i := range out {
		out[i] = k.arena.Alloc("array", s.Volume)
	}
	return out, nil
}

// group unions the shapes into one aggregate and keeps each as a named member.
func (k *kernel) group(_ context.Context, in map[string]any) (any, error) {
	shapes, err := solids(in, "shapes")
	if err != nil {
		return nil, err
	}
	name, _ := in["name"].(string)
	if name == "" {
		name = "part"
	}

	var volume float64
	members := make([]domain.Member, len(shapes))
	for i, s := range shapes {
		volume += s.Volume
		members[i] = domain.Member{
			Name:   name + "-" + strconv.Itoa(i),
			Handle: k.arena.Alloc("member", s.Volume),
		}
	}
	return domain.Assembly{
		Aggregate: k.arena.Alloc("group", volume),
		Members:   members,
		Data:      map[string]any{"count": len(shapes)},
	}, nil
}

func (k *kernel) volume(_ context.Context, in map[string]any) (any, error) {
	s, err := solid(in, "shape")
	if err != nil {
		return nil, err
	}
	return s.Volume, nil
}

func (k *kernel) fail(_ context.Context, in map[string]any) (any, error) {
	msg, _ := in["message"].(string)
	if msg == "" {
		msg = "requested failure"
	}
	return nil, zerr.New(msg)
}

// number reads a numeric input as decoded from YAML, JSON or Go literals.
func number(in map[string]any, name string) (float64, error) {
	switch v := in[name].(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, zerr.With(zerr.Wrap(err, "input is not a number"), "input", name)
		}
		return f, nil
	case nil:
		return 0, zerr.With(zerr.New("missing input"), "input", name)
	default:
		return 0, zerr.With(zerr.New(fmt.Sprintf("input %q is a %T, not a number", name, v)), "input", name)
	}
}

func positive(in map[string]any, name string) (float64, error) {
	f, err := number(in, name)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, zerr.With(zerr.New(fmt.Sprintf("input %q must be positive", name)), "value", f)
	}
	return f, nil
}

func vector(in map[string]any, name string) ([3]float64, error) {
	var out [3]float64
	elems, ok := in[name].([]any)
	if !ok || len(elems) != len(out) {
		return out, zerr.New(fmt.Sprintf("input %q must be a list of 3 numbers", name))
	}
	for i, e := range elems {
		f, err := number(map[string]any{name: e}, name)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}

func solid(in map[string]any, name string) (*Solid, error) {
	s, ok := in[name].(*Solid)
	if !ok {
		return nil, zerr.New(fmt.Sprintf("input %q is not a solid", name))
	}
	if !s.IsLive() {
		return nil, zerr.New(fmt.Sprintf("input %q refers to a released solid", name))
	}
	return s, nil
}

func solids(in map[string]any, name string) ([]*Solid, error) {
	elems, ok := in[name].([]any)
	if !ok {
		return nil, zerr.New(fmt.Sprintf("input %q must be a list of solids", name))
	}
	out := make([]*Solid, len(elems))
	for i, e := range elems {
		s, err := solid(map[string]any{name: e}, name)
		if err != nil {
			return nil, zerr.With(err, "index", i)
		}
		out[i] = s
	}
	return out, nil
}
