// Package progrock provides the Progrock implementation of the telemetry adapter.
package progrock

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/kbridge/internal/core/ports"
)

// Recorder implements the ports.Telemetry interface using the vito/progrock library.
type Recorder struct {
	w       progrock.Writer
	rec     *progrock.Recorder
	summary *Summary
	seq     atomic.Uint64
}

// New creates a new Recorder that keeps a summary of the recorded calls.
func New() *Recorder {
	return NewRecorder(NewSummary())
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	r := &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
	if s, ok := w.(*Summary); ok {
		r.summary = s
	}
	return r
}

// Record starts recording a new vertex.
// Repeated calls of one function get distinct vertices.
func (r *Recorder) Record(ctx context.Context, name string) (context.Context, ports.Vertex) {
	d := digest.FromString(name + "#" + strconv.FormatUint(r.seq.Add(1), 10))
	v := r.rec.Vertex(d, name)
	return ctx, &Vertex{vertex: v}
}

// Totals returns the summary of the recorded vertices.
// It is empty when the recorder writes somewhere else.
func (r *Recorder) Totals() Totals {
	if r.summary == nil {
		return Totals{}
	}
	return r.summary.Totals()
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

var _ ports.Telemetry = (*Recorder)(nil)
