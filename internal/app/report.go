package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"unicode/utf8"

	"go.trai.ch/kbridge/internal/adapters/telemetry/progrock"
	"go.trai.ch/kbridge/internal/engine/objectcache"
)

// maxRenderedResult bounds the result rendering of one report line.
const maxRenderedResult = 120

// CallOutcome is the result of one scenario call.
type CallOutcome struct {
	Round    int    `json:"round"`
	Name     string `json:"name,omitempty"`
	Function string `json:"function"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the call was rejected.
func (o CallOutcome) Failed() bool {
	return o.Error != ""
}

// Report summarises a scenario run.
type Report struct {
	Scenario  string             `json:"scenario"`
	Outcomes  []CallOutcome      `json:"outcomes"`
	Cache     *objectcache.Stats `json:"cache,omitempty"`
	Telemetry *progrock.Totals   `json:"telemetry,omitempty"`
}

// Failures returns the number of rejected calls.
func (r *Report) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// Print writes the report as an aligned table.
func (r *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	_, _ = fmt.Fprintf(tw, "scenario %s\n", r.Scenario)
	for _, o := range r.Outcomes {
		name := o.Name
		if name == "" {
			name = "-"
		}
		result := "error: " + o.Error
		if !o.Failed() {
			result = render(o.Result)
		}
		_, _ = fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", o.Round, name, o.Function, result)
	}
	if r.Cache != nil {
		_, _ = fmt.Fprintf(tw, "cache\t%d entries, %d handles, %d hits, %d misses, %d evictions, %d flushes\n",
			r.Cache.Entries, r.Cache.Handles, r.Cache.Hits, r.Cache.Misses, r.Cache.Evictions, r.Cache.Flushes)
	}
	if r.Telemetry != nil {
		_, _ = fmt.Fprintf(tw, "calls\t%d recorded, %d cached, %d failed\n",
			r.Telemetry.Calls, r.Telemetry.Cached, r.Telemetry.Failed)
	}
	_, _ = fmt.Fprintf(tw, "failures\t%d\n", r.Failures())
	return tw.Flush()
}

func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if len(s) <= maxRenderedResult {
		return s
	}
	n := maxRenderedResult
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// totaler is implemented by telemetry that keeps call totals.
type totaler interface {
	Totals() progrock.Totals
}
