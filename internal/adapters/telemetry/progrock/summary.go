package progrock

import (
	"sync"

	"github.com/vito/progrock"
)

// Totals counts recorded vertices by outcome.
type Totals struct {
	Calls     int `json:"calls"`
	Cached    int `json:"cached"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// Summary is a progrock.Writer that folds status updates into per-vertex outcomes.
type Summary struct {
	mu       sync.Mutex
	vertices map[string]*progrock.Vertex
	order    []string
	closed   bool
}

// NewSummary creates an empty Summary.
func NewSummary() *Summary {
	return &Summary{vertices: make(map[string]*progrock.Vertex)}
}

// WriteStatus records the latest state of every vertex in the update.
func (s *Summary) WriteStatus(update *progrock.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range update.Vertexes {
		if _, ok := s.vertices[v.Id]; !ok {
			s.order = append(s.order, v.Id)
		}
		s.vertices[v.Id] = v
	}
	return nil
}

// Close marks the summary as complete.
func (s *Summary) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Totals counts the vertices seen so far.
func (s *Summary) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Totals
	for _, id := range s.order {
		v := s.vertices[id]
		t.Calls++
		if v.Cached {
			t.Cached++
		}
		if v.Completed == nil {
			continue
		}
		t.Completed++
		if v.Error != nil {
			t.Failed++
		}
	}
	return t
}

// Names returns the vertex names in first-seen order.
func (s *Summary) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.order))
	for i, id := range s.order {
		names[i] = s.vertices[id].Name
	}
	return names
}

var _ progrock.Writer = (*Summary)(nil)
