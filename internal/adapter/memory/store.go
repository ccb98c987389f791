package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

// Store is an in-process vector backend using brute-force cosine similarity.
type Store struct {
	mu      sync.RWMutex
	classes map[string]map[string]vector.Record
}

func NewStore() *Store {
	return &Store{classes: make(map[string]map[string]vector.Record)}
}

func (s *Store) EnsureClass(_ context.Context, class string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[class]; !ok {
		s.classes[class] = make(map[string]vector.Record)
	}
	return nil
}

// Put stores copies of the records, replacing any with the same id.
func (s *Store) Put(_ context.Context, class string, records []vector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objs, ok := s.classes[class]
	if !ok {
		objs = make(map[string]vector.Record)
		s.classes[class] = objs
	}
	for _, r := range records {
		r.Metadata = r.Metadata.Clone()
		r.Vector = append([]float32(nil), r.Vector...)
		objs[r.ID] = r
	}
	return nil
}

func (s *Store) Query(_ context.Context, class string, vec []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []vector.Hit
	for _, r := range s.classes[class] {
		if !r.Metadata.Matches(filter) {
			continue
		}
		hits = append(hits, vector.Hit{
			Chunk: chunk.NewWithID(r.ID, r.Text, r.Metadata.Clone()),
			Score: cosine(vec, r.Vector),
		})
	}
	vector.SortHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) Delete(_ context.Context, class string, filter vector.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.classes[class] {
		if r.Metadata.Matches(filter) {
			delete(s.classes[class], id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Count(_ context.Context, class string, filter vector.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.classes[class] {
		if r.Metadata.Matches(filter) {
			n++
		}
	}
	return n, nil
}

// IDs lists the stored chunk ids of class in ascending order.
func (s *Store) IDs(class string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.classes[class]))
	for id := range s.classes[class] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
