package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Point is a stored document vector.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]string
}

// ScoredPoint is a query hit.
type ScoredPoint struct {
	ID      uint64
	Score   float64
	Payload map[string]string
}

// VectorIndex stores vectors in isolated namespaces.
type VectorIndex interface {
	EnsureNamespace(ctx context.Context, namespace string, dims int) error
	Upsert(ctx context.Context, namespace string, p Point) error
	// Query returns the closest points by cosine similarity. A namespace that
	// does not exist yields no hits and no error.
	Query(ctx context.Context, namespace string, vector []float32, limit int) ([]ScoredPoint, error)
	Delete(ctx context.Context, namespace string, id uint64) error
	Drop(ctx context.Context, namespace string) error
}

// MemoryIndex is a brute-force in-process VectorIndex.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[uint64]Point
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]map[uint64]Point)}
}

func (m *MemoryIndex) EnsureNamespace(ctx context.Context, namespace string, dims int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[namespace]; !ok {
		m.namespaces[namespace] = make(map[uint64]Point)
	}
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, namespace string, p Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[uint64]Point)
		m.namespaces[namespace] = ns
	}
	ns[p.ID] = p
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, namespace string, vector []float32, limit int) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns := m.namespaces[namespace]
	hits := make([]ScoredPoint, 0, len(ns))
	for _, p := range ns {
		hits = append(hits, ScoredPoint{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, namespace string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces[namespace], id)
	return nil
}

func (m *MemoryIndex) Drop(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

// Len returns the number of points in a namespace.
func (m *MemoryIndex) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
