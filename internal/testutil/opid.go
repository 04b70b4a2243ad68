package testutil

import (
	"fmt"
	"sync"
)

// SequentialOpIDs generates predictable operation IDs: "<prefix>-1",
// "<prefix>-2", and so on.
//
// Thread-safety: SequentialOpIDs is safe for concurrent use.
type SequentialOpIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialOpIDs creates a generator. An empty prefix becomes "op".
func NewSequentialOpIDs(prefix string) *SequentialOpIDs {
	if prefix == "" {
		prefix = "op"
	}
	return &SequentialOpIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialOpIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
