// Package adapter contains the data source integrations that turn a market
// question into provider queries and normalize the responses into
// domain.SourceData. Question-to-query mapping is kept in pure functions,
// separate from the network path, so it can be tested without I/O.
package adapter

import (
	"sort"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// Registry holds every configured adapter and selects the ones applicable to
// a market category, ordered by priority (lower first).
type Registry struct {
	adapters []domain.Adapter
}

// NewRegistry creates a Registry over the given adapters.
func NewRegistry(adapters ...domain.Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Register appends an adapter.
func (r *Registry) Register(a domain.Adapter) {
	r.adapters = append(r.adapters, a)
}

// All returns every registered adapter.
func (r *Registry) All() []domain.Adapter {
	return r.adapters
}

// ForCategory returns the adapters covering the given category, sorted by
// ascending priority.
func (r *Registry) ForCategory(cat domain.Category) []domain.Adapter {
	var out []domain.Adapter
	for _, a := range r.adapters {
		for _, c := range a.Categories() {
			if c == cat {
				out = append(out, a)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}
