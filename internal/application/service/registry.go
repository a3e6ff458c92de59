package service

import (
	"sort"
	"sync"

	"browser-observer/internal/usecase/constitution"
)

var _ constitution.Registry = (*ConstitutionRegistry)(nil)

// ConstitutionRegistry is filled at construction and read by every run, so
// lookups take a read lock only.
type ConstitutionRegistry struct {
	mu            sync.RWMutex
	constitutions map[string]constitution.Constitution
}

func NewConstitutionRegistry(cs ...constitution.Constitution) *ConstitutionRegistry {
	r := &ConstitutionRegistry{
		constitutions: make(map[string]constitution.Constitution),
	}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

// Register replaces any constitution already held for the same agent.
func (r *ConstitutionRegistry) Register(c constitution.Constitution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constitutions[c.Agent] = c
}

func (r *ConstitutionRegistry) Get(agent string) (constitution.Constitution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.constitutions[agent]
	return c, ok
}

func (r *ConstitutionRegistry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.constitutions))
	for agent := range r.constitutions {
		result = append(result, agent)
	}
	sort.Strings(result)
	return result
}
