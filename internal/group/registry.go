package group

import (
	"context"
	"sync"
)

// Live is the group every live-feed session joins.
const Live = "neurobot_live"

// Registry maps group names to the ids of the sessions currently joined to
// them. Implementations backed by a remote store may fail; callers treat a
// failed Add as fatal to session setup and a failed Remove as a logged no-op.
type Registry interface {
	Add(ctx context.Context, group, id string) error
	Remove(ctx context.Context, group, id string) error
	Members(ctx context.Context, group string) ([]string, error)
}

type set map[string]struct{}

// MemoryRegistry is the process-local Registry. It never returns an error.
type MemoryRegistry struct {
	mu     sync.RWMutex
	groups map[string]set
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		groups: make(map[string]set),
	}
}

// Add registers id under group. Adding an existing member is a no-op.
func (r *MemoryRegistry) Add(_ context.Context, group, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.groups[group]
	if !ok {
		members = make(set)
		r.groups[group] = members
	}
	members[id] = struct{}{}
	return nil
}

// Remove unregisters id from group. Unknown groups and ids are ignored, and
// a group is dropped once its last member leaves.
func (r *MemoryRegistry) Remove(_ context.Context, group, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.groups[group]
	if !ok {
		return nil
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.groups, group)
	}
	return nil
}

// Members returns a copy of the group's member ids at call time.
func (r *MemoryRegistry) Members(_ context.Context, group string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.groups[group]
	result := make([]string, 0, len(members))
	for id := range members {
		result = append(result, id)
	}
	return result, nil
}

// Groups returns the number of non-empty groups.
func (r *MemoryRegistry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
