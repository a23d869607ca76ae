// Package memory is a volatile remote, used by tests and dry runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/systemshift/memex-vc/internal/dag"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote"
)

// Remote keeps entities and heads in maps.
type Remote struct {
	id string

	mu       sync.RWMutex
	entities map[string][]byte
	heads    map[string]string
	log      []dag.RefLogEntry
}

// New returns an empty in-memory remote.
func New(id string) *Remote {
	return &Remote{
		id:       id,
		entities: make(map[string][]byte),
		heads:    make(map[string]string),
	}
}

func (r *Remote) ID() string { return r.id }

func (r *Remote) GetEntity(_ context.Context, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.entities[id]
	if !ok {
		return nil, model.NotFound("entity", id)
	}
	return data, nil
}

func (r *Remote) PutEntity(_ context.Context, data []byte) (string, error) {
	id, err := dag.ComputeID(data)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[id]; !ok {
		r.entities[id] = append([]byte(nil), data...)
	}
	return id, nil
}

func (r *Remote) GetHead(_ context.Context, perspectiveID string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	head, ok := r.heads[perspectiveID]
	return head, ok, nil
}

// Apply validates and applies m under one lock.
func (r *Remote) Apply(ctx context.Context, m *model.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := remote.NewPlan(ctx, m, func(_ context.Context, id string) (string, bool, error) {
		head, ok := r.heads[id]
		return head, ok, nil
	})
	if err != nil {
		return err
	}
	for _, sp := range plan.Headers {
		data, err := model.Encode(&sp.Object)
		if err != nil {
			return err
		}
		r.entities[sp.ID] = data
	}
	for id, head := range plan.Final() {
		if head == "" {
			delete(r.heads, id)
			continue
		}
		r.heads[id] = head
	}
	now := time.Now().UTC()
	for _, e := range plan.RefLogEntries() {
		e.Timestamp = now
		r.log = append(r.log, e)
	}
	return nil
}

// Reflog returns the head moves of a perspective, newest first.
func (r *Remote) Reflog(perspectiveID string) []dag.RefLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []dag.RefLogEntry
	for i := len(r.log) - 1; i >= 0; i-- {
		if r.log[i].Perspective == perspectiveID {
			out = append(out, r.log[i])
		}
	}
	return out
}

// Perspectives lists the ids that currently have a head.
func (r *Remote) Perspectives() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.heads))
	for id := range r.heads {
		out = append(out, id)
	}
	return out
}
