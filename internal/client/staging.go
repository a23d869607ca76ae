package client

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/systemshift/memex-vc/internal/model"
)

const flushConcurrency = 8

type stagedEntity struct {
	remote string
	entity *model.Entity
}

// Staging buffers entity writes and mutations in memory. Reads see the
// staged state first and fall through to the base Client. Nothing reaches
// the base until Flush.
type Staging struct {
	base Client

	mu       sync.RWMutex
	entities map[string]stagedEntity
	order    []string
	headers  map[string]model.Perspective
	heads    map[string]string
	deleted  map[string]bool
	mutation *model.Mutation
}

// NewStaging wraps base.
func NewStaging(base Client) *Staging {
	s := &Staging{base: base}
	s.reset()
	return s
}

func (s *Staging) reset() {
	s.entities = make(map[string]stagedEntity)
	s.order = nil
	s.headers = make(map[string]model.Perspective)
	s.heads = make(map[string]string)
	s.deleted = make(map[string]bool)
	s.mutation = model.NewMutation()
}

func (s *Staging) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	s.mu.RLock()
	staged, ok := s.entities[id]
	header, isHeader := s.headers[id]
	s.mu.RUnlock()
	if ok {
		return &model.Entity{ID: staged.entity.ID, Object: staged.entity.Object}, nil
	}
	if isHeader {
		return model.NewEntity(&header)
	}
	return s.base.GetEntity(ctx, id)
}

func (s *Staging) StoreEntity(ctx context.Context, obj model.Object, remote string) (string, error) {
	if _, err := s.base.HashEntity(ctx, obj, remote); err != nil {
		return "", err
	}
	e, err := model.NewEntity(obj)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; !ok {
		s.entities[e.ID] = stagedEntity{remote: remote, entity: e}
		s.order = append(s.order, e.ID)
	}
	return e.ID, nil
}

func (s *Staging) HashEntity(ctx context.Context, obj model.Object, remote string) (string, error) {
	return s.base.HashEntity(ctx, obj, remote)
}

func (s *Staging) GetPerspective(ctx context.Context, id string) (model.PerspectiveDetails, error) {
	s.mu.RLock()
	deleted := s.deleted[id]
	head, ok := s.heads[id]
	s.mu.RUnlock()
	if deleted {
		return model.PerspectiveDetails{}, model.NotFound("perspective", id)
	}
	if ok {
		return model.PerspectiveDetails{HeadID: head}, nil
	}
	return s.base.GetPerspective(ctx, id)
}

func (s *Staging) RemoteOf(ctx context.Context, perspectiveID string) (string, error) {
	s.mu.RLock()
	header, ok := s.headers[perspectiveID]
	s.mu.RUnlock()
	if ok {
		return header.Remote, nil
	}
	return s.base.RemoteOf(ctx, perspectiveID)
}

// Update stages m. Heads read through this client reflect it immediately.
func (s *Staging) Update(_ context.Context, m *model.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, np := range m.NewPerspectives {
		s.headers[np.Perspective.ID] = np.Perspective.Object
		s.heads[np.Perspective.ID] = np.Details.HeadID
		delete(s.deleted, np.Perspective.ID)
	}
	for _, up := range m.Updates {
		s.heads[up.PerspectiveID] = up.NewHeadID
		delete(s.deleted, up.PerspectiveID)
	}
	for _, id := range m.DeletedPerspectives {
		s.deleted[id] = true
		delete(s.heads, id)
	}
	s.mutation.Merge(m)
	return nil
}

// Staged returns a copy of the mutation accumulated so far.
func (s *Staging) Staged() *model.Mutation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutation.Clone()
}

// Flush pushes staged entities, then the staged mutation, to the base and
// clears the stage. On error the stage is kept so the caller can retry or
// Discard.
func (s *Staging) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flushConcurrency)
	for _, id := range s.order {
		staged := s.entities[id]
		g.Go(func() error {
			obj, err := staged.entity.Decode()
			if err != nil {
				return err
			}
			got, err := s.base.StoreEntity(gctx, obj, staged.remote)
			if err != nil {
				return fmt.Errorf("flush entity %s: %w", id, err)
			}
			if got != id {
				return fmt.Errorf("flush entity %s: stored as %s", id, got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !s.mutation.IsEmpty() {
		if err := s.base.Update(ctx, s.mutation); err != nil {
			return err
		}
	}
	if err := s.base.Flush(ctx); err != nil {
		return err
	}
	s.reset()
	return nil
}

// Discard drops everything staged.
func (s *Staging) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}
