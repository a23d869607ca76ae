package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/systemshift/memex-vc/internal/model"
)

const headerCacheSize = 4096

// Router is a Client over several remotes. Entities are read from the first
// remote that has them; perspective heads and mutations go to the remote
// named in the perspective header.
type Router struct {
	order   []Remote
	remotes map[string]Remote
	headers *lru.Cache[string, model.Perspective] // headers are immutable
}

// NewRouter registers remotes in lookup order.
func NewRouter(remotes ...Remote) (*Router, error) {
	if len(remotes) == 0 {
		return nil, fmt.Errorf("router needs at least one remote")
	}
	headers, err := lru.New[string, model.Perspective](headerCacheSize)
	if err != nil {
		return nil, err
	}
	r := &Router{
		remotes: make(map[string]Remote, len(remotes)),
		headers: headers,
	}
	for _, rem := range remotes {
		if _, dup := r.remotes[rem.ID()]; dup {
			return nil, fmt.Errorf("duplicate remote %q", rem.ID())
		}
		r.remotes[rem.ID()] = rem
		r.order = append(r.order, rem)
	}
	return r, nil
}

// Remote returns a registered remote by id.
func (r *Router) Remote(id string) (Remote, bool) {
	rem, ok := r.remotes[id]
	return rem, ok
}

func (r *Router) remote(id string) (Remote, error) {
	rem, ok := r.remotes[id]
	if !ok {
		return nil, fmt.Errorf("unknown remote %q", id)
	}
	return rem, nil
}

func (r *Router) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	for _, rem := range r.order {
		data, err := rem.GetEntity(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rem.ID(), err)
		}
		e := &model.Entity{ID: id, Object: data}
		if err := e.Verify(); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, model.NotFound("entity", id)
}

func (r *Router) StoreEntity(ctx context.Context, obj model.Object, remote string) (string, error) {
	rem, err := r.remote(remote)
	if err != nil {
		return "", err
	}
	data, err := model.Encode(obj)
	if err != nil {
		return "", err
	}
	return rem.PutEntity(ctx, data)
}

func (r *Router) HashEntity(_ context.Context, obj model.Object, remote string) (string, error) {
	if _, err := r.remote(remote); err != nil {
		return "", err
	}
	return model.Hash(obj)
}

func (r *Router) header(ctx context.Context, id string) (model.Perspective, error) {
	if p, ok := r.headers.Get(id); ok {
		return p, nil
	}
	p, err := GetPerspectiveHeader(ctx, r, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Perspective{}, model.NotFound("perspective", id)
		}
		return model.Perspective{}, err
	}
	r.headers.Add(id, *p)
	return *p, nil
}

func (r *Router) GetPerspective(ctx context.Context, id string) (model.PerspectiveDetails, error) {
	p, err := r.header(ctx, id)
	if err != nil {
		return model.PerspectiveDetails{}, err
	}
	rem, err := r.remote(p.Remote)
	if err != nil {
		return model.PerspectiveDetails{}, err
	}
	head, _, err := rem.GetHead(ctx, id)
	if err != nil {
		return model.PerspectiveDetails{}, err
	}
	return model.PerspectiveDetails{HeadID: head}, nil
}

func (r *Router) RemoteOf(ctx context.Context, perspectiveID string) (string, error) {
	p, err := r.header(ctx, perspectiveID)
	if err != nil {
		return "", err
	}
	return p.Remote, nil
}

// Update buckets m by owning remote and applies the buckets concurrently.
// Each bucket is atomic on its remote; buckets on different remotes are not
// atomic with respect to each other.
func (r *Router) Update(ctx context.Context, m *model.Mutation) error {
	buckets, err := r.split(ctx, m)
	if err != nil {
		return err
	}
	for id := range buckets {
		if _, err := r.remote(id); err != nil {
			return err
		}
	}
	g, ctx := errgroup.WithContext(ctx)
	for id, sub := range buckets {
		rem := r.remotes[id]
		g.Go(func() error {
			if err := rem.Apply(ctx, sub); err != nil {
				return fmt.Errorf("apply on %s: %w", id, err)
			}
			glog.V(1).Infof("mxvc: applied %d new, %d updates, %d deletes on %s",
				len(sub.NewPerspectives), len(sub.Updates), len(sub.DeletedPerspectives), id)
			return nil
		})
	}
	return g.Wait()
}

// split resolves the owner of every item. Perspectives created by m itself
// are resolved from their headers before anything is looked up remotely.
func (r *Router) split(ctx context.Context, m *model.Mutation) (map[string]*model.Mutation, error) {
	buckets := make(map[string]*model.Mutation)
	bucket := func(remote string) *model.Mutation {
		b, ok := buckets[remote]
		if !ok {
			b = model.NewMutation()
			buckets[remote] = b
		}
		return b
	}

	owners := make(map[string]string)
	for _, np := range m.NewPerspectives {
		owners[np.Perspective.ID] = np.Perspective.Object.Remote
	}
	ownerOf := func(id string) (string, error) {
		if o, ok := owners[id]; ok {
			return o, nil
		}
		o, err := r.RemoteOf(ctx, id)
		if err != nil {
			return "", err
		}
		owners[id] = o
		return o, nil
	}

	for _, np := range m.NewPerspectives {
		bucket(np.Perspective.Object.Remote).AddNewPerspective(np)
	}
	for _, up := range m.Updates {
		o, err := ownerOf(up.PerspectiveID)
		if err != nil {
			return nil, err
		}
		bucket(o).AddUpdate(up)
	}
	for _, id := range m.DeletedPerspectives {
		o, err := ownerOf(id)
		if err != nil {
			return nil, err
		}
		bucket(o).AddDeleted(id)
	}
	return buckets, nil
}

// Flush is a no-op: the router writes through.
func (r *Router) Flush(context.Context) error { return nil }
