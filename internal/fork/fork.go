// Package fork copies a perspective, commit or document subtree onto another
// remote and owner, leaving provenance edges back to the originals.
package fork

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
)

var tracer = otel.Tracer("github.com/systemshift/memex-vc/internal/fork")

// Config sets who owns what a fork creates.
type Config struct {
	// Owner becomes the creatorId of every forked perspective.
	Owner string
	// Now stamps forked perspectives. Defaults to time.Now.
	Now func() time.Time
	// KeepOwned links perspectives that already live on the target remote
	// under Owner as they are instead of copying them. The perspective
	// passed to Fork is always copied.
	KeepOwned bool
}

// call is one memoized fork. ready closes once id (or err) is known; for
// perspectives that happens before their subtree is copied, so a cycle back
// to a perspective being forked resolves to its new id.
type call struct {
	ready chan struct{}
	id    string
	err   error
}

// Engine runs one fork operation. Every (entity, remote) pair is forked at
// most once per Engine even when reached from several parents or
// concurrently.
type Engine struct {
	client    client.Client
	owner     string
	now       func() time.Time
	keepOwned bool
	id        string

	mu       sync.Mutex
	calls    map[string]*call
	mutation *model.Mutation
}

// New returns an Engine writing through c.
func New(c client.Client, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		client:    c,
		owner:     cfg.Owner,
		now:       now,
		keepOwned: cfg.KeepOwned,
		id:        ulid.Make().String(),
		calls:     make(map[string]*call),
		mutation:  model.NewMutation(),
	}
}

// ID identifies this fork operation in logs and traces.
func (e *Engine) ID() string { return e.id }

// Mutation returns the perspectives created so far.
func (e *Engine) Mutation() *model.Mutation { return e.mutation }

// Fork copies id onto remote and returns the new id. parentID is recorded on
// forked perspectives as their parent.
func (e *Engine) Fork(ctx context.Context, id, remote, parentID string) (string, error) {
	ctx, span := tracer.Start(ctx, "fork.Fork")
	defer span.End()
	span.SetAttributes(
		attribute.String("mxvc.fork.operation", e.id),
		attribute.String("mxvc.fork.source", id),
		attribute.String("mxvc.fork.remote", remote),
	)
	newID, err := e.fork(ctx, id, remote, parentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return newID, err
}

func (e *Engine) fork(ctx context.Context, id, remote, parentID string) (string, error) {
	key := remote + "\x00" + id
	e.mu.Lock()
	if c, ok := e.calls[key]; ok {
		e.mu.Unlock()
		select {
		case <-c.ready:
			return c.id, c.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c := &call{ready: make(chan struct{})}
	e.calls[key] = c
	e.mu.Unlock()

	var once sync.Once
	publish := func(newID string, err error) {
		once.Do(func() {
			c.id, c.err = newID, err
			close(c.ready)
		})
	}

	newID, err := e.dispatch(ctx, id, remote, parentID, publish)
	publish(newID, err)
	if err != nil {
		return "", err
	}
	return newID, nil
}

func (e *Engine) dispatch(ctx context.Context, id, remote, parentID string, publish func(string, error)) (string, error) {
	obj, err := client.GetObject(ctx, e.client, id)
	if err != nil {
		return "", fmt.Errorf("fork %s: %w", id, err)
	}
	switch o := obj.(type) {
	case *model.Perspective:
		return e.forkPerspective(ctx, id, o, remote, parentID, publish)
	case *model.Commit:
		return e.forkCommit(ctx, id, o, remote, parentID)
	case model.Document:
		return e.forkDocument(ctx, o, remote, parentID)
	}
	return "", fmt.Errorf("fork %s: cannot fork a %s", id, obj.EntityType())
}

func (e *Engine) forkPerspective(ctx context.Context, id string, p *model.Perspective, remote, parentID string, publish func(string, error)) (string, error) {
	details, err := e.client.GetPerspective(ctx, id)
	if err != nil {
		return "", err
	}
	sp, err := model.SecurePerspective(model.Perspective{
		Remote:            remote,
		Path:              p.Path,
		CreatorID:         e.owner,
		Context:           p.Context,
		Timestamp:         e.now().UnixMilli(),
		FromPerspectiveID: id,
		FromHeadID:        details.HeadID,
	})
	if err != nil {
		return "", err
	}
	publish(sp.ID, nil)

	var head string
	if details.HeadID != "" {
		if head, err = e.fork(ctx, details.HeadID, remote, sp.ID); err != nil {
			return "", err
		}
	}
	e.mutation.AddNewPerspective(model.NewPerspectiveData{
		Perspective: sp,
		Details:     model.PerspectiveDetails{HeadID: head},
		ParentID:    parentID,
	})
	glog.Infof("mxvc: fork %s: perspective %s -> %s on %s", e.id, id, sp.ID, remote)
	return sp.ID, nil
}

func (e *Engine) forkCommit(ctx context.Context, id string, c *model.Commit, remote, parentID string) (string, error) {
	dataID, err := e.fork(ctx, c.DataID, remote, parentID)
	if err != nil {
		return "", err
	}
	return e.client.StoreEntity(ctx, &model.Commit{
		CreatorsIDs: c.CreatorsIDs,
		Timestamp:   c.Timestamp,
		Message:     c.Message,
		DataID:      dataID,
		Forking:     id,
	}, remote)
}

func (e *Engine) forkDocument(ctx context.Context, doc model.Document, remote, parentID string) (string, error) {
	links := doc.Links()
	forked := make([]string, len(links))
	g, gctx := errgroup.WithContext(ctx)
	for i, link := range links {
		g.Go(func() error {
			keep, err := e.owned(gctx, link, remote)
			if err != nil {
				return err
			}
			if keep {
				forked[i] = link
				return nil
			}
			newID, err := e.fork(gctx, link, remote, parentID)
			forked[i] = newID
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return e.client.StoreEntity(ctx, doc.WithLinks(forked), remote)
}

// owned reports whether link is a perspective on remote under the engine's
// owner and KeepOwned is set.
func (e *Engine) owned(ctx context.Context, link, remote string) (bool, error) {
	if !e.keepOwned {
		return false, nil
	}
	obj, err := client.GetObject(ctx, e.client, link)
	if err != nil {
		return false, fmt.Errorf("fork %s: %w", link, err)
	}
	p, ok := obj.(*model.Perspective)
	return ok && p.Remote == remote && p.CreatorID == e.owner, nil
}
