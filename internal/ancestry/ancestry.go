// Package ancestry answers questions about the commit DAG: whether one
// commit descends from another, where two histories meet, and what a
// perspective's history looks like.
package ancestry

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/systemshift/memex-vc/internal/model"
)

// DefaultCacheSize bounds the number of decoded commits a Finder keeps.
const DefaultCacheSize = 8192

// EntityGetter is the part of client.Client a Finder needs.
type EntityGetter interface {
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
}

// Finder walks commit history. Commits are immutable, so decoded commits are
// cached across calls.
type Finder struct {
	store   EntityGetter
	commits *lru.Cache[string, *model.Commit]
}

// NewFinder returns a Finder reading commits from store.
func NewFinder(store EntityGetter, cacheSize int) (*Finder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	commits, err := lru.New[string, *model.Commit](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Finder{store: store, commits: commits}, nil
}

// Commit loads a commit, failing with NotFoundError if it is missing.
func (f *Finder) Commit(ctx context.Context, id string) (*model.Commit, error) {
	if c, ok := f.commits.Get(id); ok {
		return c, nil
	}
	e, err := f.store.GetEntity(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NotFound("commit", id)
	}
	if err != nil {
		return nil, err
	}
	obj, err := e.Decode()
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*model.Commit)
	if !ok {
		return nil, fmt.Errorf("entity %s is a %s, not a commit", id, obj.EntityType())
	}
	f.commits.Add(id, c)
	return c, nil
}

// IsAncestor reports whether candidate is reachable from commit through
// parentsIds. A commit is its own ancestor. Branches are not explored past
// stopAt; pass "" for no boundary.
func (f *Finder) IsAncestor(ctx context.Context, candidate, commit, stopAt string) (bool, error) {
	return f.walk(ctx, candidate, commit, stopAt, func(c *model.Commit) []string { return c.ParentsIDs })
}

// IsForkAncestor is IsAncestor that also follows forking edges, so a fork
// source counts as an ancestor of its forks.
func (f *Finder) IsForkAncestor(ctx context.Context, candidate, commit, stopAt string) (bool, error) {
	return f.walk(ctx, candidate, commit, stopAt, (*model.Commit).Ancestors)
}

func (f *Finder) walk(ctx context.Context, candidate, commit, stopAt string, next func(*model.Commit) []string) (bool, error) {
	visited := make(map[string]bool)
	stack := []string{commit}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == candidate {
			return true, nil
		}
		if visited[id] || id == stopAt {
			continue
		}
		visited[id] = true
		c, err := f.Commit(ctx, id)
		if err != nil {
			return false, err
		}
		stack = append(stack, next(c)...)
	}
	return false, nil
}

type path struct {
	visited  map[string]bool
	frontier []string
}

// FindCommonAncestor returns a commit reachable from every id, following
// parents and forking edges, or ok=false if the histories never meet.
//
// Paths advance one hop per round in input order and the first path with a
// frontier commit already visited by every other path wins. Under uneven
// branch depths that is not always the most recent shared commit.
func (f *Finder) FindCommonAncestor(ctx context.Context, ids []string) (string, bool, error) {
	if len(ids) == 0 {
		return "", false, nil
	}
	paths := make([]*path, len(ids))
	for i, id := range ids {
		paths[i] = &path{visited: make(map[string]bool), frontier: []string{id}}
	}

	for {
		active := false
		for i, p := range paths {
			if len(p.frontier) == 0 {
				continue
			}
			active = true
			if found, ok := sharedBy(paths, i); ok {
				glog.V(2).Infof("mxvc: common ancestor of %v is %s", ids, found)
				return found, true, nil
			}
			if err := f.expand(ctx, p); err != nil {
				return "", false, err
			}
		}
		if !active {
			return "", false, nil
		}
	}
}

// sharedBy returns the first frontier member of paths[i] that every other
// path has visited.
func sharedBy(paths []*path, i int) (string, bool) {
	for _, id := range paths[i].frontier {
		all := true
		for j, other := range paths {
			if j != i && !other.visited[id] {
				all = false
				break
			}
		}
		if all {
			return id, true
		}
	}
	return "", false
}

func (f *Finder) expand(ctx context.Context, p *path) error {
	var next []string
	queued := make(map[string]bool)
	for _, id := range p.frontier {
		p.visited[id] = true
	}
	for _, id := range p.frontier {
		c, err := f.Commit(ctx, id)
		if err != nil {
			return err
		}
		for _, a := range c.Ancestors() {
			if !p.visited[a] && !queued[a] {
				queued[a] = true
				next = append(next, a)
			}
		}
	}
	p.frontier = next
	return nil
}

// LogEntry is one commit in a history listing.
type LogEntry struct {
	ID     string
	Commit *model.Commit
}

// Log walks first parents from head, newest first, returning at most limit
// entries (all when limit <= 0).
func (f *Finder) Log(ctx context.Context, head string, limit int) ([]LogEntry, error) {
	var out []LogEntry
	for id := head; id != ""; {
		if limit > 0 && len(out) >= limit {
			break
		}
		c, err := f.Commit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, LogEntry{ID: id, Commit: c})
		id = ""
		if len(c.ParentsIDs) > 0 {
			id = c.ParentsIDs[0]
		}
	}
	return out, nil
}
