package merge

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/systemshift/memex-vc/internal/ancestry"
	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
)

// Recursive merges two perspectives and every nested child perspective,
// matching children across the two trees by context rather than by id.
// The strategy itself is stateless; each MergePerspectives call runs in its
// own session.
type Recursive struct {
	*engine
}

// NewRecursive returns a Recursive strategy.
func NewRecursive(c client.Client, finder *ancestry.Finder, opts Options) *Recursive {
	return &Recursive{engine: newEngine(c, finder, opts)}
}

func (r *Recursive) MergePerspectives(ctx context.Context, to, from string) (*model.Mutation, error) {
	s := r.newSession()
	ctx, span := tracer.Start(ctx, "merge.Recursive")
	defer span.End()
	span.SetAttributes(
		attribute.String("mxvc.merge.session", s.id),
		attribute.String("mxvc.merge.to", to),
		attribute.String("mxvc.merge.from", from),
	)

	m, err := s.run(ctx, to, from)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("mxvc.merge.updates", len(m.Updates)))
	return m, nil
}

type side int

const (
	sideTo side = iota
	sideFrom
)

// contextPair holds the perspectives that represent one logical document on
// each side of the merge.
type contextPair struct {
	to, from string
}

type discoveryKey struct {
	side side
	id   string
}

// session is the state of one top-level merge. All maps are guarded by mu;
// the mutation guards itself.
type session struct {
	*engine
	id string

	mu           sync.Mutex
	contextMap   map[string]*contextPair
	perspectives map[string]string // perspective id -> context
	discovered   map[discoveryKey]bool
	claimed      map[string]bool

	mutation *model.Mutation
}

func (r *Recursive) newSession() *session {
	return &session{
		engine:       r.engine,
		id:           ulid.Make().String(),
		contextMap:   make(map[string]*contextPair),
		perspectives: make(map[string]string),
		discovered:   make(map[discoveryKey]bool),
		claimed:      make(map[string]bool),
		mutation:     model.NewMutation(),
	}
}

func (s *session) run(ctx context.Context, to, from string) (*model.Mutation, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.discover(gctx, to, sideTo) })
	g.Go(func() error { return s.discover(gctx, from, sideFrom) })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover contexts: %w", err)
	}
	glog.V(1).Infof("mxvc: merge %s: %d contexts across %d perspectives", s.id, len(s.contextMap), len(s.perspectives))

	if err := s.mergePair(ctx, to, from); err != nil {
		return nil, err
	}
	return s.mutation, nil
}

// discover walks the subtree under id, recording each perspective's context
// on the given side. The first perspective seen for a context on a side
// represents it.
func (s *session) discover(ctx context.Context, id string, sd side) error {
	key := discoveryKey{side: sd, id: id}
	s.mu.Lock()
	if s.discovered[key] {
		s.mu.Unlock()
		return nil
	}
	s.discovered[key] = true
	s.mu.Unlock()

	p, err := client.GetPerspectiveHeader(ctx, s.client, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.perspectives[id] = p.Context
	pair, ok := s.contextMap[p.Context]
	if !ok {
		pair = &contextPair{}
		s.contextMap[p.Context] = pair
	}
	if sd == sideTo && pair.to == "" {
		pair.to = id
	}
	if sd == sideFrom && pair.from == "" {
		pair.from = id
	}
	s.mu.Unlock()

	doc, _, err := s.headDocument(ctx, id)
	if err != nil || doc == nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, link := range doc.Links() {
		g.Go(func() error { return s.discover(gctx, link, sd) })
	}
	return g.Wait()
}

// contextOf maps a perspective id to its context, fetching the header when
// the id was not seen during discovery.
func (s *session) contextOf(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	c, ok := s.perspectives[id]
	s.mu.Unlock()
	if ok {
		return c, nil
	}
	p, err := client.GetPerspectiveHeader(ctx, s.client, id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.perspectives[id] = p.Context
	s.mu.Unlock()
	return p.Context, nil
}

// claim reports whether the caller is the first to ask for key. Shared or
// cyclic children are merged once; later visitors reuse the id as is.
func (s *session) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[key] {
		return false
	}
	s.claimed[key] = true
	return true
}

func (s *session) mergePair(ctx context.Context, to, from string) error {
	if !s.claim("pair\x00" + to + "\x00" + from) {
		return nil
	}
	glog.V(2).Infof("mxvc: merge %s: %s <- %s", s.id, to, from)
	up, err := s.mergePerspectives(ctx, to, from, s.mergeLinks)
	if err != nil {
		return err
	}
	if up != nil {
		s.mutation.AddUpdate(*up)
	}
	return nil
}

// mergeChildren merges the children of a perspective that has no
// counterpart, so nested pairs below it are still reconciled. A new commit
// is written only when a child link had to be rewritten.
func (s *session) mergeChildren(ctx context.Context, id string) error {
	if !s.claim("self\x00" + id) {
		return nil
	}
	doc, head, err := s.headDocument(ctx, id)
	if err != nil || doc == nil {
		return err
	}
	links := doc.Links()
	if len(links) == 0 {
		return nil
	}
	merged, err := s.mergeLinks(ctx, links, [][]string{links})
	if err != nil {
		return err
	}
	if slices.Equal(merged, links) {
		return nil
	}

	remote, err := s.client.RemoteOf(ctx, id)
	if err != nil {
		return err
	}
	dataID, err := s.client.StoreEntity(ctx, doc.WithLinks(merged), remote)
	if err != nil {
		return fmt.Errorf("store relinked data: %w", err)
	}
	commitID, err := s.client.StoreEntity(ctx, &model.Commit{
		CreatorsIDs: s.creators(),
		Timestamp:   s.opts.Now().UnixMilli(),
		Message:     s.opts.Message,
		ParentsIDs:  []string{head},
		DataID:      dataID,
	}, remote)
	if err != nil {
		return fmt.Errorf("store relink commit: %w", err)
	}
	s.mutation.AddUpdate(model.UpdateRequest{PerspectiveID: id, OldHeadID: head, NewHeadID: commitID})
	return nil
}

// mergeLinks merges link lists by context, then resolves every surviving
// context back to a perspective id, recursing into it. Children are merged
// concurrently and all finish before this returns, so their updates land in
// the mutation ahead of the parent's.
func (s *session) mergeLinks(ctx context.Context, original []string, modifications [][]string) ([]string, error) {
	fallback := make(map[string]string)
	toContexts := func(ids []string) ([]string, error) {
		out := make([]string, len(ids))
		for i, id := range ids {
			c, err := s.contextOf(ctx, id)
			if err != nil {
				return nil, err
			}
			if _, ok := fallback[c]; !ok {
				fallback[c] = id
			}
			out[i] = c
		}
		return out, nil
	}

	modContexts := make([][]string, len(modifications))
	for k, m := range modifications {
		var err error
		if modContexts[k], err = toContexts(m); err != nil {
			return nil, err
		}
	}
	origContexts, err := toContexts(original)
	if err != nil {
		return nil, err
	}
	merged, err := MergeLinks(origContexts, modContexts)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(merged))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range merged {
		g.Go(func() error {
			id, err := s.resolve(gctx, c, fallback[c])
			out[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolve picks the link id for a surviving context. Matched contexts keep
// the to side's id, and with it the to side's remote and owner.
func (s *session) resolve(ctx context.Context, c, fallback string) (string, error) {
	s.mu.Lock()
	var pair contextPair
	if p, ok := s.contextMap[c]; ok {
		pair = *p
	}
	s.mu.Unlock()

	switch {
	case pair.to != "" && pair.from != "":
		return pair.to, s.mergePair(ctx, pair.to, pair.from)
	case pair.to != "":
		return pair.to, s.mergeChildren(ctx, pair.to)
	case pair.from != "":
		return pair.from, s.mergeChildren(ctx, pair.from)
	}
	return fallback, nil
}
