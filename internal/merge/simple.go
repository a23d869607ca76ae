package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"

	"github.com/systemshift/memex-vc/internal/ancestry"
	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
)

var tracer = otel.Tracer("github.com/systemshift/memex-vc/internal/merge")

// Strategy merges the perspective from into the perspective to.
type Strategy interface {
	MergePerspectives(ctx context.Context, to, from string) (*model.Mutation, error)
}

// Options configure the commits a merge writes.
type Options struct {
	// Creator is stamped on merge commits.
	Creator string
	// Message defaults to "merge".
	Message string
	// Now defaults to time.Now.
	Now func() time.Time
}

// engine holds what every strategy needs to merge one pair of heads.
type engine struct {
	client client.Client
	finder *ancestry.Finder
	opts   Options
}

func newEngine(c client.Client, finder *ancestry.Finder, opts Options) *engine {
	if opts.Message == "" {
		opts.Message = "merge"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &engine{client: c, finder: finder, opts: opts}
}

func (e *engine) creators() []string {
	if e.opts.Creator == "" {
		return nil
	}
	return []string{e.opts.Creator}
}

// headDocument loads a perspective's head commit and document. doc is nil
// when the perspective has no head.
func (e *engine) headDocument(ctx context.Context, id string) (doc model.Document, head string, err error) {
	details, err := e.client.GetPerspective(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if details.HeadID == "" {
		return nil, "", nil
	}
	commit, err := client.GetCommit(ctx, e.client, details.HeadID)
	if err != nil {
		return nil, "", err
	}
	doc, err = e.document(ctx, commit.DataID)
	if err != nil {
		return nil, "", err
	}
	return doc, details.HeadID, nil
}

func (e *engine) document(ctx context.Context, id string) (model.Document, error) {
	doc, err := client.GetDocument(ctx, e.client, id)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return doc, nil
}

// mergePerspectives merges the heads of two perspectives. It returns nil when
// to already contains everything from.
func (e *engine) mergePerspectives(ctx context.Context, to, from string, links LinkMerger) (*model.UpdateRequest, error) {
	toHead, err := client.GetHead(ctx, e.client, to)
	if err != nil {
		return nil, err
	}
	fromHead, err := client.GetHead(ctx, e.client, from)
	if err != nil {
		return nil, err
	}
	merged, err := e.finder.IsAncestor(ctx, fromHead, toHead, "")
	if err != nil {
		return nil, err
	}
	if merged {
		glog.V(2).Infof("mxvc: %s already contains %s", to, from)
		return nil, nil
	}
	remote, err := e.client.RemoteOf(ctx, to)
	if err != nil {
		return nil, err
	}
	commit, err := e.mergeCommits(ctx, toHead, fromHead, remote, links)
	if err != nil {
		return nil, err
	}
	return &model.UpdateRequest{
		PerspectiveID:     to,
		OldHeadID:         toHead,
		NewHeadID:         commit,
		FromPerspectiveID: from,
	}, nil
}

// mergeCommits three-way merges the data of two commits against their
// common ancestor and stores the result on remote as a commit with parents
// [toHead, fromHead]. The commit is written even when the merged data equals
// toHead's, so fromHead's lineage is recorded for later merges.
func (e *engine) mergeCommits(ctx context.Context, toHead, fromHead, remote string, links LinkMerger) (string, error) {
	base, ok, err := e.finder.FindCommonAncestor(ctx, []string{toHead, fromHead})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", model.NotFound("ancestor", toHead+".."+fromHead)
	}

	commits := make([]*model.Commit, 3)
	for i, id := range []string{base, toHead, fromHead} {
		if commits[i], err = e.finder.Commit(ctx, id); err != nil {
			return "", err
		}
	}
	docs := make([]model.Document, 3)
	for i, c := range commits {
		if docs[i], err = e.document(ctx, c.DataID); err != nil {
			return "", err
		}
	}

	merged, err := MergeDocuments(ctx, docs[0], docs[1:], links)
	if err != nil {
		return "", err
	}
	dataID, err := e.client.StoreEntity(ctx, merged, remote)
	if err != nil {
		return "", fmt.Errorf("store merged data: %w", err)
	}
	commitID, err := e.client.StoreEntity(ctx, &model.Commit{
		CreatorsIDs: e.creators(),
		Timestamp:   e.opts.Now().UnixMilli(),
		Message:     e.opts.Message,
		ParentsIDs:  []string{toHead, fromHead},
		DataID:      dataID,
	}, remote)
	if err != nil {
		return "", fmt.Errorf("store merge commit: %w", err)
	}
	glog.V(1).Infof("mxvc: merged %s and %s (base %s) into %s", toHead, fromHead, base, commitID)
	return commitID, nil
}

// Simple merges the two heads only. Child links are merged by id.
type Simple struct {
	*engine
}

// NewSimple returns a Simple strategy.
func NewSimple(c client.Client, finder *ancestry.Finder, opts Options) *Simple {
	return &Simple{engine: newEngine(c, finder, opts)}
}

func (s *Simple) MergePerspectives(ctx context.Context, to, from string) (*model.Mutation, error) {
	ctx, span := tracer.Start(ctx, "merge.Simple")
	defer span.End()
	m := model.NewMutation()
	up, err := s.mergePerspectives(ctx, to, from, PlainLinks)
	if err != nil {
		return nil, err
	}
	if up != nil {
		m.AddUpdate(*up)
	}
	return m, nil
}

// MergeCommits merges two commits onto remote and returns the merge commit.
func (s *Simple) MergeCommits(ctx context.Context, toHead, fromHead, remote string) (string, error) {
	return s.mergeCommits(ctx, toHead, fromHead, remote, PlainLinks)
}
