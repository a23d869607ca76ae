package merge

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/fork"
	"github.com/systemshift/memex-vc/internal/model"
)

// Target is the remote and owner a merged tree must stay within.
type Target struct {
	Remote string
	Owner  string
}

// OwnerPreserving runs a Recursive merge, then forks every newly linked
// child that lives on another remote or belongs to another owner onto the
// target, so the merged tree never absorbs content it does not own. Updates
// to perspectives outside the target are dropped, apart from the one to the
// perspective being merged into.
type OwnerPreserving struct {
	recursive *Recursive
	target    Target
}

// NewOwnerPreserving wraps r.
func NewOwnerPreserving(r *Recursive, target Target) *OwnerPreserving {
	return &OwnerPreserving{recursive: r, target: target}
}

func (o *OwnerPreserving) MergePerspectives(ctx context.Context, to, from string) (*model.Mutation, error) {
	if o.target.Remote == "" {
		return nil, &model.InvalidConfigError{Reason: "owner-preserving merge needs a target remote"}
	}
	if o.target.Owner == "" {
		return nil, &model.InvalidConfigError{Reason: "owner-preserving merge needs a target owner"}
	}
	ctx, span := tracer.Start(ctx, "merge.OwnerPreserving")
	defer span.End()

	m, err := o.recursive.MergePerspectives(ctx, to, from)
	if err != nil {
		return nil, err
	}
	c := o.recursive.client

	// Forks copy foreign perspectives at the heads this merge gives them, so
	// links the merge rewrote to to-side ids survive the copy.
	heads := make(map[string]string, len(m.Updates))
	for _, up := range m.Updates {
		heads[up.PerspectiveID] = up.NewHeadID
	}
	forker := fork.New(mergedHeads{Client: c, heads: heads}, fork.Config{
		Owner:     o.target.Owner,
		Now:       o.recursive.opts.Now,
		KeepOwned: true,
	})
	span.SetAttributes(attribute.String("mxvc.fork.operation", forker.ID()))

	kept := m.Updates[:0]
	for _, up := range m.Updates {
		if up.PerspectiveID != to {
			owned, err := o.owns(ctx, c, up.PerspectiveID)
			if err != nil {
				return nil, err
			}
			if !owned {
				glog.V(1).Infof("mxvc: leaving foreign %s at %s", up.PerspectiveID, up.OldHeadID)
				continue
			}
		}
		up, err := o.adopt(ctx, c, forker, up)
		if err != nil {
			return nil, err
		}
		kept = append(kept, up)
	}
	m.Updates = kept
	m.Merge(forker.Mutation())
	return m, nil
}

func (o *OwnerPreserving) owns(ctx context.Context, c client.Client, id string) (bool, error) {
	p, err := client.GetPerspectiveHeader(ctx, c, id)
	if err != nil {
		return false, err
	}
	return p.Remote == o.target.Remote && p.CreatorID == o.target.Owner, nil
}

// mergedHeads reads perspective heads from a pending merge before falling
// back to c.
type mergedHeads struct {
	client.Client
	heads map[string]string
}

func (h mergedHeads) GetPerspective(ctx context.Context, id string) (model.PerspectiveDetails, error) {
	if head, ok := h.heads[id]; ok {
		return model.PerspectiveDetails{HeadID: head}, nil
	}
	return h.Client.GetPerspective(ctx, id)
}

// adopt forks the foreign links an update introduces and, if any were
// replaced, rewrites the update to a commit pointing at the forks.
func (o *OwnerPreserving) adopt(ctx context.Context, c client.Client, forker *fork.Engine, up model.UpdateRequest) (model.UpdateRequest, error) {
	commit, err := client.GetCommit(ctx, c, up.NewHeadID)
	if err != nil {
		return up, err
	}
	doc, err := client.GetDocument(ctx, c, commit.DataID)
	if err != nil {
		return up, err
	}
	before := make(map[string]bool)
	if up.OldHeadID != "" {
		old, err := client.GetCommit(ctx, c, up.OldHeadID)
		if err != nil {
			return up, err
		}
		oldDoc, err := client.GetDocument(ctx, c, old.DataID)
		if err != nil {
			return up, err
		}
		for _, l := range oldDoc.Links() {
			before[l] = true
		}
	}

	links := doc.Links()
	changed := false
	for i, link := range links {
		if before[link] {
			continue
		}
		owned, err := o.owns(ctx, c, link)
		if err != nil {
			return up, err
		}
		if owned {
			continue
		}
		forked, err := forker.Fork(ctx, link, o.target.Remote, up.PerspectiveID)
		if err != nil {
			return up, fmt.Errorf("adopt %s: %w", link, err)
		}
		glog.V(1).Infof("mxvc: %s adopts %s as %s", up.PerspectiveID, link, forked)
		links[i] = forked
		changed = true
	}
	if !changed {
		return up, nil
	}

	remote, err := c.RemoteOf(ctx, up.PerspectiveID)
	if err != nil {
		return up, err
	}
	dataID, err := c.StoreEntity(ctx, doc.WithLinks(links), remote)
	if err != nil {
		return up, err
	}
	rewritten := *commit
	rewritten.DataID = dataID
	head, err := c.StoreEntity(ctx, &rewritten, remote)
	if err != nil {
		return up, err
	}
	up.NewHeadID = head
	return up, nil
}
