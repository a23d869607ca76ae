// Package client defines what the merge engine consumes from storage: a
// Client that reads and writes entities, reads perspective heads and applies
// Mutations. Router spreads a Client over several remotes; Staging buffers
// writes in memory until Flush.
package client

import (
	"context"
	"fmt"

	"github.com/systemshift/memex-vc/internal/model"
)

// Client is the storage surface the engine works against.
type Client interface {
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	StoreEntity(ctx context.Context, obj model.Object, remote string) (string, error)
	HashEntity(ctx context.Context, obj model.Object, remote string) (string, error)
	GetPerspective(ctx context.Context, id string) (model.PerspectiveDetails, error)
	RemoteOf(ctx context.Context, perspectiveID string) (string, error)
	Update(ctx context.Context, m *model.Mutation) error
	Flush(ctx context.Context) error
}

// Remote is one storage backend: an entity store plus a perspective
// directory. Apply must be all-or-nothing for the mutation it is given.
type Remote interface {
	ID() string
	GetEntity(ctx context.Context, id string) ([]byte, error)
	PutEntity(ctx context.Context, data []byte) (string, error)
	GetHead(ctx context.Context, perspectiveID string) (head string, ok bool, err error)
	Apply(ctx context.Context, m *model.Mutation) error
}

// GetObject fetches and decodes an entity.
func GetObject(ctx context.Context, c Client, id string) (model.Object, error) {
	e, err := c.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Decode()
}

// GetCommit fetches a commit entity.
func GetCommit(ctx context.Context, c Client, id string) (*model.Commit, error) {
	obj, err := GetObject(ctx, c, id)
	if err != nil {
		return nil, err
	}
	commit, ok := obj.(*model.Commit)
	if !ok {
		return nil, fmt.Errorf("entity %s is a %s, not a commit", id, obj.EntityType())
	}
	return commit, nil
}

// GetPerspectiveHeader fetches a perspective's immutable header.
func GetPerspectiveHeader(ctx context.Context, c Client, id string) (*model.Perspective, error) {
	obj, err := GetObject(ctx, c, id)
	if err != nil {
		return nil, err
	}
	p, ok := obj.(*model.Perspective)
	if !ok {
		return nil, fmt.Errorf("entity %s is a %s, not a perspective", id, obj.EntityType())
	}
	return p, nil
}

// GetDocument fetches a document entity.
func GetDocument(ctx context.Context, c Client, id string) (model.Document, error) {
	obj, err := GetObject(ctx, c, id)
	if err != nil {
		return nil, err
	}
	return model.AsDocument(obj)
}

// GetHead returns a perspective's head, failing with NotFoundError if it has none.
func GetHead(ctx context.Context, c Client, perspectiveID string) (string, error) {
	details, err := c.GetPerspective(ctx, perspectiveID)
	if err != nil {
		return "", err
	}
	if details.HeadID == "" {
		return "", model.NotFound("head", perspectiveID)
	}
	return details.HeadID, nil
}

// GetHeadDocument returns the document at a perspective's head and the head id.
func GetHeadDocument(ctx context.Context, c Client, perspectiveID string) (model.Document, string, error) {
	head, err := GetHead(ctx, c, perspectiveID)
	if err != nil {
		return nil, "", err
	}
	commit, err := GetCommit(ctx, c, head)
	if err != nil {
		return nil, "", err
	}
	doc, err := GetDocument(ctx, c, commit.DataID)
	if err != nil {
		return nil, "", err
	}
	return doc, head, nil
}
