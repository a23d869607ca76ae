package client

import (
	"context"
	"fmt"
	"time"

	"github.com/systemshift/memex-vc/internal/model"
)

// NewPerspective describes a perspective to create with an initial document.
type NewPerspective struct {
	Remote   string
	Path     string
	Context  string
	Creator  string
	Message  string
	ParentID string
	Document model.Document
}

// CreatePerspective stores the document and an initial commit on req.Remote
// and returns the new perspective plus the mutation that registers it.
func CreatePerspective(ctx context.Context, c Client, req NewPerspective) (model.SecuredPerspective, *model.Mutation, error) {
	if req.Document == nil {
		return model.SecuredPerspective{}, nil, fmt.Errorf("create perspective: document is required")
	}
	now := time.Now().UnixMilli()
	head, err := storeCommit(ctx, c, req.Remote, req.Document, req.Creator, req.Message, nil, now)
	if err != nil {
		return model.SecuredPerspective{}, nil, err
	}
	sp, err := model.SecurePerspective(model.Perspective{
		Remote:    req.Remote,
		Path:      req.Path,
		CreatorID: req.Creator,
		Context:   req.Context,
		Timestamp: now,
	})
	if err != nil {
		return model.SecuredPerspective{}, nil, err
	}
	m := model.NewMutation()
	m.AddNewPerspective(model.NewPerspectiveData{
		Perspective: sp,
		Details:     model.PerspectiveDetails{HeadID: head},
		ParentID:    req.ParentID,
	})
	return sp, m, nil
}

// CommitDocument records doc as the next commit of a perspective and returns
// the commit id with the mutation that moves the head to it.
func CommitDocument(ctx context.Context, c Client, perspectiveID string, doc model.Document, creator, message string) (string, *model.Mutation, error) {
	remote, err := c.RemoteOf(ctx, perspectiveID)
	if err != nil {
		return "", nil, err
	}
	details, err := c.GetPerspective(ctx, perspectiveID)
	if err != nil {
		return "", nil, err
	}
	var parents []string
	if details.HeadID != "" {
		parents = []string{details.HeadID}
	}
	head, err := storeCommit(ctx, c, remote, doc, creator, message, parents, time.Now().UnixMilli())
	if err != nil {
		return "", nil, err
	}
	m := model.NewMutation()
	m.AddUpdate(model.UpdateRequest{
		PerspectiveID: perspectiveID,
		OldHeadID:     details.HeadID,
		NewHeadID:     head,
	})
	return head, m, nil
}

func storeCommit(ctx context.Context, c Client, remote string, doc model.Document, creator, message string, parents []string, ts int64) (string, error) {
	dataID, err := c.StoreEntity(ctx, doc, remote)
	if err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	var creators []string
	if creator != "" {
		creators = []string{creator}
	}
	commitID, err := c.StoreEntity(ctx, &model.Commit{
		CreatorsIDs: creators,
		Timestamp:   ts,
		Message:     message,
		ParentsIDs:  parents,
		DataID:      dataID,
	}, remote)
	if err != nil {
		return "", fmt.Errorf("store commit: %w", err)
	}
	return commitID, nil
}
