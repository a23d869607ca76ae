// Package local is a remote stored in a directory: CID-addressed objects,
// one ref file per perspective and a JSONL reflog, all under <root>/.mx.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/systemshift/memex-vc/internal/dag"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote"
)

// Remote is a file-backed remote.
type Remote struct {
	id   string
	root string

	Store  *dag.ObjectStore
	Refs   *dag.RefStore
	RefLog *dag.RefLog

	mu sync.Mutex // serializes Apply
}

// Open opens or creates a local remote rooted at root.
func Open(id, root string) (*Remote, error) {
	mxDir := filepath.Join(root, ".mx")
	for _, dir := range []string{
		mxDir,
		filepath.Join(mxDir, "objects"),
		filepath.Join(mxDir, "refs"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	metaPath := filepath.Join(mxDir, "meta.json")
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		meta := map[string]interface{}{
			"version": 1,
			"remote":  id,
			"created": time.Now().UTC().Format(time.RFC3339),
		}
		data, _ := json.MarshalIndent(meta, "", "  ")
		if err := dag.SafeWrite(metaPath, data, 0644); err != nil {
			return nil, fmt.Errorf("write meta: %w", err)
		}
	}

	store, err := dag.NewObjectStore(filepath.Join(mxDir, "objects"))
	if err != nil {
		return nil, err
	}
	refs, err := dag.NewRefStore(filepath.Join(mxDir, "refs"))
	if err != nil {
		return nil, err
	}
	reflog, err := dag.NewRefLog(filepath.Join(mxDir, "reflog.jsonl"))
	if err != nil {
		return nil, err
	}

	return &Remote{
		id:     id,
		root:   root,
		Store:  store,
		Refs:   refs,
		RefLog: reflog,
	}, nil
}

func (r *Remote) ID() string { return r.id }

// MxDir returns the path to the .mx/ data directory.
func (r *Remote) MxDir() string {
	return filepath.Join(r.root, ".mx")
}

func (r *Remote) GetEntity(_ context.Context, id string) ([]byte, error) {
	data, err := r.Store.Get(id)
	if errors.Is(err, dag.ErrObjectNotFound) {
		return nil, model.NotFound("entity", id)
	}
	return data, err
}

func (r *Remote) PutEntity(_ context.Context, data []byte) (string, error) {
	return r.Store.Put(data)
}

func (r *Remote) GetHead(_ context.Context, perspectiveID string) (string, bool, error) {
	return r.Refs.Get(perspectiveID)
}

// Apply validates every head move against the refs on disk, moves all refs
// together with RefStore.SetAll, then journals the moves in a single reflog
// append.
func (r *Remote) Apply(ctx context.Context, m *model.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := remote.NewPlan(ctx, m, r.GetHead)
	if err != nil {
		return err
	}
	for _, sp := range plan.Headers {
		data, err := model.Encode(&sp.Object)
		if err != nil {
			return err
		}
		if _, err := r.Store.Put(data); err != nil {
			return fmt.Errorf("store perspective %s: %w", sp.ID, err)
		}
	}
	if err := r.Refs.SetAll(plan.Final()); err != nil {
		return fmt.Errorf("write refs: %w", err)
	}

	entries := plan.RefLogEntries()
	now := time.Now().UTC()
	for i := range entries {
		entries[i].Timestamp = now
	}
	if err := r.RefLog.Append(entries...); err != nil {
		return err
	}
	glog.V(1).Infof("mxvc: %s applied %d head moves", r.id, len(entries))
	return nil
}

// Reflog returns the head moves of a perspective, newest first.
func (r *Remote) Reflog(perspectiveID string) []dag.RefLogEntry {
	return r.RefLog.Entries(perspectiveID)
}

// Perspectives lists the ids that currently have a head.
func (r *Remote) Perspectives() ([]string, error) {
	return r.Refs.List()
}
