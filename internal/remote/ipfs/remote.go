// Package ipfs is a remote whose entities live in a Kubo daemon. Heads are
// not content and stay in a local ref directory next to a reflog.
package ipfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/systemshift/memex-vc/internal/dag"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote"
)

// Remote stores entities through Kubo and heads under stateDir.
type Remote struct {
	id     string
	kubo   *KuboClient
	refs   *dag.RefStore
	reflog *dag.RefLog

	mu sync.Mutex // serializes Apply
}

// Open returns an IPFS remote talking to the Kubo API at apiURL.
func Open(id, apiURL, stateDir string) (*Remote, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	refs, err := dag.NewRefStore(filepath.Join(stateDir, "refs"))
	if err != nil {
		return nil, err
	}
	reflog, err := dag.NewRefLog(filepath.Join(stateDir, "reflog.jsonl"))
	if err != nil {
		return nil, err
	}
	return &Remote{
		id:     id,
		kubo:   NewKuboClient(apiURL),
		refs:   refs,
		reflog: reflog,
	}, nil
}

func (r *Remote) ID() string { return r.id }

// Available reports whether the daemon answers.
func (r *Remote) Available(ctx context.Context) bool {
	return r.kubo.IsAvailable(ctx)
}

func (r *Remote) GetEntity(ctx context.Context, id string) ([]byte, error) {
	data, err := r.kubo.Cat(ctx, id)
	if err != nil {
		var status *errStatus
		if errors.As(err, &status) && strings.Contains(status.body, "not found") {
			return nil, model.NotFound("entity", id)
		}
		return nil, err
	}
	if !dag.VerifyID(id, data) {
		return nil, fmt.Errorf("entity %s: content does not match id", id)
	}
	return data, nil
}

// PutEntity adds data to IPFS. Objects big enough to be chunked get a
// different CID than the engine computes, which is reported as an error.
func (r *Remote) PutEntity(ctx context.Context, data []byte) (string, error) {
	want, err := dag.ComputeID(data)
	if err != nil {
		return "", err
	}
	got, err := r.kubo.Add(ctx, data)
	if err != nil {
		return "", err
	}
	if got != want {
		return "", fmt.Errorf("ipfs add: daemon returned %s, want %s", got, want)
	}
	return want, nil
}

func (r *Remote) GetHead(_ context.Context, perspectiveID string) (string, bool, error) {
	return r.refs.Get(perspectiveID)
}

// Apply validates all head moves before writing any ref.
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
		if _, err := r.PutEntity(ctx, data); err != nil {
			return fmt.Errorf("store perspective %s: %w", sp.ID, err)
		}
	}
	if err := r.refs.SetAll(plan.Final()); err != nil {
		return fmt.Errorf("write refs: %w", err)
	}
	entries := plan.RefLogEntries()
	now := time.Now().UTC()
	for i := range entries {
		entries[i].Timestamp = now
	}
	if err := r.reflog.Append(entries...); err != nil {
		return err
	}
	glog.V(1).Infof("mxvc: %s applied %d head moves", r.id, len(entries))
	return nil
}

// Reflog returns the head moves of a perspective, newest first.
func (r *Remote) Reflog(perspectiveID string) []dag.RefLogEntry {
	return r.reflog.Entries(perspectiveID)
}

// Perspectives lists the ids that currently have a head.
func (r *Remote) Perspectives() ([]string, error) {
	return r.refs.List()
}
