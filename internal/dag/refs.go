package dag

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// RefStore maps perspective ids to their current head commit id.
// Each ref is a file in the refs/ directory named after the perspective id
// whose content is the head id.
type RefStore struct {
	dir string
}

// NewRefStore creates a RefStore at the given directory.
func NewRefStore(dir string) (*RefStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create refs dir: %w", err)
	}
	return &RefStore{dir: dir}, nil
}

// Ids are base32 CIDs, but keep colons usable for hand-named refs.
func refFilename(id string) string {
	return strings.ReplaceAll(id, ":", "__")
}

func refIDFromFilename(name string) string {
	return strings.ReplaceAll(name, "__", ":")
}

// Set points perspective id at head. An empty head writes an empty ref,
// which reads back as "no head".
func (r *RefStore) Set(id, head string) error {
	path := filepath.Join(r.dir, refFilename(id))
	return SafeWrite(path, []byte(head+"\n"), 0644)
}

// Get returns the head of a perspective. ok is false when the ref does not exist.
func (r *RefStore) Get(id string) (head string, ok bool, err error) {
	path := filepath.Join(r.dir, refFilename(id))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read ref %s: %w", id, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Delete removes a ref. Deleting a missing ref is not an error.
func (r *RefStore) Delete(id string) error {
	path := filepath.Join(r.dir, refFilename(id))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Has checks if a ref exists.
func (r *RefStore) Has(id string) bool {
	path := filepath.Join(r.dir, refFilename(id))
	_, err := os.Stat(path)
	return err == nil
}

// List returns all ref ids.
func (r *RefStore) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, refIDFromFilename(e.Name()))
	}
	return ids, nil
}

// SetAll moves every ref in heads at once; an empty head deletes the ref.
// New contents are staged in temp files first, so a failure before the
// renames leaves every ref as it was. A failed rename restores the refs
// already moved.
func (r *RefStore) SetAll(heads map[string]string) error {
	ids := make([]string, 0, len(heads))
	for id := range heads {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	staged := make(map[string]string, len(ids))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()
	prev := make(map[string]string, len(ids))
	existed := make(map[string]bool, len(ids))
	for _, id := range ids {
		head, ok, err := r.Get(id)
		if err != nil {
			return err
		}
		prev[id], existed[id] = head, ok
		if heads[id] == "" {
			continue
		}
		tmp, err := r.stage(id, heads[id])
		if err != nil {
			return err
		}
		staged[id] = tmp
	}

	var moved []string
	for _, id := range ids {
		var err error
		path := filepath.Join(r.dir, refFilename(id))
		if tmp, ok := staged[id]; ok {
			err = os.Rename(tmp, path)
			delete(staged, id)
		} else if err = os.Remove(path); os.IsNotExist(err) {
			err = nil
		}
		if err != nil {
			err = fmt.Errorf("move ref %s: %w", id, err)
			return errors.Join(err, r.restore(moved, prev, existed))
		}
		moved = append(moved, id)
	}
	return syncDir(r.dir)
}

func (r *RefStore) stage(id, head string) (string, error) {
	f, err := os.CreateTemp(r.dir, "."+refFilename(id)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("stage ref %s: %w", id, err)
	}
	if err := writeSynced(f, []byte(head+"\n")); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close %s: %w", f.Name(), err)
	}
	return f.Name(), nil
}

func (r *RefStore) restore(ids []string, prev map[string]string, existed map[string]bool) error {
	var errs []error
	for _, id := range ids {
		if existed[id] {
			errs = append(errs, r.Set(id, prev[id]))
		} else {
			errs = append(errs, r.Delete(id))
		}
	}
	return errors.Join(errs...)
}
