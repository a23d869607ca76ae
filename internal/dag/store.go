package dag

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// ErrObjectNotFound is returned by ObjectStore.Get for unknown ids.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore manages CID-addressed immutable objects on disk.
type ObjectStore struct {
	dir string // path to objects/ directory
}

// NewObjectStore creates an ObjectStore at the given directory.
func NewObjectStore(dir string) (*ObjectStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	return &ObjectStore{dir: dir}, nil
}

// ComputeCID computes a CIDv1 (raw codec, SHA2-256) for the given data.
func ComputeCID(data []byte) (gocid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

// ComputeID is ComputeCID rendered as the string id used across the engine.
func ComputeID(data []byte) (string, error) {
	c, err := ComputeCID(data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// ParseID decodes a string id back into a CID.
func ParseID(id string) (gocid.Cid, error) {
	c, err := gocid.Decode(id)
	if err != nil {
		return gocid.Undef, fmt.Errorf("decode id %q: %w", id, err)
	}
	return c, nil
}

// VerifyID reports whether data hashes to id.
func VerifyID(id string, data []byte) bool {
	want, err := ParseID(id)
	if err != nil {
		return false
	}
	got, err := want.Prefix().Sum(data)
	if err != nil {
		return false
	}
	return got.Equals(want)
}

// CIDToFilename returns the base32lower encoding of a CID for use as a filename.
func CIDToFilename(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

func (s *ObjectStore) path(id string) (string, error) {
	c, err := ParseID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, CIDToFilename(c)), nil
}

// Put writes data to the object store, returning its id.
// If the object already exists, this is a no-op.
func (s *ObjectStore) Put(data []byte) (string, error) {
	c, err := ComputeCID(data)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, CIDToFilename(c))
	if _, err := os.Stat(path); err == nil {
		return c.String(), nil // already exists
	}
	if err := SafeWrite(path, data, 0644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return c.String(), nil
}

// Get reads an object by id and checks it still hashes to that id.
func (s *ObjectStore) Get(id string) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("read object %s: %w", id, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id, err)
	}
	if !VerifyID(id, data) {
		return nil, fmt.Errorf("object %s: content does not match id", id)
	}
	return data, nil
}

// Has checks if an object exists.
func (s *ObjectStore) Has(id string) bool {
	path, err := s.path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
