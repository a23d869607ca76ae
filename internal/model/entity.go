// Package model defines the immutable entities (perspectives, commits and
// documents), the Mutation produced by merges and the engine's error types.
package model

import (
	"encoding/json"
	"fmt"

	"github.com/systemshift/memex-vc/internal/dag"
)

// Type tags the payload carried by an entity envelope.
type Type string

const (
	TypePerspective Type = "perspective"
	TypeCommit      Type = "commit"
	TypePage        Type = "page"
	TypeTextNode    Type = "text-node"
	TypeTitle       Type = "title"
)

// Object is anything that can be stored as an entity.
type Object interface {
	EntityType() Type
}

// envelope is the canonical on-store shape of every entity.
type envelope struct {
	Type Type            `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Entity is an immutable, content-addressed payload. ID is always the CID of
// Object, which holds the canonical encoding.
type Entity struct {
	ID     string `json:"id"`
	Object []byte `json:"object"`
}

// Encode returns the canonical bytes for obj.
func Encode(obj Object) ([]byte, error) {
	switch o := obj.(type) {
	case *Commit:
		obj = o.normalized()
	case Document:
		obj = o.WithLinks(o.Links())
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", obj.EntityType(), err)
	}
	return dag.CanonicalJSON(envelope{Type: obj.EntityType(), Body: body})
}

// Hash returns the id obj would be stored under.
func Hash(obj Object) (string, error) {
	data, err := Encode(obj)
	if err != nil {
		return "", err
	}
	return dag.ComputeID(data)
}

// NewEntity encodes obj and computes its id.
func NewEntity(obj Object) (*Entity, error) {
	data, err := Encode(obj)
	if err != nil {
		return nil, err
	}
	id, err := dag.ComputeID(data)
	if err != nil {
		return nil, err
	}
	return &Entity{ID: id, Object: data}, nil
}

// Verify checks that the entity id matches its content.
func (e *Entity) Verify() error {
	if !dag.VerifyID(e.ID, e.Object) {
		return fmt.Errorf("entity %s: content does not match id", e.ID)
	}
	return nil
}

// Type returns the envelope tag without decoding the body.
func (e *Entity) Type() (Type, error) {
	var env envelope
	if err := json.Unmarshal(e.Object, &env); err != nil {
		return "", fmt.Errorf("decode entity %s: %w", e.ID, err)
	}
	return env.Type, nil
}

// Decode returns the typed object. Unknown tags decode to *Opaque.
func (e *Entity) Decode() (Object, error) {
	var env envelope
	if err := json.Unmarshal(e.Object, &env); err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", e.ID, err)
	}
	var obj Object
	switch env.Type {
	case TypePerspective:
		obj = &Perspective{}
	case TypeCommit:
		obj = &Commit{}
	case TypePage:
		obj = &Page{}
	case TypeTextNode:
		obj = &TextNode{}
	case TypeTitle:
		obj = &Title{}
	default:
		return &Opaque{Kind: env.Type, Body: env.Body}, nil
	}
	if err := json.Unmarshal(env.Body, obj); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", env.Type, e.ID, err)
	}
	return obj, nil
}
