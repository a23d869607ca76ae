package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("merge conflict")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrUnsupportedMerge = errors.New("unsupported merge")
)

// NotFoundError reports a missing commit, document, perspective or head.
type NotFoundError struct {
	Kind string // "commit", "document", "perspective", "head", "entity", "ancestor"
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports an irreconcilable divergence between modifications.
type ConflictError struct {
	Field  string
	Detail string
}

func (e *ConflictError) Error() string {
	switch {
	case e.Field != "" && e.Detail != "":
		return fmt.Sprintf("merge conflict on %s: %s", e.Field, e.Detail)
	case e.Field != "":
		return fmt.Sprintf("merge conflict on %s", e.Field)
	case e.Detail != "":
		return "merge conflict: " + e.Detail
	}
	return "merge conflict"
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidConfigError reports a strategy invoked without required settings.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string { return "invalid config: " + e.Reason }

func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// UnsupportedMergeError reports an entity type with no merge behaviour.
type UnsupportedMergeError struct {
	Type string
}

func (e *UnsupportedMergeError) Error() string {
	return fmt.Sprintf("no merge behaviour for %q", e.Type)
}

func (e *UnsupportedMergeError) Is(target error) bool { return target == ErrUnsupportedMerge }
