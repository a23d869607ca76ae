// Package merge reconciles divergent perspectives. The primitives
// (MergeResult, MergeStrings, MergeLinks, MergeDocuments) are three-way
// merges against a common original; the strategies (Simple, Recursive,
// OwnerPreserving) turn them into Mutations.
package merge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/systemshift/memex-vc/internal/model"
)

// MergeResult applies the three-way rule: no modification differs from
// original → original; one distinct changed value → that value; changed
// values that disagree → ConflictError.
func MergeResult[T comparable](original T, modifications []T) (T, error) {
	return MergeResultFunc(original, modifications, func(a, b T) bool { return a == b })
}

// MergeResultFunc is MergeResult with a caller-supplied equality.
func MergeResultFunc[T any](original T, modifications []T, equal func(a, b T) bool) (T, error) {
	var (
		result  T
		changed bool
	)
	for _, m := range modifications {
		if equal(m, original) {
			continue
		}
		if !changed {
			result, changed = m, true
			continue
		}
		if !equal(m, result) {
			var zero T
			return zero, &model.ConflictError{Detail: "modifications disagree"}
		}
	}
	if !changed {
		return original, nil
	}
	return result, nil
}

// conflictOn labels a ConflictError with the field it happened on.
func conflictOn(field string, err error) error {
	var ce *model.ConflictError
	if errors.As(err, &ce) && ce.Field == "" {
		return &model.ConflictError{Field: field, Detail: ce.Detail}
	}
	return err
}

// slots is a modification projected onto the original string: ins[i] is the
// text inserted before original rune i (ins[n] appends), keep[i] whether
// rune i survives.
type slots struct {
	ins  []string
	keep []bool
}

func unchanged(n int) slots {
	s := slots{ins: make([]string, n+1), keep: make([]bool, n)}
	for i := range s.keep {
		s.keep[i] = true
	}
	return s
}

func project(n int, diffs []diffmatchpatch.Diff) slots {
	s := unchanged(n)
	i := 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			i += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			for range []rune(d.Text) {
				s.keep[i] = false
				i++
			}
		case diffmatchpatch.DiffInsert:
			s.ins[i] += d.Text
		}
	}
	return s
}

// MergeStrings merges text edits character by character. Each modification
// is diffed against original; the scalar rule then runs per insertion slot
// and per original character, so edits to disjoint regions combine. Two
// different insertions at the same place conflict.
func MergeStrings(original string, modifications []string) (string, error) {
	if len(modifications) == 0 {
		return original, nil
	}
	orig := []rune(original)
	n := len(orig)
	dmp := diffmatchpatch.New()
	projected := make([]slots, len(modifications))
	for k, m := range modifications {
		if m == original {
			projected[k] = unchanged(n)
			continue
		}
		projected[k] = project(n, dmp.DiffMain(original, m, false))
	}

	var b strings.Builder
	ins := make([]string, len(projected))
	keep := make([]bool, len(projected))
	for i := 0; i <= n; i++ {
		for k, p := range projected {
			ins[k] = p.ins[i]
		}
		text, err := MergeResult("", ins)
		if err != nil {
			return "", &model.ConflictError{Detail: fmt.Sprintf("competing insertions at offset %d", i)}
		}
		b.WriteString(text)
		if i == n {
			break
		}
		for k, p := range projected {
			keep[k] = p.keep[i]
		}
		kept, _ := MergeResult(true, keep) // deletion is the only possible change
		if kept {
			b.WriteRune(orig[i])
		}
	}
	return b.String(), nil
}
