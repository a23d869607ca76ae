package model

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntity_IDMatchesContent(t *testing.T) {
	e, err := NewEntity(&Page{Title: "home", Pages: []string{"a", "b"}})
	require.NoError(t, err)
	require.NoError(t, e.Verify())

	e.Object = append([]byte{}, e.Object...)
	e.Object[len(e.Object)-2] = 'X'
	assert.Error(t, e.Verify())
}

func TestEncode_NilAndEmptyLinksHashEqual(t *testing.T) {
	a, err := Hash(&Page{Title: "x"})
	require.NoError(t, err)
	b, err := Hash(&Page{Title: "x", Pages: []string{}})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c1, err := Hash(&Commit{DataID: "d"})
	require.NoError(t, err)
	c2, err := Hash(&Commit{DataID: "d", ParentsIDs: []string{}, CreatorsIDs: []string{}})
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestEntity_DecodeRoundTrip(t *testing.T) {
	cases := []Object{
		&Perspective{Remote: "local", Path: "/", CreatorID: "did:x", Context: "doc1", Timestamp: 7},
		&Commit{CreatorsIDs: []string{"did:x"}, Timestamp: 1, ParentsIDs: []string{"p"}, DataID: "d", Forking: "f"},
		&Page{Title: "t", Pages: []string{"a"}},
		&TextNode{Text: "hello", Style: "paragraph", Children: []string{}},
		&Title{Title: "only"},
	}
	for _, obj := range cases {
		t.Run(string(obj.EntityType()), func(t *testing.T) {
			e, err := NewEntity(obj)
			require.NoError(t, err)
			got, err := e.Decode()
			require.NoError(t, err)
			assert.Equal(t, obj.EntityType(), got.EntityType())

			again, err := NewEntity(got)
			require.NoError(t, err)
			assert.Equal(t, e.ID, again.ID)
		})
	}
}

func TestEntity_DecodeUnknownTypeIsOpaque(t *testing.T) {
	e, err := NewEntity(&Opaque{Kind: "drawing", Body: []byte(`{"strokes":[1,2]}`)})
	require.NoError(t, err)

	obj, err := e.Decode()
	require.NoError(t, err)
	op, ok := obj.(*Opaque)
	require.True(t, ok)
	assert.Equal(t, Type("drawing"), op.Kind)

	again, err := NewEntity(op)
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID)
}

func TestErrors_IsAndAs(t *testing.T) {
	err := fmt.Errorf("load: %w", NotFound("commit", "c1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "c1", nf.ID)

	assert.True(t, errors.Is(&ConflictError{Field: "title"}, ErrConflict))
	assert.True(t, errors.Is(&InvalidConfigError{Reason: "x"}, ErrInvalidConfig))
	assert.True(t, errors.Is(&UnsupportedMergeError{Type: "x"}, ErrUnsupportedMerge))
	assert.False(t, errors.Is(&ConflictError{}, ErrNotFound))
}

func TestMutation_ConcurrentAppends(t *testing.T) {
	m := NewMutation()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.AddUpdate(UpdateRequest{PerspectiveID: fmt.Sprint(i), NewHeadID: "h"})
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.Updates, 50)
	assert.True(t, m.HasChanges())
}

func TestMutation_MergeAndEmpty(t *testing.T) {
	m := NewMutation()
	assert.True(t, m.IsEmpty())
	assert.False(t, m.HasChanges())

	other := NewMutation()
	other.AddDeleted("p")
	other.AddNewPerspective(NewPerspectiveData{ParentID: "x"})
	m.Merge(other)
	m.Merge(m)

	assert.False(t, m.IsEmpty())
	assert.False(t, m.HasChanges())
	assert.Equal(t, []string{"p"}, m.DeletedPerspectives)
	assert.Len(t, m.NewPerspectives, 1)
}
