package ancestry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/memex-vc/internal/model"
)

// mapStore is an EntityGetter over a map, counting reads.
type mapStore struct {
	entities map[string]*model.Entity
	reads    int
}

func newMapStore() *mapStore {
	return &mapStore{entities: make(map[string]*model.Entity)}
}

func (s *mapStore) GetEntity(_ context.Context, id string) (*model.Entity, error) {
	s.reads++
	e, ok := s.entities[id]
	if !ok {
		return nil, model.NotFound("entity", id)
	}
	return e, nil
}

// commit stores a commit with the given parents and returns its id.
func (s *mapStore) commit(t *testing.T, msg string, parents ...string) string {
	t.Helper()
	return s.put(t, &model.Commit{Message: msg, ParentsIDs: parents, DataID: "d-" + msg})
}

func (s *mapStore) put(t *testing.T, obj model.Object) string {
	t.Helper()
	e, err := model.NewEntity(obj)
	require.NoError(t, err)
	s.entities[e.ID] = e
	return e.ID
}

func newTestFinder(t *testing.T, s *mapStore) *Finder {
	t.Helper()
	f, err := NewFinder(s, 0)
	require.NoError(t, err)
	return f
}

// history:
//
//	root - a - b - c
//	         \
//	          x - y
type history struct {
	root, a, b, c, x, y string
}

func buildHistory(t *testing.T, s *mapStore) history {
	var h history
	h.root = s.commit(t, "root")
	h.a = s.commit(t, "a", h.root)
	h.b = s.commit(t, "b", h.a)
	h.c = s.commit(t, "c", h.b)
	h.x = s.commit(t, "x", h.a)
	h.y = s.commit(t, "y", h.x)
	return h
}

func TestIsAncestor_Self(t *testing.T) {
	s := newMapStore()
	h := buildHistory(t, s)
	f := newTestFinder(t, s)
	for _, id := range []string{h.root, h.a, h.c, h.y} {
		ok, err := f.IsAncestor(t.Context(), id, id, "")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestIsAncestor(t *testing.T) {
	s := newMapStore()
	h := buildHistory(t, s)
	f := newTestFinder(t, s)

	tests := []struct {
		name              string
		candidate, commit string
		stopAt            string
		want              bool
	}{
		{"parent", h.b, h.c, "", true},
		{"root", h.root, h.y, "", true},
		{"descendant is not ancestor", h.c, h.a, "", false},
		{"sibling branch", h.x, h.c, "", false},
		{"stopped before reaching", h.root, h.c, h.b, false},
		{"boundary itself counts", h.b, h.c, h.b, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.IsAncestor(t.Context(), tt.candidate, tt.commit, tt.stopAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsAncestor_MissingCommit(t *testing.T) {
	s := newMapStore()
	orphan := s.commit(t, "orphan", "bafkreimissing")
	f := newTestFinder(t, s)
	_, err := f.IsAncestor(t.Context(), "bafkreielsewhere", orphan, "")
	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "commit", nf.Kind)
}

func TestIsForkAncestor(t *testing.T) {
	s := newMapStore()
	src := s.commit(t, "src")
	forked := s.put(t, &model.Commit{DataID: "d", Forking: src})
	f := newTestFinder(t, s)

	ok, err := f.IsAncestor(t.Context(), src, forked, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.IsForkAncestor(t.Context(), src, forked, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFindCommonAncestor(t *testing.T) {
	s := newMapStore()
	h := buildHistory(t, s)
	f := newTestFinder(t, s)

	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"same commit", []string{h.c, h.c}, h.c},
		{"diverged", []string{h.c, h.y}, h.a},
		{"linear", []string{h.c, h.a}, h.a},
		{"linear reversed", []string{h.a, h.c}, h.a},
		{"three way", []string{h.c, h.y, h.b}, h.a},
		{"single input", []string{h.b}, h.b},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := f.FindCommonAncestor(t.Context(), tt.ids)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindCommonAncestor_Unrelated(t *testing.T) {
	s := newMapStore()
	one := s.commit(t, "one")
	two := s.commit(t, "two")
	f := newTestFinder(t, s)

	_, ok, err := f.FindCommonAncestor(t.Context(), []string{one, two})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindCommonAncestor_FollowsForking(t *testing.T) {
	s := newMapStore()
	base := s.commit(t, "base")
	local := s.commit(t, "local", base)
	forked := s.put(t, &model.Commit{DataID: "d-fork", Forking: base})
	remoteEdit := s.put(t, &model.Commit{DataID: "d-remote", ParentsIDs: []string{forked}})
	f := newTestFinder(t, s)

	got, ok, err := f.FindCommonAncestor(t.Context(), []string{local, remoteEdit})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base, got)
}

func TestFinder_CachesCommits(t *testing.T) {
	s := newMapStore()
	h := buildHistory(t, s)
	f := newTestFinder(t, s)

	_, err := f.IsAncestor(t.Context(), h.root, h.c, "")
	require.NoError(t, err)
	reads := s.reads
	_, err = f.IsAncestor(t.Context(), h.root, h.c, "")
	require.NoError(t, err)
	assert.Equal(t, reads, s.reads, "second walk should be served from cache")
}

func TestLog(t *testing.T) {
	s := newMapStore()
	h := buildHistory(t, s)
	merge := s.commit(t, "merge", h.c, h.y)
	f := newTestFinder(t, s)

	entries, err := f.Log(t.Context(), merge, 0)
	require.NoError(t, err)
	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Commit.Message)
	}
	assert.Equal(t, []string{"merge", "c", "b", "a", "root"}, msgs)

	entries, err = f.Log(t.Context(), merge, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, merge, entries[0].ID)
}

func TestIsAncestor_Cancelled(t *testing.T) {
	s := newMapStore()
	h := buildHistory(t, s)
	f := newTestFinder(t, s)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := f.IsAncestor(ctx, h.root, h.c, "")
	assert.ErrorIs(t, err, context.Canceled)
}
