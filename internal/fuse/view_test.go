package fuse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/memex-vc/internal/ancestry"
	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote/memory"
)

type memLister struct{ r *memory.Remote }

func (l memLister) Perspectives(context.Context) ([]string, error) { return l.r.Perspectives(), nil }

func newView(t *testing.T) *View {
	t.Helper()
	mem := memory.New("home")
	router, err := client.NewRouter(mem)
	require.NoError(t, err)
	finder, err := ancestry.NewFinder(router, 0)
	require.NoError(t, err)
	return &View{Client: router, Finder: finder, List: memLister{mem}}
}

func create(t *testing.T, v *View, logical string, doc model.Document) string {
	t.Helper()
	sp, m, err := client.CreatePerspective(t.Context(), v.Client, client.NewPerspective{
		Remote: "home", Context: logical, Creator: "did:key:z6MkOwner", Document: doc,
	})
	require.NoError(t, err)
	require.NoError(t, v.Client.Update(t.Context(), m))
	return sp.ID
}

func TestPerspectiveFile_Content(t *testing.T) {
	v := newView(t)
	child := create(t, v, "child", &model.Title{Title: "leaf"})
	root := create(t, v, "root", &model.Page{Title: "top", Pages: []string{child}})
	head, err := client.GetHead(t.Context(), v.Client, root)
	require.NoError(t, err)

	read := func(name string) string {
		data, err := (&PerspectiveFile{view: v, id: root, name: name}).content(t.Context())
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, head+"\n", read("head"))
	assert.Equal(t, "root\n", read("context"))
	assert.Equal(t, "home\n", read("remote"))
	doc := read("document.json")
	assert.Contains(t, doc, `"type": "page"`)
	assert.Contains(t, doc, child)

	links, err := (&LinksDir{view: v, id: root}).links(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{child}, links)
}

func TestPerspectiveFile_Missing(t *testing.T) {
	v := newView(t)
	_, err := (&PerspectiveFile{view: v, id: "bafkreinope", name: "head"}).content(t.Context())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLogDir_FirstParentHistory(t *testing.T) {
	v := newView(t)
	id := create(t, v, "notes", &model.Title{Title: "v1"})
	for _, title := range []string{"v2", "v3"} {
		_, m, err := client.CommitDocument(t.Context(), v.Client, id, &model.Title{Title: title}, "did:key:z6MkOwner", title)
		require.NoError(t, err)
		require.NoError(t, v.Client.Update(t.Context(), m))
	}

	entries, err := (&LogDir{view: v, id: id}).log(t.Context(), maxLogEntries)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "v3", entries[0].Commit.Message)

	data, err := logEntryBytes(entries[0])
	require.NoError(t, err)
	first, _, _ := strings.Cut(string(data), "\n")
	assert.Equal(t, entries[0].ID, first)
	assert.Contains(t, string(data), `"message": "v3"`)
}

func TestLister(t *testing.T) {
	v := newView(t)
	id := create(t, v, "notes", &model.Title{Title: "t"})
	ids, err := v.List.Perspectives(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestReadRange(t *testing.T) {
	data := []byte("hello")
	assert.Equal(t, []byte("hel"), readRange(data, make([]byte, 3), 0))
	assert.Equal(t, []byte("lo"), readRange(data, make([]byte, 8), 3))
	assert.Nil(t, readRange(data, make([]byte, 8), 5))
	assert.NotEqual(t, stableIno("a", "b"), stableIno("ab"))
}
