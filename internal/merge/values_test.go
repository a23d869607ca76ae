package merge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/memex-vc/internal/model"
)

func TestMergeResult(t *testing.T) {
	tests := []struct {
		name     string
		original string
		mods     []string
		want     string
		conflict bool
	}{
		{"no change", "O", []string{"O", "O"}, "O", false},
		{"one side changed", "O", []string{"M", "O"}, "M", false},
		{"other side changed", "O", []string{"O", "M"}, "M", false},
		{"convergent change", "O", []string{"M", "M"}, "M", false},
		{"divergent change", "O", []string{"M1", "M2"}, "", true},
		{"no modifications", "O", nil, "O", false},
		{"three way convergent", "O", []string{"M", "O", "M"}, "M", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeResult(tt.original, tt.mods)
			if tt.conflict {
				assert.ErrorIs(t, err, model.ErrConflict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeResultFunc_CustomEquality(t *testing.T) {
	fold := func(a, b string) bool { return strings.EqualFold(a, b) }
	got, err := MergeResultFunc("abc", []string{"ABC", "x"}, fold)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestConflictOn(t *testing.T) {
	_, err := MergeResult(1, []int{2, 3})
	err = conflictOn("count", err)
	var ce *model.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "count", ce.Field)

	// an already-labelled conflict keeps its field
	err = conflictOn("outer", err)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "count", ce.Field)
}

func TestMergeStrings(t *testing.T) {
	tests := []struct {
		name     string
		original string
		mods     []string
		want     string
	}{
		{"unchanged", "hello world", []string{"hello world", "hello world"}, "hello world"},
		{"one side", "hello world", []string{"hello brave world", "hello world"}, "hello brave world"},
		{"disjoint edits", "hello world", []string{"Hello world", "hello world!"}, "Hello world!"},
		{"delete and insert", "the quick fox", []string{"the fox", "the quick fox jumps"}, "the fox jumps"},
		{"same edit twice", "abc", []string{"abXc", "abXc"}, "abXc"},
		{"from empty", "", []string{"new", ""}, "new"},
		{"unicode", "héllo", []string{"héllo!", "¡héllo"}, "¡héllo!"},
		{"both delete", "abc", []string{"ac", "ac"}, "ac"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeStrings(tt.original, tt.mods)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeStrings_CompetingInsertions(t *testing.T) {
	_, err := MergeStrings("ab", []string{"aXb", "aYb"})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestMergeDocuments_Page(t *testing.T) {
	base := &model.Page{Title: "home", Pages: []string{"a", "b"}}
	got, err := MergeDocuments(context.Background(), base, []model.Document{
		&model.Page{Title: "Home", Pages: []string{"a", "b"}},
		&model.Page{Title: "home", Pages: []string{"a", "b", "c"}},
	}, PlainLinks)
	require.NoError(t, err)
	assert.Equal(t, &model.Page{Title: "Home", Pages: []string{"a", "b", "c"}}, got)
}

func TestMergeDocuments_TextNode(t *testing.T) {
	base := &model.TextNode{Text: "one two three", Style: "paragraph", Children: []string{"x"}}
	got, err := MergeDocuments(context.Background(), base, []model.Document{
		&model.TextNode{Text: "one 2 three", Style: "paragraph", Children: []string{"x"}},
		&model.TextNode{Text: "one two three four", Style: "title", Children: []string{}},
	}, PlainLinks)
	require.NoError(t, err)
	assert.Equal(t, &model.TextNode{Text: "one 2 three four", Style: "title", Children: []string{}}, got)
}

func TestMergeDocuments_TitleConflict(t *testing.T) {
	_, err := MergeDocuments(context.Background(), &model.Title{Title: "a"}, []model.Document{
		&model.Title{Title: "b"}, &model.Title{Title: "c"},
	}, PlainLinks)
	var ce *model.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "title", ce.Field)
}

func TestMergeDocuments_Opaque(t *testing.T) {
	op := &model.Opaque{Kind: "drawing", Body: []byte(`{}`)}
	_, err := MergeDocuments(context.Background(), op, []model.Document{op, op}, PlainLinks)
	var ue *model.UnsupportedMergeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "drawing", ue.Type)
}

func TestMergeDocuments_KindChange(t *testing.T) {
	base := &model.Title{Title: "t"}
	replaced := &model.Page{Title: "t", Pages: []string{}}
	got, err := MergeDocuments(context.Background(), base, []model.Document{base, replaced}, PlainLinks)
	require.NoError(t, err)
	assert.Equal(t, replaced, got)

	_, err = MergeDocuments(context.Background(), base, []model.Document{
		&model.Title{Title: "u"}, replaced,
	}, PlainLinks)
	assert.ErrorIs(t, err, model.ErrConflict)
}
