package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/memex-vc/internal/model"
)

func TestMergeLinks(t *testing.T) {
	tests := []struct {
		name     string
		original []string
		mods     [][]string
		want     []string
	}{
		{"append", []string{"a", "b"}, [][]string{{"a", "b", "c"}}, []string{"a", "b", "c"}},
		{"reorder", []string{"a", "b"}, [][]string{{"b", "a"}}, []string{"b", "a"}},
		{"delete", []string{"a", "b", "c"}, [][]string{{"a", "c"}, {"a", "b", "c"}}, []string{"a", "c"}},
		{"unchanged", []string{"a", "b"}, [][]string{{"a", "b"}, {"a", "b"}}, []string{"a", "b"}},
		{"both append same", []string{"a"}, [][]string{{"a", "b"}, {"a", "b"}}, []string{"a", "b"}},
		{"append on each side", []string{"a", "b"}, [][]string{{"a", "b", "c"}, {"a", "b"}}, []string{"a", "b", "c"}},
		{"insert front and append", []string{"a", "b"}, [][]string{{"x", "a", "b"}, {"a", "b", "c"}}, []string{"x", "a", "b", "c"}},
		{"from empty", nil, [][]string{{"a"}, nil}, []string{"a"}},
		{"everything removed", []string{"a"}, [][]string{{}, {}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeLinks(tt.original, tt.mods)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeLinks_Conflict(t *testing.T) {
	// both sides move a to different places
	_, err := MergeLinks([]string{"a", "b", "c"}, [][]string{{"b", "a", "c"}, {"b", "c", "a"}})
	var ce *model.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "link a", ce.Field)
}

func TestMergeLinks_DeleteVersusMove(t *testing.T) {
	_, err := MergeLinks([]string{"a", "b"}, [][]string{{"b"}, {"b", "a"}})
	assert.ErrorIs(t, err, model.ErrConflict)
}
