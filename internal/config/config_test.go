package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mxvc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"MXVC_DEFAULT_REMOTE", "MXVC_IDENTITY", "MXVC_OWNER", "MXVC_OTEL_ENDPOINT", "MXVC_DIR"} {
		t.Setenv(k, "")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
remotes:
  - id: home
    kind: local
    path: repo
  - id: shared
    kind: ipfs
    path: ipfs-state
  - id: db
    kind: sqlite
    path: mx.db
default_remote: db
owner: did:key:z6MkOwner
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Remotes, 3)
	assert.Equal(t, RemoteConfig{ID: "home", Kind: KindLocal, Path: "repo"}, cfg.Remotes[0])
	assert.Equal(t, defaultKuboAPI, cfg.Remotes[1].API)
	assert.Equal(t, "db", cfg.DefaultRemote)
	assert.Equal(t, "did:key:z6MkOwner", cfg.Owner)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []RemoteConfig{{ID: KindLocal, Kind: KindLocal, Path: "."}}, cfg.Remotes)
	assert.Equal(t, KindLocal, cfg.DefaultRemote)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
remotes:
  - id: a
    kind: memory
  - id: b
    kind: memory
owner: from-file
`)
	t.Setenv("MXVC_DEFAULT_REMOTE", "b")
	t.Setenv("MXVC_OWNER", "from-env")
	t.Setenv("MXVC_OTEL_ENDPOINT", "http://collector:4318")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "b", cfg.DefaultRemote)
	assert.Equal(t, "from-env", cfg.Owner)
	assert.Equal(t, "http://collector:4318", cfg.OtelEndpoint)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no id", "remotes:\n  - kind: memory\n"},
		{"duplicate", "remotes:\n  - {id: a, kind: memory}\n  - {id: a, kind: memory}\n"},
		{"unknown kind", "remotes:\n  - {id: a, kind: s3}\n"},
		{"missing path", "remotes:\n  - {id: a, kind: sqlite}\n"},
		{"unknown default", "remotes:\n  - {id: a, kind: memory}\ndefault_remote: b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, model.ErrInvalidConfig)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "remotes: [\n"))
	assert.ErrorContains(t, err, "parse")
}

func TestOpen(t *testing.T) {
	cfg := &Config{
		Remotes: []RemoteConfig{
			{ID: "mem", Kind: KindMemory},
			{ID: "files", Kind: KindLocal, Path: "files"},
			{ID: "db", Kind: KindSQLite, Path: "mx.db"},
		},
		DefaultRemote: "mem",
	}
	require.NoError(t, cfg.Validate())

	base := t.TempDir()
	b, err := cfg.Open(base)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, b.Close()) })

	assert.Len(t, b.Remotes, 3)
	assert.Len(t, b.closers, 1)
	_, ok := b.Router.Remote("files")
	assert.True(t, ok)
	_, ok = b.Remote("db")
	assert.True(t, ok)
	assert.DirExists(t, filepath.Join(base, "files", ".mx"))
	assert.FileExists(t, filepath.Join(base, "mx.db"))
}

func TestBackends_PerspectivesAndReflog(t *testing.T) {
	cfg := &Config{
		Remotes: []RemoteConfig{
			{ID: "mem", Kind: KindMemory},
			{ID: "db", Kind: KindSQLite, Path: "mx.db"},
		},
		DefaultRemote: "mem",
	}
	b, err := cfg.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	ctx := t.Context()
	var ids []string
	for _, remote := range []string{"mem", "db"} {
		sp, m, err := client.CreatePerspective(ctx, b.Router, client.NewPerspective{
			Remote:   remote,
			Context:  "notes",
			Creator:  "did:key:z6MkOwner",
			Document: &model.Title{Title: remote},
		})
		require.NoError(t, err)
		require.NoError(t, b.Router.Update(ctx, m))
		ids = append(ids, sp.ID)
	}

	listed, err := b.Perspectives(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, listed)

	for _, id := range ids {
		log, err := b.Reflog(ctx, id)
		require.NoError(t, err)
		require.Len(t, log, 1)
		assert.Equal(t, "create", log[0].Action)
	}
}
