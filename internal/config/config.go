// Package config loads mxvc settings from a YAML file and MXVC_*
// environment variables, and opens the configured remotes.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/dag"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote/ipfs"
	"github.com/systemshift/memex-vc/internal/remote/local"
	"github.com/systemshift/memex-vc/internal/remote/memory"
	"github.com/systemshift/memex-vc/internal/remote/sqlitestore"
)

// DefaultPath is read when no config file is named. It may be absent.
const DefaultPath = ".mxvc.yaml"

// Remote kinds.
const (
	KindLocal  = "local"
	KindSQLite = "sqlite"
	KindIPFS   = "ipfs"
	KindMemory = "memory"
)

const defaultKuboAPI = "http://localhost:5001"

// RemoteConfig describes one backend.
type RemoteConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	// Path is the repo root for local, the database file for sqlite and the
	// ref state directory for ipfs.
	Path string `yaml:"path"`
	// API is the Kubo HTTP API of an ipfs remote.
	API string `yaml:"api"`
}

type Config struct {
	Remotes       []RemoteConfig `yaml:"remotes"`
	DefaultRemote string         `yaml:"default_remote"`
	Identity      string         `yaml:"identity"`
	// Owner overrides the identity's DID as the default fork owner.
	Owner        string `yaml:"owner"`
	OtelEndpoint string `yaml:"otel_endpoint"`
	// Dir is the root of the implicit local remote used when the file names
	// no remotes.
	Dir string `yaml:"dir"`
}

// envConfig holds the settings the environment may override. Empty values
// leave the file's settings alone.
type envConfig struct {
	DefaultRemote string `env:"MXVC_DEFAULT_REMOTE"`
	Identity      string `env:"MXVC_IDENTITY"`
	Owner         string `env:"MXVC_OWNER"`
	OtelEndpoint  string `env:"MXVC_OTEL_ENDPOINT"`
	Dir           string `env:"MXVC_DIR"`
}

func (c *Config) override(e envConfig) {
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&c.DefaultRemote, e.DefaultRemote},
		{&c.Identity, e.Identity},
		{&c.Owner, e.Owner},
		{&c.OtelEndpoint, e.OtelEndpoint},
		{&c.Dir, e.Dir},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
}

// Load reads path (DefaultPath when empty), then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	var e envConfig
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.override(e)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
	if len(c.Remotes) == 0 {
		c.Remotes = []RemoteConfig{{ID: KindLocal, Kind: KindLocal, Path: c.Dir}}
	}
	for i := range c.Remotes {
		if c.Remotes[i].Kind == KindIPFS && c.Remotes[i].API == "" {
			c.Remotes[i].API = defaultKuboAPI
		}
	}
	if c.DefaultRemote == "" {
		c.DefaultRemote = c.Remotes[0].ID
	}
}

// Validate reports the first problem as an InvalidConfigError.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Remotes))
	for i, r := range c.Remotes {
		if r.ID == "" {
			return &model.InvalidConfigError{Reason: fmt.Sprintf("remote %d has no id", i)}
		}
		if seen[r.ID] {
			return &model.InvalidConfigError{Reason: fmt.Sprintf("remote %q listed twice", r.ID)}
		}
		seen[r.ID] = true
		switch r.Kind {
		case KindLocal, KindSQLite, KindIPFS:
			if r.Path == "" {
				return &model.InvalidConfigError{Reason: fmt.Sprintf("remote %q needs a path", r.ID)}
			}
		case KindMemory:
		default:
			return &model.InvalidConfigError{Reason: fmt.Sprintf("remote %q has unknown kind %q", r.ID, r.Kind)}
		}
	}
	if !seen[c.DefaultRemote] {
		return &model.InvalidConfigError{Reason: fmt.Sprintf("default remote %q is not configured", c.DefaultRemote)}
	}
	return nil
}

// Backends are the opened remotes behind one Router.
type Backends struct {
	Router  *client.Router
	Remotes []client.Remote
	closers []io.Closer
}

// Open opens every configured remote. Relative paths resolve against base.
func (c *Config) Open(base string) (*Backends, error) {
	b := &Backends{}
	for _, rc := range c.Remotes {
		rem, err := openRemote(rc, base)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open remote %s: %w", rc.ID, err)
		}
		if cl, ok := rem.(io.Closer); ok {
			b.closers = append(b.closers, cl)
		}
		b.Remotes = append(b.Remotes, rem)
	}
	router, err := client.NewRouter(b.Remotes...)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Router = router
	return b, nil
}

func openRemote(rc RemoteConfig, base string) (client.Remote, error) {
	path := rc.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	switch rc.Kind {
	case KindLocal:
		return local.Open(rc.ID, path)
	case KindSQLite:
		return sqlitestore.Open(rc.ID, path)
	case KindIPFS:
		return ipfs.Open(rc.ID, rc.API, path)
	case KindMemory:
		return memory.New(rc.ID), nil
	}
	return nil, &model.InvalidConfigError{Reason: "unknown remote kind " + rc.Kind}
}

// Remote returns the opened remote with the given id.
func (b *Backends) Remote(id string) (client.Remote, bool) {
	for _, r := range b.Remotes {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Close releases every remote holding a handle.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Perspectives lists every perspective with a head on any remote, sorted.
func (b *Backends) Perspectives(ctx context.Context) ([]string, error) {
	var out []string
	for _, r := range b.Remotes {
		var ids []string
		var err error
		switch r := r.(type) {
		case *memory.Remote:
			ids = r.Perspectives()
		case *local.Remote:
			ids, err = r.Perspectives()
		case *ipfs.Remote:
			ids, err = r.Perspectives()
		case *sqlitestore.Store:
			ids, err = r.Perspectives(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", r.ID(), err)
		}
		out = append(out, ids...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Reflog returns the journaled head moves of a perspective on its owning
// remote, newest first.
func (b *Backends) Reflog(ctx context.Context, perspectiveID string) ([]dag.RefLogEntry, error) {
	owner, err := b.Router.RemoteOf(ctx, perspectiveID)
	if err != nil {
		return nil, err
	}
	r, ok := b.Remote(owner)
	if !ok {
		return nil, model.NotFound("remote", owner)
	}
	switch r := r.(type) {
	case *memory.Remote:
		return r.Reflog(perspectiveID), nil
	case *local.Remote:
		return r.Reflog(perspectiveID), nil
	case *ipfs.Remote:
		return r.Reflog(perspectiveID), nil
	case *sqlitestore.Store:
		return r.Reflog(ctx, perspectiveID)
	}
	return nil, fmt.Errorf("remote %s keeps no reflog", owner)
}
