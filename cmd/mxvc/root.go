package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/systemshift/memex-vc/internal/ancestry"
	"github.com/systemshift/memex-vc/internal/config"
	"github.com/systemshift/memex-vc/internal/dag"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/telemetry"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mxvc",
	Short: "Version control for linked documents",
	Long: `mxvc keeps documents as content-addressed commits reachable through
perspectives, and merges perspectives together with everything they link to.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: openWorkspace,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath+" if present)")
}

// workspace is what every subcommand runs against.
type workspace struct {
	cfg      *config.Config
	backends *config.Backends
	identity *dag.Identity
	shutdown func(context.Context) error
}

var ws *workspace

// setupTracing is replaced in tests.
var setupTracing = telemetry.Setup

func openWorkspace(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	shutdown, err := setupTracing(cmd.Context(), "mxvc", cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	w := &workspace{cfg: cfg, shutdown: shutdown}
	base := "."
	if configPath != "" {
		base = filepath.Dir(configPath)
	}
	if w.backends, err = cfg.Open(base); err != nil {
		w.close(cmd.Context())
		return err
	}
	if w.identity, err = dag.LoadIdentity(cfg.Identity); err != nil {
		w.close(cmd.Context())
		return fmt.Errorf("load identity: %w", err)
	}
	ws = w
	glog.V(1).Infof("mxvc: %d remotes, default %s, identity %s", len(w.backends.Remotes), cfg.DefaultRemote, w.identity.DID)
	return nil
}

// close releases whatever the workspace has opened so far.
func (w *workspace) close(ctx context.Context) {
	if w.backends != nil {
		if err := w.backends.Close(); err != nil {
			glog.Warningf("mxvc: close remotes: %v", err)
		}
	}
	if err := w.shutdown(ctx); err != nil {
		glog.Warningf("mxvc: flush traces: %v", err)
	}
}

func closeWorkspace() {
	if ws == nil {
		return
	}
	ws.close(context.Background())
	ws = nil
}

// owner is the DID new forks belong to unless a command overrides it.
func (w *workspace) owner() string {
	if w.cfg.Owner != "" {
		return w.cfg.Owner
	}
	return w.identity.DID
}

func (w *workspace) finder() (*ancestry.Finder, error) {
	return ancestry.NewFinder(w.backends.Router, ancestry.DefaultCacheSize)
}

// readDocument loads a document from a JSON envelope file ("-" for stdin),
// e.g. {"type": "page", "body": {"title": "t", "pages": []}}.
func readDocument(path string) (model.Document, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	obj, err := (&model.Entity{ID: path, Object: data}).Decode()
	if err != nil {
		return nil, err
	}
	return model.AsDocument(obj)
}

// documentFrom picks the document given by --file or --title.
func documentFrom(file, title string) (model.Document, error) {
	switch {
	case file != "" && title != "":
		return nil, fmt.Errorf("--file and --title are exclusive")
	case file != "":
		return readDocument(file)
	case title != "":
		return &model.Title{Title: title}, nil
	}
	return nil, fmt.Errorf("one of --file or --title is required")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
