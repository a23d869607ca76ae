// Package fuse mounts a read-only view of perspectives:
//
//	perspectives/<id>/head           head commit id
//	perspectives/<id>/context        logical document id
//	perspectives/<id>/remote         owning remote
//	perspectives/<id>/document.json  head document
//	perspectives/<id>/links/<id>     symlinks to linked perspectives
//	perspectives/<id>/log/N          Nth first-parent commit from head
package fuse

import (
	"context"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/memex-vc/internal/ancestry"
	"github.com/systemshift/memex-vc/internal/client"
)

// Lister enumerates the perspectives the view shows at its root.
type Lister interface {
	Perspectives(ctx context.Context) ([]string, error)
}

// View is what every node in the tree reads through.
type View struct {
	Client client.Client
	Finder *ancestry.Finder
	List   Lister
}

// MountFS mounts the view at mountpoint.
// Returns the server (call server.Wait() to block, server.Unmount() to stop).
func MountFS(mountpoint string, view *View, debug bool) (*gofuse.Server, error) {
	root := &RootNode{view: view}

	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName:        "mxvc",
			Name:          "mxvc",
			DisableXAttrs: true,
			Debug:         debug,
		},
	}

	return fs.Mount(mountpoint, root, opts)
}
