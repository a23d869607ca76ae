package fuse

import (
	"context"
	"errors"
	"syscall"

	"github.com/golang/glog"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/memex-vc/internal/model"
)

// RootNode is the mountpoint directory. Contains "perspectives/".
type RootNode struct {
	fs.Inode
	view *View
}

var _ = (fs.NodeOnAdder)((*RootNode)(nil))
var _ = (fs.NodeGetattrer)((*RootNode)(nil))

func (r *RootNode) OnAdd(ctx context.Context) {
	dir := &PerspectivesDir{view: r.view}
	inode := r.NewPersistentInode(ctx, dir, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("perspectives"),
	})
	r.AddChild("perspectives", inode, true)
}

func (r *RootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("/")
	return fs.OK
}

// errno maps engine errors onto the closest errno.
func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return fs.OK
	case errors.Is(err, model.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	}
	glog.Warningf("mxvc: fuse: %v", err)
	return syscall.EIO
}

// PerspectivesDir lists every perspective with a head.
type PerspectivesDir struct {
	fs.Inode
	view *View
}

var _ = (fs.NodeLookuper)((*PerspectivesDir)(nil))
var _ = (fs.NodeReaddirer)((*PerspectivesDir)(nil))
var _ = (fs.NodeGetattrer)((*PerspectivesDir)(nil))

func (d *PerspectivesDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("perspectives")
	return fs.OK
}

func (d *PerspectivesDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	ids, err := d.view.List.Perspectives(ctx)
	if err != nil {
		return nil, errno(err)
	}
	entries := make([]fuse.DirEntry, len(ids))
	for i, id := range ids {
		entries[i] = fuse.DirEntry{
			Name: id,
			Mode: syscall.S_IFDIR,
			Ino:  stableIno("perspectives", id),
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *PerspectivesDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if _, err := d.view.Client.GetPerspective(ctx, name); err != nil {
		return nil, errno(err)
	}
	child := d.NewInode(ctx, &PerspectiveDir{view: d.view, id: name}, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("perspectives", name),
	})
	return child, fs.OK
}
