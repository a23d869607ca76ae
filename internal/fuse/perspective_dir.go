package fuse

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
)

var perspectiveFiles = []string{"head", "context", "remote", "document.json"}

// PerspectiveDir is perspectives/<id>/.
type PerspectiveDir struct {
	fs.Inode
	view *View
	id   string
}

var _ = (fs.NodeLookuper)((*PerspectiveDir)(nil))
var _ = (fs.NodeReaddirer)((*PerspectiveDir)(nil))
var _ = (fs.NodeGetattrer)((*PerspectiveDir)(nil))

func (d *PerspectiveDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("perspectives", d.id)
	return fs.OK
}

func (d *PerspectiveDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	for _, name := range perspectiveFiles {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFREG, Ino: stableIno("perspectives", d.id, name)})
	}
	for _, name := range []string{"links", "log"} {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFDIR, Ino: stableIno("perspectives", d.id, name)})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *PerspectiveDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	attr := fs.StableAttr{Mode: syscall.S_IFREG, Ino: stableIno("perspectives", d.id, name)}
	switch name {
	case "links":
		attr.Mode = syscall.S_IFDIR
		return d.NewInode(ctx, &LinksDir{view: d.view, id: d.id}, attr), fs.OK
	case "log":
		attr.Mode = syscall.S_IFDIR
		return d.NewInode(ctx, &LogDir{view: d.view, id: d.id}, attr), fs.OK
	}
	if !slices.Contains(perspectiveFiles, name) {
		return nil, syscall.ENOENT
	}
	return d.NewInode(ctx, &PerspectiveFile{view: d.view, id: d.id, name: name}, attr), fs.OK
}

// PerspectiveFile renders one attribute of a perspective. Contents are
// computed on every read so the file follows the head.
type PerspectiveFile struct {
	fs.Inode
	view *View
	id   string
	name string
}

var _ = (fs.NodeGetattrer)((*PerspectiveFile)(nil))
var _ = (fs.NodeReader)((*PerspectiveFile)(nil))
var _ = (fs.NodeOpener)((*PerspectiveFile)(nil))

func (f *PerspectiveFile) content(ctx context.Context) ([]byte, error) {
	c := f.view.Client
	switch f.name {
	case "head":
		details, err := c.GetPerspective(ctx, f.id)
		if err != nil {
			return nil, err
		}
		if details.HeadID == "" {
			return []byte("(none)\n"), nil
		}
		return []byte(details.HeadID + "\n"), nil
	case "context", "remote":
		p, err := client.GetPerspectiveHeader(ctx, c, f.id)
		if err != nil {
			return nil, err
		}
		if f.name == "context" {
			return []byte(p.Context + "\n"), nil
		}
		return []byte(p.Remote + "\n"), nil
	case "document.json":
		doc, _, err := client.GetHeadDocument(ctx, c, f.id)
		if err != nil {
			return nil, err
		}
		return indentObject(doc)
	}
	return nil, model.NotFound("file", f.name)
}

func indentObject(obj model.Object) ([]byte, error) {
	raw, err := model.Encode(obj)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (f *PerspectiveFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, err := f.content(ctx)
	if err != nil {
		return errno(err)
	}
	out.Mode = 0444
	out.Size = uint64(len(data))
	out.Ino = stableIno("perspectives", f.id, f.name)
	return fs.OK
}

func (f *PerspectiveFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (f *PerspectiveFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := f.content(ctx)
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(readRange(data, dest, off)), fs.OK
}

// LinksDir lists the perspectives the head document links to, as symlinks
// into the sibling perspective directories.
type LinksDir struct {
	fs.Inode
	view *View
	id   string
}

var _ = (fs.NodeLookuper)((*LinksDir)(nil))
var _ = (fs.NodeReaddirer)((*LinksDir)(nil))
var _ = (fs.NodeGetattrer)((*LinksDir)(nil))

func (d *LinksDir) links(ctx context.Context) ([]string, error) {
	doc, _, err := client.GetHeadDocument(ctx, d.view.Client, d.id)
	if err != nil {
		return nil, err
	}
	return doc.Links(), nil
}

func (d *LinksDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("perspectives", d.id, "links")
	return fs.OK
}

func (d *LinksDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	links, err := d.links(ctx)
	if err != nil {
		return nil, errno(err)
	}
	var entries []fuse.DirEntry
	seen := make(map[string]bool)
	for _, l := range links {
		if seen[l] {
			continue
		}
		seen[l] = true
		entries = append(entries, fuse.DirEntry{
			Name: l,
			Mode: syscall.S_IFLNK,
			Ino:  stableIno("perspectives", d.id, "links", l),
		})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *LinksDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	links, err := d.links(ctx)
	if err != nil {
		return nil, errno(err)
	}
	if !slices.Contains(links, name) {
		return nil, syscall.ENOENT
	}
	sym := &LinkSymlink{target: "../../" + name}
	child := d.NewInode(ctx, sym, fs.StableAttr{
		Mode: syscall.S_IFLNK,
		Ino:  stableIno("perspectives", d.id, "links", name),
	})
	return child, fs.OK
}

// LinkSymlink is a single symlink in the links/ directory.
type LinkSymlink struct {
	fs.Inode
	target string
}

var _ = (fs.NodeReadlinker)((*LinkSymlink)(nil))
var _ = (fs.NodeGetattrer)((*LinkSymlink)(nil))

func (s *LinkSymlink) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	return []byte(s.target), fs.OK
}

func (s *LinkSymlink) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0777 | syscall.S_IFLNK
	out.Size = uint64(len(s.target))
	return fs.OK
}
