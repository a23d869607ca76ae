package fuse

import (
	"context"
	"strconv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/memex-vc/internal/ancestry"
	"github.com/systemshift/memex-vc/internal/client"
)

const maxLogEntries = 64

// LogDir exposes a perspective's first-parent history.
// Layout: log/0 (head commit JSON), log/1 (its first parent), ...
type LogDir struct {
	fs.Inode
	view *View
	id   string
}

var _ = (fs.NodeLookuper)((*LogDir)(nil))
var _ = (fs.NodeReaddirer)((*LogDir)(nil))
var _ = (fs.NodeGetattrer)((*LogDir)(nil))

func (d *LogDir) log(ctx context.Context, limit int) ([]ancestry.LogEntry, error) {
	head, err := client.GetHead(ctx, d.view.Client, d.id)
	if err != nil {
		return nil, err
	}
	return d.view.Finder.Log(ctx, head, limit)
}

func (d *LogDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("perspectives", d.id, "log")
	return fs.OK
}

func (d *LogDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := d.log(ctx, maxLogEntries)
	if err != nil {
		return nil, errno(err)
	}
	out := make([]fuse.DirEntry, len(entries))
	for i := range entries {
		name := strconv.Itoa(i)
		out[i] = fuse.DirEntry{
			Name: name,
			Mode: syscall.S_IFREG,
			Ino:  stableIno("commits", entries[i].ID),
		}
	}
	return fs.NewListDirStream(out), fs.OK
}

func (d *LogDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 || idx >= maxLogEntries {
		return nil, syscall.ENOENT
	}
	entries, err := d.log(ctx, idx+1)
	if err != nil {
		return nil, errno(err)
	}
	if idx >= len(entries) {
		return nil, syscall.ENOENT
	}
	data, err := logEntryBytes(entries[idx])
	if err != nil {
		return nil, errno(err)
	}

	// keyed by commit, so log/N follows the head when it moves
	f := &LogEntryFile{data: data, ino: stableIno("commits", entries[idx].ID)}
	child := d.NewInode(ctx, f, fs.StableAttr{Mode: syscall.S_IFREG, Ino: f.ino})
	return child, fs.OK
}

// logEntryBytes renders a commit with its id as indented JSON.
func logEntryBytes(e ancestry.LogEntry) ([]byte, error) {
	body, err := indentObject(e.Commit)
	if err != nil {
		return nil, err
	}
	return append([]byte(e.ID+"\n"), body...), nil
}

// LogEntryFile holds one rendered commit. Commits are immutable, so the
// bytes are fixed at lookup.
type LogEntryFile struct {
	fs.Inode
	data []byte
	ino  uint64
}

var _ = (fs.NodeGetattrer)((*LogEntryFile)(nil))
var _ = (fs.NodeReader)((*LogEntryFile)(nil))
var _ = (fs.NodeOpener)((*LogEntryFile)(nil))

func (f *LogEntryFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0444
	out.Size = uint64(len(f.data))
	out.Ino = f.ino
	return fs.OK
}

func (f *LogEntryFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *LogEntryFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return fuse.ReadResultData(readRange(f.data, dest, off)), fs.OK
}
