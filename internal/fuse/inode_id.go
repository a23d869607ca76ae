package fuse

import (
	"hash/fnv"
	"strings"
)

// stableIno derives an inode number from the slash-joined path parts, so a
// path keeps its inode across lookups and remounts.
func stableIno(parts ...string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(parts, "/")))
	return h.Sum64()
}

// readRange serves a read of dest at off from data.
func readRange(data, dest []byte, off int64) []byte {
	if off >= int64(len(data)) {
		return nil
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end]
}
