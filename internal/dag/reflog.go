package dag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// RefLogEntry records one head move of a perspective.
type RefLogEntry struct {
	Perspective string    `json:"perspective"`
	OldHead     string    `json:"old,omitempty"`
	NewHead     string    `json:"new,omitempty"`
	From        string    `json:"from,omitempty"` // perspective the change was merged from
	Action      string    `json:"action"`         // "create", "update" or "delete"
	Timestamp   time.Time `json:"ts"`
}

// RefLog is an append-only JSONL journal of head moves with an in-memory
// per-perspective index.
type RefLog struct {
	mu      sync.RWMutex
	path    string
	entries map[string][]RefLogEntry // perspective -> moves, oldest first
}

// NewRefLog opens a RefLog, loading existing entries from the journal file.
func NewRefLog(path string) (*RefLog, error) {
	l := &RefLog{
		path:    path,
		entries: make(map[string][]RefLogEntry),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *RefLog) load() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil // no journal yet
	}
	if err != nil {
		return fmt.Errorf("open reflog: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry RefLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		l.entries[entry.Perspective] = append(l.entries[entry.Perspective], entry)
	}
	return scanner.Err()
}

// Append writes entries to the journal in one append and indexes them.
func (l *RefLog) Append(entries ...RefLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var buf []byte
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode reflog entry: %w", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	if err := SafeAppend(l.path, buf); err != nil {
		return fmt.Errorf("write reflog: %w", err)
	}
	for _, e := range entries {
		l.entries[e.Perspective] = append(l.entries[e.Perspective], e)
	}
	return nil
}

// Entries returns the moves recorded for a perspective, newest first.
func (l *RefLog) Entries(perspective string) []RefLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.entries[perspective]
	out := make([]RefLogEntry, len(src))
	for i, e := range src {
		out[len(src)-1-i] = e
	}
	return out
}
