package dag

import (
	"os"
	"path/filepath"
	"testing"
)

func readString(t *testing.T, path string) string {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(got)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestSafeWrite(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		perm   os.FileMode
	}{
		{"create", []string{"head-1\n"}, 0644},
		{"replace", []string{"head-1\n", "head-2\n"}, 0644},
		{"private", []string{`{"did":"x"}`}, 0600},
		{"empty", []string{""}, 0644},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "ref")
			for _, w := range tt.writes {
				if err := SafeWrite(path, []byte(w), tt.perm); err != nil {
					t.Fatalf("SafeWrite(%q): %v", w, err)
				}
			}
			if got, want := readString(t, path), tt.writes[len(tt.writes)-1]; got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Mode().Perm() != tt.perm {
				t.Fatalf("perm = %o, want %o", info.Mode().Perm(), tt.perm)
			}
			if names := dirNames(t, dir); len(names) != 1 {
				t.Fatalf("staging files left behind: %v", names)
			}
		})
	}
}

func TestSafeWrite_FailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref")
	if err := SafeWrite(path, []byte("kept"), 0644); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}
	// the target is a directory, so the rename fails after staging
	target := filepath.Join(dir, "taken")
	if err := os.MkdirAll(filepath.Join(target, "child"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := SafeWrite(target, []byte("lost"), 0644); err == nil {
		t.Fatal("expected error replacing a non-empty directory")
	}
	if err := SafeWrite(filepath.Join(dir, "missing", "ref"), []byte("lost"), 0644); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}

	if got := readString(t, path); got != "kept" {
		t.Fatalf("original changed: %q", got)
	}
	names := dirNames(t, dir)
	if len(names) != 2 {
		t.Fatalf("staging files left behind: %v", names)
	}
}

func TestSafeAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflog.jsonl")
	var want string
	for _, rec := range []string{`{"action":"create"}` + "\n", `{"action":"update"}` + "\n"} {
		if err := SafeAppend(path, []byte(rec)); err != nil {
			t.Fatalf("SafeAppend: %v", err)
		}
		want += rec
		if got := readString(t, path); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestSafeAppend_MissingDir(t *testing.T) {
	if err := SafeAppend(filepath.Join(t.TempDir(), "nope", "log"), []byte("x")); err == nil {
		t.Fatal("expected error")
	}
}
