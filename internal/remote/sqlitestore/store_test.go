package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote/remotetest"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	remotetest.Run(t, func(t *testing.T) client.Remote {
		return openTestStore(t, filepath.Join(t.TempDir(), "remote.db"))
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open("sqlite", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.db")
	first := openTestStore(t, path)
	ctx := context.Background()
	sp := remotetest.Perspective(t, "sqlite", "doc")
	m := model.NewMutation()
	m.AddNewPerspective(model.NewPerspectiveData{Perspective: sp, Details: model.PerspectiveDetails{HeadID: "h1"}})
	if err := first.Apply(ctx, m); err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	second := openTestStore(t, path)
	head, ok, err := second.GetHead(ctx, sp.ID)
	if err != nil || !ok || head != "h1" {
		t.Errorf("head = %q ok=%v err=%v, want h1", head, ok, err)
	}
}

func TestReflogAndPerspectives(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "remote.db"))
	ctx := context.Background()
	sp := remotetest.Perspective(t, "sqlite", "doc")

	m := model.NewMutation()
	m.AddNewPerspective(model.NewPerspectiveData{Perspective: sp, Details: model.PerspectiveDetails{HeadID: "h1"}})
	if err := s.Apply(ctx, m); err != nil {
		t.Fatal(err)
	}
	m = model.NewMutation()
	m.AddUpdate(model.UpdateRequest{PerspectiveID: sp.ID, OldHeadID: "h1", NewHeadID: "h2"})
	if err := s.Apply(ctx, m); err != nil {
		t.Fatal(err)
	}

	log, err := s.Reflog(ctx, sp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 || log[0].NewHead != "h2" || log[1].Action != "create" {
		t.Errorf("reflog = %+v", log)
	}
	ids, err := s.Perspectives(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != sp.ID {
		t.Errorf("perspectives = %v", ids)
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n")
	if got != "\nCREATE TABLE a (x);\n" {
		t.Errorf("upSection = %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Error("content without markers should pass through")
	}
}
