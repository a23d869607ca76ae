package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote/remotetest"
)

func openTestRemote(t *testing.T) *Remote {
	t.Helper()
	r, err := Open("local", t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestRemote(t *testing.T) {
	remotetest.Run(t, func(t *testing.T) client.Remote { return openTestRemote(t) })
}

func TestOpen_CreatesLayout(t *testing.T) {
	r := openTestRemote(t)
	for _, name := range []string{"objects", "refs", "meta.json"} {
		if _, err := os.Stat(filepath.Join(r.MxDir(), name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
}

func TestApply_SurvivesReopen(t *testing.T) {
	root := t.TempDir()
	r, err := Open("local", root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	sp := remotetest.Perspective(t, "local", "doc")

	m := model.NewMutation()
	m.AddNewPerspective(model.NewPerspectiveData{Perspective: sp, Details: model.PerspectiveDetails{HeadID: "h1"}})
	if err := r.Apply(ctx, m); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open("local", root)
	if err != nil {
		t.Fatal(err)
	}
	head, ok, err := reopened.GetHead(ctx, sp.ID)
	if err != nil || !ok || head != "h1" {
		t.Errorf("head = %q ok=%v err=%v, want h1", head, ok, err)
	}
	log := reopened.Reflog(sp.ID)
	if len(log) != 1 || log[0].Action != "create" {
		t.Errorf("reflog = %+v, want one create entry", log)
	}
	ids, err := reopened.Perspectives()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != sp.ID {
		t.Errorf("perspectives = %v, want [%s]", ids, sp.ID)
	}
}
