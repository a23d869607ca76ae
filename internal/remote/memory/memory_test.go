package memory

import (
	"context"
	"testing"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote/remotetest"
)

func TestRemote(t *testing.T) {
	remotetest.Run(t, func(t *testing.T) client.Remote { return New("mem") })
}

func TestReflog_NewestFirst(t *testing.T) {
	r := New("mem")
	ctx := context.Background()
	sp := remotetest.Perspective(t, "mem", "doc")

	m := model.NewMutation()
	m.AddNewPerspective(model.NewPerspectiveData{Perspective: sp, Details: model.PerspectiveDetails{HeadID: "h1"}})
	if err := r.Apply(ctx, m); err != nil {
		t.Fatal(err)
	}
	m = model.NewMutation()
	m.AddUpdate(model.UpdateRequest{PerspectiveID: sp.ID, NewHeadID: "h2", FromPerspectiveID: "other"})
	if err := r.Apply(ctx, m); err != nil {
		t.Fatal(err)
	}

	log := r.Reflog(sp.ID)
	if len(log) != 2 {
		t.Fatalf("got %d entries, want 2", len(log))
	}
	if log[0].NewHead != "h2" || log[0].OldHead != "h1" || log[0].From != "other" {
		t.Errorf("latest entry = %+v", log[0])
	}
	if log[1].Action != "create" {
		t.Errorf("oldest action = %q, want create", log[1].Action)
	}
}
