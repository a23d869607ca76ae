// Package remotetest checks that a backend behaves like a remote.
package remotetest

import (
	"context"
	"errors"
	"testing"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
)

// Run exercises entity storage, head moves and stale-head rejection.
func Run(t *testing.T, open func(t *testing.T) client.Remote) {
	t.Run("EntityRoundTrip", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		e, err := model.NewEntity(&model.Title{Title: "hello"})
		if err != nil {
			t.Fatal(err)
		}
		id, err := r.PutEntity(ctx, e.Object)
		if err != nil {
			t.Fatalf("PutEntity: %v", err)
		}
		if id != e.ID {
			t.Errorf("id = %s, want %s", id, e.ID)
		}
		got, err := r.GetEntity(ctx, id)
		if err != nil {
			t.Fatalf("GetEntity: %v", err)
		}
		if string(got) != string(e.Object) {
			t.Errorf("got %s, want %s", got, e.Object)
		}
	})

	t.Run("MissingEntity", func(t *testing.T) {
		r := open(t)
		e, _ := model.NewEntity(&model.Title{Title: "never stored"})
		_, err := r.GetEntity(context.Background(), e.ID)
		if !errors.Is(err, model.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("ApplyCreateUpdateDelete", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		sp := Perspective(t, r.ID(), "doc")

		m := model.NewMutation()
		m.AddNewPerspective(model.NewPerspectiveData{
			Perspective: sp,
			Details:     model.PerspectiveDetails{HeadID: "h1"},
		})
		if err := r.Apply(ctx, m); err != nil {
			t.Fatalf("Apply create: %v", err)
		}
		if head, ok, _ := r.GetHead(ctx, sp.ID); !ok || head != "h1" {
			t.Errorf("head = %q (ok=%v), want h1", head, ok)
		}
		if _, err := r.GetEntity(ctx, sp.ID); err != nil {
			t.Errorf("perspective header not stored: %v", err)
		}

		m = model.NewMutation()
		m.AddUpdate(model.UpdateRequest{PerspectiveID: sp.ID, OldHeadID: "h1", NewHeadID: "h2"})
		if err := r.Apply(ctx, m); err != nil {
			t.Fatalf("Apply update: %v", err)
		}
		if head, _, _ := r.GetHead(ctx, sp.ID); head != "h2" {
			t.Errorf("head = %q, want h2", head)
		}

		m = model.NewMutation()
		m.AddDeleted(sp.ID)
		if err := r.Apply(ctx, m); err != nil {
			t.Fatalf("Apply delete: %v", err)
		}
		if _, ok, _ := r.GetHead(ctx, sp.ID); ok {
			t.Error("head still present after delete")
		}
	})

	t.Run("StaleHeadRejectsWholeMutation", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		a := Perspective(t, r.ID(), "a")
		b := Perspective(t, r.ID(), "b")

		m := model.NewMutation()
		m.AddNewPerspective(model.NewPerspectiveData{Perspective: a, Details: model.PerspectiveDetails{HeadID: "a1"}})
		m.AddNewPerspective(model.NewPerspectiveData{Perspective: b, Details: model.PerspectiveDetails{HeadID: "b1"}})
		if err := r.Apply(ctx, m); err != nil {
			t.Fatal(err)
		}

		m = model.NewMutation()
		m.AddUpdate(model.UpdateRequest{PerspectiveID: a.ID, OldHeadID: "a1", NewHeadID: "a2"})
		m.AddUpdate(model.UpdateRequest{PerspectiveID: b.ID, OldHeadID: "stale", NewHeadID: "b2"})
		err := r.Apply(ctx, m)
		if !errors.Is(err, model.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
		if head, _, _ := r.GetHead(ctx, a.ID); head != "a1" {
			t.Errorf("a moved to %q despite rejected mutation", head)
		}
	})
}

// Perspective builds a secured perspective header on remote.
func Perspective(t *testing.T, remote, logical string) model.SecuredPerspective {
	t.Helper()
	sp, err := model.SecurePerspective(model.Perspective{
		Remote:    remote,
		Path:      "/",
		CreatorID: "did:key:test",
		Context:   logical,
		Timestamp: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sp
}
