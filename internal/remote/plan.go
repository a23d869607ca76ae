// Package remote holds what every backend shares: turning a Mutation into a
// validated list of head moves before anything is written.
package remote

import (
	"context"
	"fmt"

	"github.com/systemshift/memex-vc/internal/dag"
	"github.com/systemshift/memex-vc/internal/model"
)

// Move actions recorded in the reflog.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// HeadReader returns the stored head of a perspective.
type HeadReader func(ctx context.Context, perspectiveID string) (head string, ok bool, err error)

// HeadMove is one validated change to the perspective directory.
type HeadMove struct {
	Perspective string
	Old         string
	New         string
	From        string
	Action      string
}

// Plan is what a backend must persist to apply a mutation.
type Plan struct {
	Headers []model.SecuredPerspective
	Moves   []HeadMove
}

// Final returns the head each touched perspective ends at. Deleted
// perspectives map to "".
func (p *Plan) Final() map[string]string {
	out := make(map[string]string, len(p.Moves))
	for _, mv := range p.Moves {
		out[mv.Perspective] = mv.New
	}
	return out
}

// RefLogEntries renders the moves as reflog entries.
func (p *Plan) RefLogEntries() []dag.RefLogEntry {
	out := make([]dag.RefLogEntry, 0, len(p.Moves))
	for _, mv := range p.Moves {
		out = append(out, dag.RefLogEntry{
			Perspective: mv.Perspective,
			OldHead:     mv.Old,
			NewHead:     mv.New,
			From:        mv.From,
			Action:      mv.Action,
		})
	}
	return out
}

// NewPlan checks m against the current heads and orders its effects: new
// perspectives, then updates, then deletions. An update whose OldHeadID does
// not match the head it would replace fails with a ConflictError, so callers
// can reject the whole mutation before touching storage.
func NewPlan(ctx context.Context, m *model.Mutation, current HeadReader) (*Plan, error) {
	plan := &Plan{}
	heads := make(map[string]string)
	seen := make(map[string]bool)

	headOf := func(id string) (string, error) {
		if seen[id] {
			return heads[id], nil
		}
		head, _, err := current(ctx, id)
		if err != nil {
			return "", fmt.Errorf("read head %s: %w", id, err)
		}
		seen[id] = true
		heads[id] = head
		return head, nil
	}

	for _, np := range m.NewPerspectives {
		sp, err := model.SecurePerspective(np.Perspective.Object)
		if err != nil {
			return nil, err
		}
		if sp.ID != np.Perspective.ID {
			return nil, fmt.Errorf("perspective %s: header hashes to %s", np.Perspective.ID, sp.ID)
		}
		cur, err := headOf(sp.ID)
		if err != nil {
			return nil, err
		}
		if cur != "" && cur != np.Details.HeadID {
			return nil, &model.ConflictError{
				Field:  "head",
				Detail: fmt.Sprintf("perspective %s already exists at %s", sp.ID, cur),
			}
		}
		plan.Headers = append(plan.Headers, sp)
		plan.Moves = append(plan.Moves, HeadMove{
			Perspective: sp.ID,
			Old:         cur,
			New:         np.Details.HeadID,
			Action:      ActionCreate,
		})
		heads[sp.ID] = np.Details.HeadID
	}

	for _, up := range m.Updates {
		if up.NewHeadID == "" {
			return nil, fmt.Errorf("update of %s has no new head", up.PerspectiveID)
		}
		cur, err := headOf(up.PerspectiveID)
		if err != nil {
			return nil, err
		}
		if up.OldHeadID != "" && cur != up.OldHeadID {
			return nil, &model.ConflictError{
				Field:  "head",
				Detail: fmt.Sprintf("perspective %s is at %q, expected %q", up.PerspectiveID, cur, up.OldHeadID),
			}
		}
		plan.Moves = append(plan.Moves, HeadMove{
			Perspective: up.PerspectiveID,
			Old:         cur,
			New:         up.NewHeadID,
			From:        up.FromPerspectiveID,
			Action:      ActionUpdate,
		})
		heads[up.PerspectiveID] = up.NewHeadID
	}

	for _, id := range m.DeletedPerspectives {
		cur, err := headOf(id)
		if err != nil {
			return nil, err
		}
		plan.Moves = append(plan.Moves, HeadMove{
			Perspective: id,
			Old:         cur,
			Action:      ActionDelete,
		})
		heads[id] = ""
	}
	return plan, nil
}
