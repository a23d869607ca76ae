package model

import "sync"

// UpdateRequest moves one perspective's head forward.
type UpdateRequest struct {
	PerspectiveID     string `json:"perspectiveId"`
	OldHeadID         string `json:"oldHeadId,omitempty"`
	NewHeadID         string `json:"newHeadId"`
	FromPerspectiveID string `json:"fromPerspectiveId,omitempty"`
}

// NewPerspectiveData describes a brand-new perspective and its initial head.
type NewPerspectiveData struct {
	Perspective SecuredPerspective `json:"perspective"`
	Details     PerspectiveDetails `json:"details"`
	ParentID    string             `json:"parentId,omitempty"`
}

// Mutation is the unit of atomic change. Appends are safe for concurrent use;
// the relative order of entries appended by concurrent callers is unspecified.
type Mutation struct {
	mu                  sync.Mutex
	NewPerspectives     []NewPerspectiveData `json:"newPerspectives"`
	Updates             []UpdateRequest      `json:"updates"`
	DeletedPerspectives []string             `json:"deletedPerspectives"`
}

// NewMutation returns an empty mutation.
func NewMutation() *Mutation {
	return &Mutation{
		NewPerspectives:     []NewPerspectiveData{},
		Updates:             []UpdateRequest{},
		DeletedPerspectives: []string{},
	}
}

func (m *Mutation) AddNewPerspective(np NewPerspectiveData) {
	m.mu.Lock()
	m.NewPerspectives = append(m.NewPerspectives, np)
	m.mu.Unlock()
}

func (m *Mutation) AddUpdate(u UpdateRequest) {
	m.mu.Lock()
	m.Updates = append(m.Updates, u)
	m.mu.Unlock()
}

func (m *Mutation) AddDeleted(id string) {
	m.mu.Lock()
	m.DeletedPerspectives = append(m.DeletedPerspectives, id)
	m.mu.Unlock()
}

// Merge appends everything in other to m.
func (m *Mutation) Merge(other *Mutation) {
	if other == nil || other == m {
		return
	}
	other.mu.Lock()
	nps := append([]NewPerspectiveData(nil), other.NewPerspectives...)
	ups := append([]UpdateRequest(nil), other.Updates...)
	dels := append([]string(nil), other.DeletedPerspectives...)
	other.mu.Unlock()

	m.mu.Lock()
	m.NewPerspectives = append(m.NewPerspectives, nps...)
	m.Updates = append(m.Updates, ups...)
	m.DeletedPerspectives = append(m.DeletedPerspectives, dels...)
	m.mu.Unlock()
}

// HasChanges reports whether applying m would move any head.
func (m *Mutation) HasChanges() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updates) > 0
}

// IsEmpty reports whether m carries nothing at all.
func (m *Mutation) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.NewPerspectives) == 0 && len(m.Updates) == 0 && len(m.DeletedPerspectives) == 0
}

// Clone returns a copy that shares no slices with m.
func (m *Mutation) Clone() *Mutation {
	out := NewMutation()
	out.Merge(m)
	return out
}
