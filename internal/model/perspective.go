package model

import "slices"

// Perspective is the immutable header of a mutable pointer to a head commit.
// Its id is the hash of this header; the head lives in the remote's
// perspective directory.
type Perspective struct {
	Remote            string `json:"remote"`
	Path              string `json:"path"`
	CreatorID         string `json:"creatorId"`
	Context           string `json:"context"`
	Timestamp         int64  `json:"timestamp"` // unix millis
	FromPerspectiveID string `json:"fromPerspectiveId,omitempty"`
	FromHeadID        string `json:"fromHeadId,omitempty"`
}

func (*Perspective) EntityType() Type { return TypePerspective }

// PerspectiveDetails is the mutable part of a perspective.
type PerspectiveDetails struct {
	HeadID string `json:"headId,omitempty"`
}

// SecuredPerspective pairs a perspective header with its id.
type SecuredPerspective struct {
	ID     string      `json:"id"`
	Object Perspective `json:"object"`
}

// SecurePerspective computes the id of p.
func SecurePerspective(p Perspective) (SecuredPerspective, error) {
	id, err := Hash(&p)
	if err != nil {
		return SecuredPerspective{}, err
	}
	return SecuredPerspective{ID: id, Object: p}, nil
}

// Commit is an immutable node in the version DAG.
type Commit struct {
	CreatorsIDs []string `json:"creatorsIds"`
	Timestamp   int64    `json:"timestamp"` // unix millis
	Message     string   `json:"message,omitempty"`
	ParentsIDs  []string `json:"parentsIds"`
	DataID      string   `json:"dataId"`
	// Forking points at the commit on another remote this one was forked from.
	Forking string `json:"forking,omitempty"`
}

func (*Commit) EntityType() Type { return TypeCommit }

// nil and empty slices must hash the same.
func (c *Commit) normalized() *Commit {
	out := *c
	if out.CreatorsIDs == nil {
		out.CreatorsIDs = []string{}
	}
	if out.ParentsIDs == nil {
		out.ParentsIDs = []string{}
	}
	return &out
}

// Ancestors returns the parents plus the forking edge, if any.
func (c *Commit) Ancestors() []string {
	out := slices.Clone(c.ParentsIDs)
	if c.Forking != "" {
		out = append(out, c.Forking)
	}
	return out
}
