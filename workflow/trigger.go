package workflow

import (
	"fmt"
	"slices"

	"github.com/go-git/go-git/v5/plumbing"
)

type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventPush, EventPullRequest:
		return true
	}
	return false
}

func ParseEventKind(s string) (EventKind, error) {
	kind := EventKind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return kind, nil
}

// Event is one incoming trigger: what happened, and on which branch.
// The branch may arrive as a full git ref (refs/heads/main); it is
// shortened before comparison.
type Event struct {
	Kind   EventKind `json:"kind"`
	Branch string    `json:"branch"`
}

// Matches reports whether this event should start a run of the
// definition. An event matches if any trigger rule matches it; a
// definition with no trigger rules matches every event.
func (d *Definition) Matches(ev Event) bool {
	if len(d.On) == 0 {
		return true
	}

	for _, rule := range d.On {
		if rule.Matches(ev) {
			return true
		}
	}

	return false
}

// Matches applies one rule: the event kind must be equal, and the
// branch must be listed unless the rule carries no branch filter.
// Branch comparison is literal equality; no glob patterns.
func (r *TriggerRule) Matches(ev Event) bool {
	if r.Event != ev.Kind {
		return false
	}

	if len(r.Branches) == 0 {
		return true
	}

	return slices.Contains(r.Branches, shortBranch(ev.Branch))
}

func shortBranch(branch string) string {
	ref := plumbing.ReferenceName(branch)
	if ref.IsBranch() {
		return ref.Short()
	}
	return branch
}
