package resources

import (
	"cmp"
	"slices"
)

type handleSet map[Handle]struct{}

// Tracker records which resources depend on which.
type Tracker struct {
	// target -> dependents
	dependents map[Handle]handleSet
	// dependent -> targets
	targets map[Handle]handleSet
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		dependents: make(map[Handle]handleSet),
		targets:    make(map[Handle]handleSet),
	}
}

func link(m map[Handle]handleSet, from, to Handle) {
	s, ok := m[from]
	if !ok {
		s = make(handleSet)
		m[from] = s
	}
	s[to] = struct{}{}
}

func unlink(m map[Handle]handleSet, from, to Handle) {
	if s, ok := m[from]; ok {
		delete(s, to)
		if len(s) == 0 {
			delete(m, from)
		}
	}
}

// Register records that dependent uses target.
func (t *Tracker) Register(dependent, target Handle) {
	link(t.dependents, target, dependent)
	link(t.targets, dependent, target)
}

// Unregister removes one edge.
func (t *Tracker) Unregister(dependent, target Handle) {
	unlink(t.dependents, target, dependent)
	unlink(t.targets, dependent, target)
}

// Dependents returns the resources depending on target, ordered by kind
// and ID.
func (t *Tracker) Dependents(target Handle) []Handle {
	return sorted(t.dependents[target])
}

// Targets returns the resources dependent uses.
func (t *Tracker) Targets(dependent Handle) []Handle {
	return sorted(t.targets[dependent])
}

// HasDependents reports whether anything depends on target.
func (t *Tracker) HasDependents(target Handle) bool { return len(t.dependents[target]) > 0 }

// CheckDisposable returns a *DependencyError when target has dependents.
func (t *Tracker) CheckDisposable(target Handle) error {
	if !t.HasDependents(target) {
		return nil
	}
	return &DependencyError{Target: target, Dependents: t.Dependents(target)}
}

// DropDependent removes every edge where dependent is the user.
func (t *Tracker) DropDependent(dependent Handle) {
	for target := range t.targets[dependent] {
		unlink(t.dependents, target, dependent)
	}
	delete(t.targets, dependent)
}

func sorted(s handleSet) []Handle {
	out := make([]Handle, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b Handle) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
