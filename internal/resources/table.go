package resources

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"
)

// ReleaseFunc frees companions of a resource being disposed.
type ReleaseFunc[T any] func(h Handle, data T) error

// Table maps handles of one kind to their data.
type Table[T any] struct {
	reg     *Registry
	kind    Kind
	entries map[uint64]T
	release ReleaseFunc[T]
}

// NewTable creates a table for kind and registers it with r. release may
// be nil.
func NewTable[T any](r *Registry, kind Kind, release ReleaseFunc[T]) *Table[T] {
	t := &Table[T]{
		reg:     r,
		kind:    kind,
		entries: make(map[uint64]T),
		release: release,
	}
	r.register(kind, t)
	return t
}

// Kind returns the kind of handles stored in t.
func (t *Table[T]) Kind() Kind { return t.kind }

// Add stores data under a fresh handle. An empty name falls back to the
// kind's default name.
func (t *Table[T]) Add(data T, name string) Handle {
	h := t.reg.next(t.kind)
	t.entries[h.ID] = data
	if name == "" {
		name = t.kind.DefaultName()
	}
	t.reg.names[h] = name
	return h
}

// Get returns the data for h.
func (t *Table[T]) Get(h Handle) (T, error) {
	var zero T
	if h.Kind != t.kind {
		return zero, fmt.Errorf("%s is not a %s: %w", h, t.kind, ErrNotFound)
	}
	data, ok := t.entries[h.ID]
	if ok {
		return data, nil
	}
	if h.ID > 0 && h.ID <= t.reg.counters[t.kind] {
		return zero, fmt.Errorf("%s: %w", h, ErrDisposed)
	}
	return zero, fmt.Errorf("%s: %w", h, ErrNotFound)
}

// MustGet is Get for handles known to be live.
func (t *Table[T]) MustGet(h Handle) T {
	data, err := t.Get(h)
	if err != nil {
		panic(err)
	}
	return data
}

// IsDisposed reports whether h is absent from the table.
func (t *Table[T]) IsDisposed(h Handle) bool {
	return h.Kind != t.kind || !t.exists(h.ID)
}

func (t *Table[T]) exists(id uint64) bool {
	_, ok := t.entries[id]
	return ok
}

// Name returns the name of h.
func (t *Table[T]) Name(h Handle) (string, error) {
	if t.IsDisposed(h) {
		_, err := t.Get(h)
		return "", err
	}
	return t.reg.names[h], nil
}

// Dispose removes h. It fails with a *DependencyError, changing nothing,
// when other resources depend on h. Otherwise companions are released, the
// name and entry dropped and h's own dependency edges removed; a release
// failure is reported after removal. Disposing an absent handle is a no-op.
func (t *Table[T]) Dispose(h Handle) error {
	if t.IsDisposed(h) {
		return nil
	}
	if t.reg.tracker.HasDependents(h) {
		return &DependencyError{Target: h, Name: t.reg.names[h], Dependents: t.reg.tracker.Dependents(h)}
	}
	data := t.entries[h.ID]
	var err error
	if t.release != nil {
		err = t.release(h, data)
	}
	delete(t.reg.names, h)
	delete(t.entries, h.ID)
	t.reg.tracker.DropDependent(h)
	if err != nil {
		return fmt.Errorf("release %s: %w", h, err)
	}
	return nil
}

// DisposeAll disposes every entry in descending handle order, combining
// failures.
func (t *Table[T]) DisposeAll() error {
	hs := t.Handles()
	slices.Reverse(hs)
	var err error
	for _, h := range hs {
		err = multierr.Append(err, t.Dispose(h))
	}
	return err
}

// Handles returns the live handles in ascending order.
func (t *Table[T]) Handles() []Handle {
	out := make([]Handle, 0, len(t.entries))
	for id := range t.entries {
		out = append(out, Handle{Kind: t.kind, ID: id})
	}
	slices.SortFunc(out, func(a, b Handle) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int { return len(t.entries) }
