package resources

import (
	"fmt"

	"go.uber.org/multierr"
)

// Group is an ordered collection of resource handles disposed as a unit.
// A group depends on each of its members until it is disposed.
type Group struct {
	reg      *Registry
	handle   Handle
	cascade  bool
	members  []Handle
	sealed   bool
	disposed bool
}

// Handle returns the group's own handle.
func (g *Group) Handle() Handle { return g.handle }

// Name returns the group's name.
func (g *Group) Name() string { return g.reg.Name(g.handle) }

// Cascades reports whether disposing the group disposes its members.
func (g *Group) Cascades() bool { return g.cascade }

// Add appends h to the group.
func (g *Group) Add(h Handle) error {
	if g.disposed {
		return fmt.Errorf("add %s to %s: %w", h, g.handle, ErrDisposed)
	}
	if g.sealed {
		return fmt.Errorf("add %s to %s: %w", h, g.handle, ErrGroupSealed)
	}
	if g.reg.IsDisposed(h) {
		return fmt.Errorf("add %s to %s: %w", h, g.handle, ErrDisposed)
	}
	g.members = append(g.members, h)
	g.reg.tracker.Register(g.handle, h)
	return nil
}

// Seal forbids further additions.
func (g *Group) Seal() { g.sealed = true }

// IsSealed reports whether Seal was called.
func (g *Group) IsSealed() bool { return g.sealed }

// IsDisposed reports whether the group was disposed.
func (g *Group) IsDisposed() bool { return g.disposed }

// Len returns the number of members.
func (g *Group) Len() int { return len(g.members) }

// Members returns a copy of the members in insertion order.
func (g *Group) Members() []Handle {
	return append([]Handle(nil), g.members...)
}

// Member returns the i-th member.
func (g *Group) Member(i int) (Handle, error) {
	if i < 0 || i >= len(g.members) {
		return Handle{}, fmt.Errorf("%s member %d of %d: %w", g.handle, i, len(g.members), ErrNotFound)
	}
	return g.members[i], nil
}

// Of returns the members of kind in insertion order.
func (g *Group) Of(kind Kind) []Handle {
	var out []Handle
	for _, h := range g.members {
		if h.Kind == kind {
			out = append(out, h)
		}
	}
	return out
}

// Dispose disposes the group through the registry. It fails without
// changes when something depends on the group itself.
func (g *Group) Dispose() error {
	if g.disposed {
		return nil
	}
	return g.reg.Dispose(g.handle)
}

// teardown releases members in reverse order. Cascading groups dispose each
// member; failures are combined and do not stop the teardown.
func (g *Group) teardown() error {
	var err error
	for i := len(g.members) - 1; i >= 0; i-- {
		m := g.members[i]
		g.reg.tracker.Unregister(g.handle, m)
		if g.cascade {
			err = multierr.Append(err, g.reg.Dispose(m))
		}
	}
	g.members = nil
	g.disposed = true
	return err
}
