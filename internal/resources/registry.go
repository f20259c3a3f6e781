package resources

import "fmt"

// disposer is implemented by every Table.
type disposer interface {
	Dispose(h Handle) error
	IsDisposed(h Handle) bool
}

// Registry owns the handle counters, names and dependency edges of one
// loader, and dispatches disposal to the table registered for each kind.
type Registry struct {
	counters map[Kind]uint64
	names    map[Handle]string
	tracker  *Tracker
	tables   map[Kind]disposer
	groups   map[Kind]*Table[*Group]
}

// NewRegistry creates an empty registry with group and model tables.
func NewRegistry() *Registry {
	r := &Registry{
		counters: make(map[Kind]uint64),
		names:    make(map[Handle]string),
		tracker:  NewTracker(),
		tables:   make(map[Kind]disposer),
		groups:   make(map[Kind]*Table[*Group]),
	}
	for _, k := range []Kind{KindGroup, KindModel} {
		r.groups[k] = NewTable[*Group](r, k, func(_ Handle, g *Group) error { return g.teardown() })
	}
	return r
}

// Tracker returns the registry's dependency tracker.
func (r *Registry) Tracker() *Tracker { return r.tracker }

func (r *Registry) next(kind Kind) Handle {
	r.counters[kind]++
	return Handle{Kind: kind, ID: r.counters[kind]}
}

// Issued returns how many handles of kind were ever created.
func (r *Registry) Issued(kind Kind) uint64 { return r.counters[kind] }

// Name returns the name of a live resource, or "" when it is not known.
func (r *Registry) Name(h Handle) string { return r.names[h] }

// Rename changes the name of a live resource.
func (r *Registry) Rename(h Handle, name string) error {
	if r.IsDisposed(h) {
		return fmt.Errorf("rename %s: %w", h, ErrDisposed)
	}
	if name == "" {
		name = h.Kind.DefaultName()
	}
	r.names[h] = name
	return nil
}

// HasTable reports whether a table was registered for kind.
func (r *Registry) HasTable(kind Kind) bool {
	_, ok := r.tables[kind]
	return ok
}

func (r *Registry) register(kind Kind, t disposer) {
	if _, dup := r.tables[kind]; dup {
		panic(fmt.Sprintf("resources: table for %s registered twice", kind))
	}
	r.tables[kind] = t
}

// Dispose disposes h through its kind's table. Disposing an absent handle
// is a no-op.
func (r *Registry) Dispose(h Handle) error {
	t, ok := r.tables[h.Kind]
	if !ok {
		return fmt.Errorf("dispose %s: %w", h, ErrUnknownKind)
	}
	return t.Dispose(h)
}

// IsDisposed reports whether h no longer refers to a live resource. Handles
// of kinds without a table are always disposed.
func (r *Registry) IsDisposed(h Handle) bool {
	t, ok := r.tables[h.Kind]
	if !ok {
		return true
	}
	return t.IsDisposed(h)
}

// CreateGroup creates an unsealed resource group. When cascade is set,
// disposing the group disposes its members.
func (r *Registry) CreateGroup(cascade bool, capacity int, name string) *Group {
	return r.createGroup(KindGroup, cascade, capacity, name)
}

// CreateModelGroup creates the two-member, non-cascading group backing a
// model.
func (r *Registry) CreateModelGroup(name string) *Group {
	return r.createGroup(KindModel, false, 2, name)
}

func (r *Registry) createGroup(kind Kind, cascade bool, capacity int, name string) *Group {
	g := &Group{reg: r, cascade: cascade, members: make([]Handle, 0, max(capacity, 0))}
	g.handle = r.groups[kind].Add(g, name)
	return g
}

// Group returns a live group or model group by handle.
func (r *Registry) Group(h Handle) (*Group, error) {
	t, ok := r.groups[h.Kind]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", h, ErrUnknownKind)
	}
	return t.Get(h)
}

// Groups returns the table of groups of kind (KindGroup or KindModel).
func (r *Registry) Groups(kind Kind) *Table[*Group] { return r.groups[kind] }
