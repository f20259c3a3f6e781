// Package resources tracks imported resources by handle: per-kind tables,
// human-readable names, dependency edges between resources and groups that
// dispose their members in order.
//
// Nothing in this package is safe for concurrent use. A Registry belongs to
// one loader.
package resources

import "fmt"

// Kind is the type of resource a handle refers to.
type Kind uint8

const (
	KindMesh Kind = iota + 1
	KindModel
	KindTexture
	KindMaterial
	KindBackdropTexture
	KindGroup
)

var kindNames = map[Kind]string{
	KindMesh:            "Mesh",
	KindModel:           "Model",
	KindTexture:         "Texture",
	KindMaterial:        "Material",
	KindBackdropTexture: "Backdrop Texture",
	KindGroup:           "Resource Group",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// DefaultName is used for resources registered without a name.
func (k Kind) DefaultName() string { return "Unnamed " + k.String() }

// Handle identifies one resource. IDs start at 1 and are never reused
// within a Registry.
type Handle struct {
	Kind Kind
	ID   uint64
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.ID == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s#%d", h.Kind, h.ID)
}
