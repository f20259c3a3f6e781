package loader

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/bridge"
)

// LoadModels imports every mesh of a file as a model and returns the sealed
// cascading group holding the meshes, materials, texture maps and models.
// Materials are built once per index, the first time a mesh uses them; with
// read.SkipUnusedMaterials unset, or when the file has no meshes, the rest
// are built afterwards. On failure nothing is returned and the partial group
// is left unsealed.
func (l *Loader) LoadModels(path string, cfg AssetConfig, read AssetReadConfig) (group *resources.Group, err error) {
	asset, err := l.openAsset(path, read.Mesh)
	if err != nil {
		return nil, err
	}
	defer l.closeAsset(path, asset, &err)

	log := l.log.With(zap.String("session", uuid.NewString()), zap.String("path", path))

	counts, err := l.countMeshes(asset)
	if err != nil {
		return nil, importError(path, "counts", err)
	}
	materialCount, err := l.bridge.MaterialCount(asset)
	if err != nil {
		return nil, importError(path, "counts", err)
	}
	textureCount, err := l.bridge.TextureCount(asset)
	if err != nil {
		return nil, importError(path, "counts", err)
	}
	if materialCount < 0 || textureCount < 0 {
		return nil, importError(path, "counts", fmt.Errorf("%w: %d materials, %d textures", ErrMalformedData, materialCount, textureCount))
	}

	imp := &modelImport{
		l:         l,
		asset:     asset,
		rootDir:   filepath.Dir(path),
		counts:    counts,
		read:      read,
		base:      cfg.Texture,
		materials: make([]resources.Handle, materialCount),
		group:     l.reg.CreateGroup(true, len(counts.vertices)+materialCount+textureCount, cfg.Name),
	}
	log.Debug("importing models",
		zap.Int("meshes", len(counts.vertices)),
		zap.Int("materials", materialCount),
		zap.Int("textures", textureCount))

	for i := range counts.vertices {
		if err := imp.model(i); err != nil {
			return nil, importError(path, fmt.Sprintf("mesh %d", i), err)
		}
	}
	if !read.SkipUnusedMaterials || len(counts.vertices) == 0 {
		for i := range imp.materials {
			if _, err := imp.material(i); err != nil {
				return nil, importError(path, fmt.Sprintf("material %d", i), err)
			}
		}
	}

	imp.group.Seal()
	log.Info("models loaded",
		zap.Stringer("group", imp.group.Handle()),
		zap.Int("models", len(imp.group.Of(resources.KindModel))),
		zap.Int("materials", len(imp.group.Of(resources.KindMaterial))),
		zap.Int("textures", len(imp.group.Of(resources.KindTexture))))
	return imp.group, nil
}

// modelImport is the state of one LoadModels call.
type modelImport struct {
	l         *Loader
	asset     bridge.Handle
	rootDir   string
	counts    meshCounts
	read      AssetReadConfig
	base      assets.TextureConfig
	materials []resources.Handle // by native index, zero until built
	group     *resources.Group
}

func (imp *modelImport) model(mesh int) error {
	var meshHandle resources.Handle
	err := imp.l.copyMeshes(imp.asset, imp.counts, []int{mesh}, imp.read.Mesh.CorrectFlippedOrientation, func(v []bridge.Vertex, t []bridge.Triangle) error {
		var berr error
		meshHandle, berr = imp.l.build.CreateMesh(v, t, "")
		return berr
	})
	if err != nil {
		return err
	}
	if err := imp.group.Add(meshHandle); err != nil {
		return err
	}

	idx, err := imp.l.bridge.MeshMaterialIndex(imp.asset, mesh)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(imp.materials) {
		return fmt.Errorf("%w: Mesh at index '%d' references material at index '%d' but asset only contains %d materials", ErrMalformedData, mesh, idx, len(imp.materials))
	}
	mat, err := imp.material(idx)
	if err != nil {
		return err
	}

	model, err := imp.l.CreateModel(meshHandle, mat, "")
	if err != nil {
		return err
	}
	return imp.group.Add(model)
}

// material returns the material at idx, building it on first use.
func (imp *modelImport) material(idx int) (resources.Handle, error) {
	if h := imp.materials[idx]; !h.IsZero() {
		return h, nil
	}
	h, err := imp.l.synthesizeMaterial(imp.asset, idx, imp.rootDir, imp.group, imp.base)
	if err != nil {
		return resources.Handle{}, err
	}
	if err := imp.group.Add(h); err != nil {
		return resources.Handle{}, err
	}
	imp.materials[idx] = h
	return h, nil
}

// CreateModel pairs a mesh with a material. Neither can be disposed while
// the model exists.
func (l *Loader) CreateModel(mesh, material resources.Handle, name string) (resources.Handle, error) {
	if mesh.Kind != resources.KindMesh || material.Kind != resources.KindMaterial {
		return resources.Handle{}, fmt.Errorf("create model from %s and %s: expected a mesh and a material", mesh, material)
	}
	for _, h := range []resources.Handle{mesh, material} {
		if l.reg.IsDisposed(h) {
			return resources.Handle{}, fmt.Errorf("create model: %s: %w", h, resources.ErrDisposed)
		}
	}
	g := l.reg.CreateModelGroup(name)
	// both members are live, so Add cannot fail
	_ = g.Add(mesh)
	_ = g.Add(material)
	g.Seal()
	return g.Handle(), nil
}

func (l *Loader) model(h resources.Handle) (*resources.Group, error) {
	if h.Kind != resources.KindModel {
		return nil, fmt.Errorf("%s: %w", h, ErrNotAModel)
	}
	return l.reg.Group(h)
}

// GetMesh returns the mesh of a model.
func (l *Loader) GetMesh(model resources.Handle) (resources.Handle, error) {
	g, err := l.model(model)
	if err != nil {
		return resources.Handle{}, err
	}
	return g.Member(0)
}

// GetMaterial returns the material of a model.
func (l *Loader) GetMaterial(model resources.Handle) (resources.Handle, error) {
	g, err := l.model(model)
	if err != nil {
		return resources.Handle{}, err
	}
	return g.Member(1)
}

// ModelName returns the name of a model.
func (l *Loader) ModelName(model resources.Handle) (string, error) {
	if model.Kind != resources.KindModel {
		return "", fmt.Errorf("%s: %w", model, ErrNotAModel)
	}
	return l.reg.Groups(resources.KindModel).Name(model)
}

// DisposeModel disposes a model. Its mesh and material stay alive.
// Disposing a disposed model does nothing.
func (l *Loader) DisposeModel(model resources.Handle) error {
	if model.Kind != resources.KindModel {
		return fmt.Errorf("%s: %w", model, ErrNotAModel)
	}
	return l.reg.Dispose(model)
}

// IsModelDisposed reports whether a model was disposed.
func (l *Loader) IsModelDisposed(model resources.Handle) bool {
	return model.Kind != resources.KindModel || l.reg.IsDisposed(model)
}
