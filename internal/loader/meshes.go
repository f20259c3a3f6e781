package loader

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/arena"
	"github.com/Faultbox/assetforge/pkg/bridge"
)

// MeshMetadata holds the totals of every mesh in a file.
type MeshMetadata struct {
	Meshes    int
	Vertices  int
	Triangles int
}

// meshCounts holds per-mesh vertex and triangle counts of an open asset.
type meshCounts struct {
	vertices  []int
	triangles []int
}

func (c meshCounts) total(meshes []int) (vertices, triangles int) {
	for _, m := range meshes {
		vertices += c.vertices[m]
		triangles += c.triangles[m]
	}
	return vertices, triangles
}

func (c meshCounts) all() []int {
	out := make([]int, len(c.vertices))
	for i := range out {
		out[i] = i
	}
	return out
}

// openAsset opens path through the bridge after the common checks.
func (l *Loader) openAsset(path string, read MeshReadConfig) (bridge.Handle, error) {
	if err := l.checkOpen(); err != nil {
		return 0, err
	}
	if err := l.checkPath(path); err != nil {
		return 0, importError(path, "open", err)
	}
	h, err := l.bridge.OpenAsset(path, read.FixCommonExportErrors, read.Optimize)
	if err != nil {
		return 0, importError(path, "open", err)
	}
	l.log.Debug("asset opened", zap.String("path", path))
	return h, nil
}

// closeAsset closes h and folds any failure into *err.
func (l *Loader) closeAsset(path string, h bridge.Handle, err *error) {
	if cerr := l.bridge.CloseAsset(h); cerr != nil {
		l.log.Error("closing asset", zap.String("path", path), zap.Error(cerr))
		*err = multierr.Append(*err, importError(path, "close", cerr))
	}
}

func (l *Loader) countMeshes(asset bridge.Handle) (meshCounts, error) {
	n, err := l.bridge.MeshCount(asset)
	if err != nil {
		return meshCounts{}, err
	}
	if n < 0 {
		return meshCounts{}, fmt.Errorf("%w: mesh count %d", ErrMalformedData, n)
	}
	c := meshCounts{vertices: make([]int, n), triangles: make([]int, n)}
	for i := 0; i < n; i++ {
		if c.vertices[i], err = l.bridge.MeshVertexCount(asset, i); err != nil {
			return meshCounts{}, fmt.Errorf("mesh %d: %w", i, err)
		}
		if c.triangles[i], err = l.bridge.MeshTriangleCount(asset, i); err != nil {
			return meshCounts{}, fmt.Errorf("mesh %d: %w", i, err)
		}
		if c.vertices[i] < 0 || c.triangles[i] < 0 {
			return meshCounts{}, fmt.Errorf("%w: mesh %d reports %d vertices and %d triangles", ErrMalformedData, i, c.vertices[i], c.triangles[i])
		}
	}
	return c, nil
}

// copyMeshes copies the given meshes back to back into buffers rented from
// the vertex arena and passes them to fn. Triangle indices are rebased onto
// the concatenated vertices. The slices are only valid during fn.
func (l *Loader) copyMeshes(asset bridge.Handle, counts meshCounts, meshes []int, correctFlipped bool, fn func([]bridge.Vertex, []bridge.Triangle) error) (err error) {
	nv, nt := counts.total(meshes)

	vbuf, err := arena.RentFor[bridge.Vertex](l.vertexArena, nv)
	if err != nil {
		return fmt.Errorf("vertex buffer: %w", err)
	}
	defer l.giveBack(l.vertexArena, vbuf, &err)
	tbuf, err := arena.RentFor[bridge.Triangle](l.vertexArena, nt)
	if err != nil {
		return fmt.Errorf("triangle buffer: %w", err)
	}
	defer l.giveBack(l.vertexArena, tbuf, &err)

	vertices := arena.View[bridge.Vertex](vbuf, nv)
	triangles := arena.View[bridge.Triangle](tbuf, nt)

	vOff, tOff := 0, 0
	for _, m := range meshes {
		mv, mt := counts.vertices[m], counts.triangles[m]
		if err := l.bridge.CopyMeshVertices(asset, m, correctFlipped, vertices[vOff:vOff+mv]); err != nil {
			return fmt.Errorf("mesh %d vertices: %w", m, err)
		}
		tris := triangles[tOff : tOff+mt]
		if err := l.bridge.CopyMeshTriangles(asset, m, tris); err != nil {
			return fmt.Errorf("mesh %d triangles: %w", m, err)
		}
		if vOff > 0 {
			base := int32(vOff)
			for i := range tris {
				tris[i].A += base
				tris[i].B += base
				tris[i].C += base
			}
		}
		vOff += mv
		tOff += mt
	}
	return fn(vertices, triangles)
}

// LoadMesh builds a single mesh from every mesh in the file.
func (l *Loader) LoadMesh(path, name string, read MeshReadConfig) (h resources.Handle, err error) {
	asset, err := l.openAsset(path, read)
	if err != nil {
		return resources.Handle{}, err
	}
	defer l.closeAsset(path, asset, &err)

	counts, err := l.countMeshes(asset)
	if err != nil {
		return resources.Handle{}, importError(path, "counts", err)
	}
	err = l.copyMeshes(asset, counts, counts.all(), read.CorrectFlippedOrientation, func(v []bridge.Vertex, t []bridge.Triangle) error {
		var berr error
		h, berr = l.build.CreateMesh(v, t, name)
		return berr
	})
	if err != nil {
		return resources.Handle{}, importError(path, "mesh", err)
	}
	nv, nt := counts.total(counts.all())
	l.log.Info("mesh loaded",
		zap.String("path", path),
		zap.Stringer("handle", h),
		zap.Int("meshes", len(counts.vertices)),
		zap.Int("vertices", nv),
		zap.Int("triangles", nt))
	return h, nil
}

// ReadMeshMetadata returns the vertex and triangle totals of a file.
func (l *Loader) ReadMeshMetadata(path string, read MeshReadConfig) (md MeshMetadata, err error) {
	asset, err := l.openAsset(path, read)
	if err != nil {
		return MeshMetadata{}, err
	}
	defer l.closeAsset(path, asset, &err)

	counts, err := l.countMeshes(asset)
	if err != nil {
		return MeshMetadata{}, importError(path, "counts", err)
	}
	nv, nt := counts.total(counts.all())
	return MeshMetadata{Meshes: len(counts.vertices), Vertices: nv, Triangles: nt}, nil
}

// ReadMesh copies every mesh of a file into vertices and triangles, laid
// out as LoadMesh would build them.
func (l *Loader) ReadMesh(path string, read MeshReadConfig, vertices []bridge.Vertex, triangles []bridge.Triangle) (md MeshMetadata, err error) {
	asset, err := l.openAsset(path, read)
	if err != nil {
		return MeshMetadata{}, err
	}
	defer l.closeAsset(path, asset, &err)

	counts, err := l.countMeshes(asset)
	if err != nil {
		return MeshMetadata{}, importError(path, "counts", err)
	}
	nv, nt := counts.total(counts.all())
	if len(vertices) < nv {
		return MeshMetadata{}, fmt.Errorf("%w: given vertex buffer size (%d) is too small to accomodate mesh data (%d vertices)", ErrBufferTooSmall, len(vertices), nv)
	}
	if len(triangles) < nt {
		return MeshMetadata{}, fmt.Errorf("%w: given triangle buffer size (%d) is too small to accomodate mesh data (%d triangles)", ErrBufferTooSmall, len(triangles), nt)
	}

	err = l.copyMeshes(asset, counts, counts.all(), read.CorrectFlippedOrientation, func(v []bridge.Vertex, t []bridge.Triangle) error {
		copy(vertices, v)
		copy(triangles, t)
		return nil
	})
	if err != nil {
		return MeshMetadata{}, importError(path, "mesh", err)
	}
	return MeshMetadata{Meshes: len(counts.vertices), Vertices: nv, Triangles: nt}, nil
}
