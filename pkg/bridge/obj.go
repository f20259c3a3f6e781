package bridge

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// objAsset is a parsed Wavefront OBJ file with its MTL materials.
type objAsset struct {
	meshes    []MemoryMesh
	materials []MemoryMaterial
	textures  []string // paths relative to the asset directory
}

type objIndex struct{ v, vt, vn int }

type objBuilder struct {
	positions [][3]float32
	uvs       [][2]float32
	normals   [][3]float32

	fixCommonErrors bool
	optimize        bool

	meshes   []*objMesh
	current  *objMesh
	matIndex map[string]int
}

type objMesh struct {
	material  int
	vertices  []Vertex
	hasNormal []bool
	triangles []Triangle
	dedupe    map[objIndex]int32
}

// parseOBJ parses OBJ data. readFile resolves mtllib references relative to
// dir.
func parseOBJ(data []byte, dir string, fixCommonErrors, optimize bool, readFile func(string) ([]byte, error)) (*objAsset, error) {
	b := &objBuilder{
		fixCommonErrors: fixCommonErrors,
		optimize:        optimize,
		matIndex:        make(map[string]int),
	}
	asset := &objAsset{}
	textures := make(map[string]int32)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(stripComment(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		args := fields[1:]
		var err error
		switch fields[0] {
		case "v":
			var p [3]float32
			p, err = parseVec3(args)
			b.positions = append(b.positions, p)
		case "vt":
			var f []float32
			if f, err = parseFloats(args, 1); err == nil {
				uv := [2]float32{f[0], 0}
				if len(f) > 1 {
					uv[1] = f[1]
				}
				b.uvs = append(b.uvs, uv)
			}
		case "vn":
			var n [3]float32
			n, err = parseVec3(args)
			b.normals = append(b.normals, n)
		case "f":
			err = b.face(args)
		case "usemtl":
			if len(args) == 0 {
				err = fmt.Errorf("usemtl without a name")
				break
			}
			idx, ok := b.matIndex[args[0]]
			if !ok {
				idx = len(asset.materials)
				b.matIndex[args[0]] = idx
				asset.materials = append(asset.materials, defaultOBJMaterial())
			}
			b.use(idx)
		case "mtllib":
			for _, name := range args {
				mtl, rerr := readFile(filepath.Join(dir, name))
				if rerr != nil {
					return nil, fmt.Errorf("line %d: mtllib %s: %w", line, name, rerr)
				}
				if err = parseMTL(mtl, asset, b.matIndex, textures); err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for _, m := range b.meshes {
		if len(m.triangles) == 0 {
			continue
		}
		m.finish()
		asset.meshes = append(asset.meshes, MemoryMesh{Vertices: m.vertices, Triangles: m.triangles, Material: m.material})
	}
	if len(asset.materials) == 0 && len(asset.meshes) > 0 {
		asset.materials = append(asset.materials, defaultOBJMaterial())
	}
	asset.textures = make([]string, len(textures))
	for p, i := range textures {
		asset.textures[i] = p
	}
	return asset, nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

func (b *objBuilder) use(material int) {
	for _, m := range b.meshes {
		if m.material == material {
			b.current = m
			return
		}
	}
	b.current = &objMesh{material: material, dedupe: make(map[objIndex]int32)}
	b.meshes = append(b.meshes, b.current)
}

func (b *objBuilder) face(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("face with %d vertices", len(args))
	}
	if b.current == nil {
		b.use(0)
	}
	idx := make([]int32, len(args))
	for i, a := range args {
		key, err := b.parseIndex(a)
		if err != nil {
			return err
		}
		idx[i] = b.current.vertex(b, key)
	}
	// fan triangulation
	for i := 1; i+1 < len(idx); i++ {
		t := Triangle{idx[0], idx[i], idx[i+1]}
		if b.fixCommonErrors && (t.A == t.B || t.B == t.C || t.A == t.C) {
			continue
		}
		b.current.triangles = append(b.current.triangles, t)
	}
	return nil
}

func (b *objBuilder) parseIndex(s string) (objIndex, error) {
	parts := strings.Split(s, "/")
	resolve := func(i int, n int) (int, error) {
		if i >= len(parts) || parts[i] == "" {
			return -1, nil
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, fmt.Errorf("bad face index %q", s)
		}
		if v < 0 {
			v += n
		} else {
			v--
		}
		if v < 0 || v >= n {
			return 0, fmt.Errorf("face index %q out of range", s)
		}
		return v, nil
	}
	var k objIndex
	var err error
	if k.v, err = resolve(0, len(b.positions)); err != nil {
		return k, err
	}
	if k.v < 0 {
		return k, fmt.Errorf("face vertex %q has no position", s)
	}
	if k.vt, err = resolve(1, len(b.uvs)); err != nil {
		return k, err
	}
	k.vn, err = resolve(2, len(b.normals))
	return k, err
}

func (m *objMesh) vertex(b *objBuilder, k objIndex) int32 {
	if b.optimize {
		if i, ok := m.dedupe[k]; ok {
			return i
		}
	}
	v := Vertex{Position: b.positions[k.v], Tangent: [4]float32{1, 0, 0, 1}}
	if k.vt >= 0 {
		v.UV = b.uvs[k.vt]
	}
	hasNormal := k.vn >= 0
	if hasNormal {
		v.Normal = b.normals[k.vn]
		if b.fixCommonErrors {
			v.Normal = normalize(v.Normal)
		}
	}
	i := int32(len(m.vertices))
	m.vertices = append(m.vertices, v)
	m.hasNormal = append(m.hasNormal, hasNormal)
	if b.optimize {
		m.dedupe[k] = i
	}
	return i
}

// finish fills in missing normals from face normals and derives tangents
// from UVs where possible.
func (m *objMesh) finish() {
	accN := make([][3]float32, len(m.vertices))
	accT := make([][3]float32, len(m.vertices))
	for _, t := range m.triangles {
		a, b, c := m.vertices[t.A], m.vertices[t.B], m.vertices[t.C]
		e1 := sub(b.Position, a.Position)
		e2 := sub(c.Position, a.Position)
		n := cross(e1, e2)

		du1, dv1 := b.UV[0]-a.UV[0], b.UV[1]-a.UV[1]
		du2, dv2 := c.UV[0]-a.UV[0], c.UV[1]-a.UV[1]
		var tan [3]float32
		if det := du1*dv2 - du2*dv1; det != 0 {
			r := 1 / det
			for i := 0; i < 3; i++ {
				tan[i] = (e1[i]*dv2 - e2[i]*dv1) * r
			}
		}
		for _, i := range []int32{t.A, t.B, t.C} {
			accN[i] = add(accN[i], n)
			accT[i] = add(accT[i], tan)
		}
	}
	for i := range m.vertices {
		if !m.hasNormal[i] {
			m.vertices[i].Normal = normalize(accN[i])
		}
		if tan := normalize(accT[i]); tan != ([3]float32{}) {
			m.vertices[i].Tangent = [4]float32{tan[0], tan[1], tan[2], 1}
		}
	}
	m.dedupe = nil
}

func defaultOBJMaterial() MemoryMaterial {
	return MemoryMaterial{AlphaFormat: AlphaOpaque, RefractionThickness: -1}
}

// parseMTL appends the materials of an MTL file. Materials already
// referenced by usemtl keep their index.
func parseMTL(data []byte, asset *objAsset, matIndex map[string]int, textures map[string]int32) error {
	var cur *MemoryMaterial
	texture := func(args []string) (MaterialParam, error) {
		if len(args) == 0 {
			return MaterialParam{}, fmt.Errorf("texture map without a file")
		}
		// options (-bm 1.0, -o u v w, ...) precede the file name
		p := filepath.ToSlash(args[len(args)-1])
		idx, ok := textures[p]
		if !ok {
			idx = int32(len(textures))
			textures[p] = idx
		}
		return Tex(idx), nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(stripComment(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		key, args := fields[0], fields[1:]
		if key == "newmtl" {
			if len(args) == 0 {
				return fmt.Errorf("line %d: newmtl without a name", line)
			}
			idx, ok := matIndex[args[0]]
			if !ok {
				idx = len(asset.materials)
				matIndex[args[0]] = idx
				asset.materials = append(asset.materials, defaultOBJMaterial())
			}
			cur = &asset.materials[idx]
			continue
		}
		if cur == nil {
			continue
		}

		slot, isMap := mtlSlot(key)
		if slot < 0 {
			if err := mtlScalar(cur, key, args); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			continue
		}
		var p MaterialParam
		var err error
		if isMap {
			p, err = texture(args)
		} else {
			p, err = numericParam(args)
		}
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", line, key, err)
		}
		if slot == ParamIoR || slot == ParamGlossiness && key == "Ns" {
			p = convertScalar(slot, p)
		}
		// explicit roughness wins over the Ns-derived glossiness
		if slot == ParamGlossiness && cur.Params[ParamRoughness].Format != NotIncluded {
			continue
		}
		if slot == ParamRoughness {
			cur.Params[ParamGlossiness] = MaterialParam{}
		}
		cur.Params[slot] = p
	}
	return sc.Err()
}

// mtlSlot maps an MTL key to a material param slot and whether it names a
// texture map. Unknown keys return -1.
func mtlSlot(key string) (int, bool) {
	switch key {
	case "Kd":
		return ParamColor, false
	case "map_Kd":
		return ParamColor, true
	case "norm", "map_Bump", "map_bump", "bump":
		return ParamNormal, true
	case "map_Ka", "map_ao":
		return ParamAmbientOcclusion, true
	case "Pr":
		return ParamRoughness, false
	case "map_Pr":
		return ParamRoughness, true
	case "Ns":
		return ParamGlossiness, false
	case "map_Ns":
		return ParamGlossiness, true
	case "Pm":
		return ParamMetallic, false
	case "map_Pm":
		return ParamMetallic, true
	case "Ni":
		return ParamIoR, false
	case "Tf":
		return ParamAbsorption, false
	case "map_Tf":
		return ParamAbsorption, true
	case "Pt":
		return ParamTransmission, false
	case "map_Pt":
		return ParamTransmission, true
	case "Ke":
		return ParamEmissiveColor, false
	case "map_Ke":
		return ParamEmissiveColor, true
	case "Pe":
		return ParamEmissiveIntensity, false
	case "anisor":
		return ParamAnisotropyAngle, false
	case "map_anisor":
		return ParamAnisotropyAngle, true
	case "aniso":
		return ParamAnisotropyStrength, false
	case "map_aniso":
		return ParamAnisotropyStrength, true
	case "Pc":
		return ParamClearCoatStrength, false
	case "map_Pc":
		return ParamClearCoatStrength, true
	case "Pcr":
		return ParamClearCoatRoughness, false
	case "map_Pcr":
		return ParamClearCoatRoughness, true
	}
	return -1, false
}

func mtlScalar(m *MemoryMaterial, key string, args []string) error {
	switch key {
	case "d", "Tr":
		f, err := parseFloats(args, 1)
		if err != nil {
			return err
		}
		alpha := f[0]
		if key == "Tr" {
			alpha = 1 - alpha
		}
		if alpha < 1 {
			m.AlphaFormat = AlphaBlending
		} else {
			m.AlphaFormat = AlphaOpaque
		}
		if m.Params[ParamColor].Format == Numerical {
			m.Params[ParamColor].A = alpha
		}
	case "Pth":
		f, err := parseFloats(args, 1)
		if err != nil {
			return err
		}
		m.RefractionThickness = f[0]
	}
	return nil
}

func numericParam(args []string) (MaterialParam, error) {
	f, err := parseFloats(args, 1)
	if err != nil {
		return MaterialParam{}, err
	}
	switch len(f) {
	case 1, 2:
		return Num(f[0], f[0], f[0], 1), nil
	case 3:
		return Num(f[0], f[1], f[2], 1), nil
	default:
		return Num(f[0], f[1], f[2], f[3]), nil
	}
}

// convertScalar turns Ns into a normalized glossiness and keeps Ni as the
// raw index of refraction in R.
func convertScalar(slot int, p MaterialParam) MaterialParam {
	switch slot {
	case ParamGlossiness:
		// Blinn-Phong exponent to roughness, then inverted
		r := float32(math.Sqrt(2 / (float64(max(p.R, 0)) + 2)))
		g := 1 - r
		return Num(g, g, g, 1)
	case ParamIoR:
		return Num(p.R, 0, 0, 0)
	}
	return p
}

func parseFloats(args []string, atLeast int) ([]float32, error) {
	if len(args) < atLeast {
		return nil, fmt.Errorf("expected at least %d values, got %d", atLeast, len(args))
	}
	out := make([]float32, 0, len(args))
	for _, a := range args {
		f, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

func parseVec3(args []string) ([3]float32, error) {
	f, err := parseFloats(args, 3)
	if err != nil {
		return [3]float32{}, err
	}
	return [3]float32{f[0], f[1], f[2]}, nil
}

func sub(a, b [3]float32) [3]float32 { return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func add(a, b [3]float32) [3]float32 { return [3]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v [3]float32) [3]float32 {
	l := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
	if l == 0 {
		return v
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}
