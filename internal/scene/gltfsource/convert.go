package gltfsource

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/float64/vec4"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/network/packets"
	"github.com/Faultbox/dergo/internal/scene"
	dmath "github.com/Faultbox/dergo/pkg/math"
	"github.com/Faultbox/dergo/pkg/mesh"
)

const lightsExtension = "KHR_lights_punctual"

// Renderer defaults for attributes glTF has no notion of.
const (
	defaultLightRadius    = 1.0
	defaultLightThreshold = 0.00392
	defaultOuterCone      = 0.7853982
)

// state is what a load remembers to flag changes on the next one.
type state struct {
	transforms map[scene.Ref]dmath.Mat4
	meshes     map[scene.Ref]uint64
	links      map[scene.Ref]scene.Ref // Mesh node to the mesh it instances
	lights     map[scene.Ref]scene.Light
	materials  map[scene.Ref]materialState
	images     map[scene.Ref]imageStamp
}

type materialState struct {
	params   packets.Material
	textures []scene.TextureBinding
}

type imageStamp struct {
	path    string
	modTime time.Time
}

func newState() *state {
	return &state{
		transforms: make(map[scene.Ref]dmath.Mat4),
		meshes:     make(map[scene.Ref]uint64),
		links:      make(map[scene.Ref]scene.Ref),
		lights:     make(map[scene.Ref]scene.Light),
		materials:  make(map[scene.Ref]materialState),
		images:     make(map[scene.Ref]imageStamp),
	}
}

type punctualLight struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Color     *[3]float32 `json:"color"`
	Intensity *float32    `json:"intensity"`
	Spot      *struct {
		Inner *float32 `json:"innerConeAngle"`
		Outer *float32 `json:"outerConeAngle"`
	} `json:"spot"`
}

// nodeExtras are the identity fields a previous run stored on a node.
type nodeExtras struct {
	Dergo *struct {
		ID     uint64 `json:"id"`
		Name   string `json:"name"`
		Hidden bool   `json:"hidden"`
	} `json:"dergo"`
}

type textureInfo struct {
	Index    *int     `json:"index"`
	TexCoord int      `json:"texCoord"`
	Scale    *float32 `json:"scale"`
}

type converter struct {
	doc    *gltf.Document
	dir    string
	log    *zap.Logger
	snap   *scene.Snapshot
	st     *state
	meshes map[int]*scene.Mesh
	images map[int]*scene.Image
	lights []punctualLight
}

func newConverter(doc *gltf.Document, dir string, log *zap.Logger) *converter {
	return &converter{
		doc:    doc,
		dir:    dir,
		log:    log,
		snap:   &scene.Snapshot{},
		st:     newState(),
		meshes: make(map[int]*scene.Mesh),
		images: make(map[int]*scene.Image),
	}
}

// decodeJSON moves an extension or extras value into a typed struct. The
// document keeps those as raw JSON or generic maps depending on how it was
// decoded.
func decodeJSON(v, out any) error {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *converter) convert() error {
	if ext, ok := c.doc.Extensions[lightsExtension]; ok {
		var lights struct {
			Lights []punctualLight `json:"lights"`
		}
		if err := decodeJSON(ext, &lights); err != nil {
			return fmt.Errorf("%s: %w", lightsExtension, err)
		}
		c.lights = lights.Lights
	}

	for i, img := range c.doc.Images {
		c.image(i, img)
	}
	for i, gm := range c.doc.Materials {
		c.material(i, gm)
	}

	visited := make(map[int]bool, len(c.doc.Nodes))
	for _, root := range c.roots() {
		if err := c.walk(root, dmat.Ident, visited); err != nil {
			return err
		}
	}
	return nil
}

// roots returns the top-level nodes of the default scene, or of the first
// scene, or every parentless node when the file has no scenes.
func (c *converter) roots() []int {
	var nodes []int
	if len(c.doc.Scenes) > 0 {
		sc := c.doc.Scenes[0]
		if c.doc.Scene != nil && int(*c.doc.Scene) < len(c.doc.Scenes) {
			sc = c.doc.Scenes[int(*c.doc.Scene)]
		}
		for _, n := range sc.Nodes {
			nodes = append(nodes, int(n))
		}
		return nodes
	}

	child := make(map[int]bool)
	for _, n := range c.doc.Nodes {
		for _, ch := range n.Children {
			child[int(ch)] = true
		}
	}
	for i := range c.doc.Nodes {
		if !child[i] {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

func (c *converter) walk(idx int, parent dmat.T, visited map[int]bool) error {
	if idx < 0 || idx >= len(c.doc.Nodes) {
		return fmt.Errorf("node %d out of range", idx)
	}
	if visited[idx] {
		return fmt.Errorf("node %d: appears twice in the hierarchy", idx)
	}
	visited[idx] = true

	n := c.doc.Nodes[idx]
	local := localMatrix(n)
	var world dmat.T
	world.AssignMul(&parent, &local)
	worldMat := dmath.FromArray64(*world.Array())

	name := n.Name
	if name == "" {
		name = fmt.Sprintf("node_%d", idx)
	}
	var extras nodeExtras
	if err := decodeJSON(n.Extras, &extras); err != nil {
		c.log.Debug("ignoring node extras", zap.String("node", name), zap.Error(err))
	}
	visible := extras.Dergo == nil || !extras.Dergo.Hidden

	if n.Mesh != nil {
		data, err := c.mesh(int(*n.Mesh))
		if err != nil {
			return fmt.Errorf("node %s: %w", name, err)
		}
		obj := &scene.Object{
			Ref:          scene.Ref(fmt.Sprintf("node/%d", idx)),
			Name:         name,
			Kind:         scene.KindMesh,
			Visible:      visible,
			World:        worldMat,
			Mesh:         data,
			HasModifiers: n.Skin != nil || len(n.Weights) > 0 || len(c.doc.Meshes[int(*n.Mesh)].Weights) > 0,
		}
		if extras.Dergo != nil {
			obj.PersistedID = extras.Dergo.ID
			obj.PersistedName = extras.Dergo.Name
		}
		c.addObject(obj)
	}

	if light, ok := c.nodeLight(n); ok {
		c.addObject(&scene.Object{
			Ref:     scene.Ref(fmt.Sprintf("node/%d/light", idx)),
			Name:    name,
			Kind:    scene.KindLight,
			Visible: visible,
			World:   worldMat,
			Light:   light,
		})
	}

	for _, ch := range n.Children {
		if err := c.walk(int(ch), world, visited); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter) addObject(obj *scene.Object) {
	c.snap.Objects = append(c.snap.Objects, obj)
	c.st.transforms[obj.Ref] = obj.World
	if obj.Mesh != nil {
		c.st.links[obj.Ref] = obj.Mesh.Ref
	}
	if obj.Light != nil {
		c.st.lights[obj.Ref] = *obj.Light
	}
}

func toMat(a [16]float64) dmat.T {
	return dmat.T{
		vec4.T{a[0], a[1], a[2], a[3]},
		vec4.T{a[4], a[5], a[6], a[7]},
		vec4.T{a[8], a[9], a[10], a[11]},
		vec4.T{a[12], a[13], a[14], a[15]},
	}
}

// localMatrix prefers an explicit node matrix and falls back to TRS.
func localMatrix(n *gltf.Node) dmat.T {
	var m [16]float64
	for i, v := range n.Matrix {
		m[i] = float64(v)
	}
	if m != [16]float64{} && m != *dmat.Ident.Array() {
		return toMat(m)
	}

	var t, s dmath.Vec3
	var r dmath.Quat
	t.X, t.Y, t.Z = float32(n.Translation[0]), float32(n.Translation[1]), float32(n.Translation[2])
	s.X, s.Y, s.Z = float32(n.Scale[0]), float32(n.Scale[1]), float32(n.Scale[2])
	r.X, r.Y, r.Z, r.W = float32(n.Rotation[0]), float32(n.Rotation[1]), float32(n.Rotation[2]), float32(n.Rotation[3])
	if s == (dmath.Vec3{}) {
		s = dmath.Vec3{X: 1, Y: 1, Z: 1}
	}
	if r == (dmath.Quat{}) {
		r = dmath.QuatIdentity()
	}
	for i, v := range dmath.FromTRS(t, r, s) {
		m[i] = float64(v)
	}
	return toMat(m)
}

func (c *converter) nodeLight(n *gltf.Node) (*scene.Light, bool) {
	ext, ok := n.Extensions[lightsExtension]
	if !ok {
		return nil, false
	}
	var ref struct {
		Light *int `json:"light"`
	}
	if err := decodeJSON(ext, &ref); err != nil || ref.Light == nil {
		return nil, false
	}
	if *ref.Light < 0 || *ref.Light >= len(c.lights) {
		c.log.Warn("light index out of range", zap.String("node", n.Name), zap.Int("light", *ref.Light))
		return nil, false
	}
	return convertLight(&c.lights[*ref.Light]), true
}

func convertLight(pl *punctualLight) *scene.Light {
	l := &scene.Light{
		Color:           [3]float32{1, 1, 1},
		Energy:          1,
		CastShadows:     true,
		Radius:          defaultLightRadius,
		RadiusThreshold: defaultLightThreshold,
	}
	if pl.Color != nil {
		l.Color = *pl.Color
	}
	if pl.Intensity != nil {
		l.Energy = *pl.Intensity
	}

	switch pl.Type {
	case "directional":
		l.Type = packets.LightSun
	case "spot":
		l.Type = packets.LightSpot
		inner, outer := float32(0), float32(defaultOuterCone)
		if pl.Spot != nil {
			if pl.Spot.Inner != nil {
				inner = *pl.Spot.Inner
			}
			if pl.Spot.Outer != nil {
				outer = *pl.Spot.Outer
			}
		}
		l.Spot = packets.Spot{Size: 2 * outer, Falloff: 1}
		if outer > 0 {
			l.Spot.Blend = (outer - inner) / outer
		}
	default:
		l.Type = packets.LightPoint
	}
	return l
}

func (c *converter) image(i int, img *gltf.Image) {
	if img.URI == "" || strings.HasPrefix(img.URI, "data:") {
		c.log.Debug("skipping embedded image", zap.Int("image", i), zap.String("name", img.Name))
		return
	}
	uri, err := url.PathUnescape(img.URI)
	if err != nil {
		uri = img.URI
	}
	path := filepath.Join(c.dir, filepath.FromSlash(uri))
	name := img.Name
	if name == "" {
		name = filepath.Base(path)
	}

	si := &scene.Image{Ref: scene.Ref(fmt.Sprintf("image/%d", i)), Name: name, Path: path}
	c.images[i] = si
	c.snap.Images = append(c.snap.Images, si)

	stamp := imageStamp{path: path}
	if fi, err := os.Stat(path); err == nil {
		stamp.modTime = fi.ModTime()
	}
	c.st.images[si.Ref] = stamp
}

func materialRef(i int) scene.Ref { return scene.Ref(fmt.Sprintf("material/%d", i)) }

func (c *converter) material(i int, gm *gltf.Material) {
	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("material_%d", i)
	}

	p := packets.Material{
		BRDF:           packets.BRDFDefault,
		Workflow:       packets.WorkflowMetallic,
		CullMode:       packets.CullClockwise,
		CullModeShadow: packets.CullAnticlockwise,
		AlphaTest:      packets.CompareAlwaysPass,
		Alpha:          1,
		Diffuse:        [3]float32{1, 1, 1},
		Specular:       [3]float32{1, 1, 1},
		Roughness:      1,
		Metallic:       1,
		NormalStrength: 1,
		Samplers:       make([]packets.Sampler, packets.MaxTextureSlots),
	}
	for s := range p.Samplers {
		p.Samplers[s] = packets.DefaultSampler
	}
	if gm.DoubleSided {
		p.CullMode, p.CullModeShadow = packets.CullNone, packets.CullNone
		p.TwoSided = true
	}

	var bindings []scene.TextureBinding
	bind := func(slot packets.TextureSlot, info any) {
		var ti *textureInfo
		if err := decodeJSON(info, &ti); err != nil || ti == nil || ti.Index == nil {
			return
		}
		if *ti.Index < 0 || *ti.Index >= len(c.doc.Textures) {
			c.log.Warn("texture index out of range", zap.String("material", name), zap.Int("texture", *ti.Index))
			return
		}
		tex := c.doc.Textures[*ti.Index]
		if tex.Source == nil {
			return
		}
		img, ok := c.images[int(*tex.Source)]
		if !ok {
			return
		}
		smp := packets.DefaultSampler
		smp.UVSet = uint8(ti.TexCoord)
		if tex.Sampler != nil && int(*tex.Sampler) < len(c.doc.Samplers) {
			gs := c.doc.Samplers[int(*tex.Sampler)]
			smp.AddressU = addressMode(gs.WrapS)
			smp.AddressV = addressMode(gs.WrapT)
		}
		p.Samplers[slot] = smp
		bindings = append(bindings, scene.TextureBinding{Slot: slot, Image: img.Ref})
		if slot == packets.SlotNormal && ti.Scale != nil {
			p.NormalStrength = *ti.Scale
		}
	}

	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			var base [4]float32
			for k, v := range pbr.BaseColorFactor {
				base[k] = float32(v)
			}
			p.Diffuse = [3]float32{base[0], base[1], base[2]}
			p.Alpha = base[3]
		}
		if pbr.MetallicFactor != nil {
			p.Metallic = float32(*pbr.MetallicFactor)
		}
		if pbr.RoughnessFactor != nil {
			p.Roughness = float32(*pbr.RoughnessFactor)
		}
		if pbr.BaseColorTexture != nil {
			bind(packets.SlotDiffuse, pbr.BaseColorTexture)
		}
		if pbr.MetallicRoughnessTexture != nil {
			bind(packets.SlotRoughness, pbr.MetallicRoughnessTexture)
		}
	}
	if gm.NormalTexture != nil {
		bind(packets.SlotNormal, gm.NormalTexture)
	}
	if gm.EmissiveTexture != nil {
		bind(packets.SlotEmissive, gm.EmissiveTexture)
	}

	switch gm.AlphaMode {
	case gltf.AlphaBlend:
		p.Transparency = packets.TransparencyTransparent
		p.AlphaFromTexture = true
	case gltf.AlphaMask:
		p.AlphaTest = packets.CompareGreaterEqual
		p.AlphaThreshold = 0.5
		if gm.AlphaCutoff != nil {
			p.AlphaThreshold = float32(*gm.AlphaCutoff)
		}
	}

	ref := materialRef(i)
	c.snap.Materials = append(c.snap.Materials, &scene.Material{
		Ref:      ref,
		Name:     name,
		Params:   p,
		Textures: bindings,
	})
	c.st.materials[ref] = materialState{params: p, textures: bindings}
}

func addressMode(w gltf.WrappingMode) packets.AddressMode {
	switch w {
	case gltf.WrapClampToEdge:
		return packets.AddressClamp
	case gltf.WrapMirroredRepeat:
		return packets.AddressMirror
	}
	return packets.AddressWrap
}

// mesh converts glTF mesh i once per load; nodes sharing it share the result.
func (c *converter) mesh(i int) (*scene.Mesh, error) {
	if m, ok := c.meshes[i]; ok {
		return m, nil
	}
	if i < 0 || i >= len(c.doc.Meshes) {
		return nil, fmt.Errorf("mesh %d out of range", i)
	}
	gm := c.doc.Meshes[i]
	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("mesh_%d", i)
	}

	var prims []*gltf.Primitive
	for _, p := range gm.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			c.log.Debug("skipping non-triangle primitive", zap.String("mesh", name))
			continue
		}
		if _, ok := p.Attributes["POSITION"]; !ok {
			continue
		}
		prims = append(prims, p)
	}

	uvSets := -1
	hasColor := len(prims) > 0
	for _, p := range prims {
		n := 0
		for {
			if _, ok := p.Attributes[fmt.Sprintf("TEXCOORD_%d", n)]; !ok {
				break
			}
			n++
		}
		if uvSets < 0 || n < uvSets {
			uvSets = n
		}
		if _, ok := p.Attributes["COLOR_0"]; !ok {
			hasColor = false
		}
	}
	uvSets = max(uvSets, 0)

	geo := &mesh.Mesh{UVs: make([]mesh.UVLayer, uvSets)}
	for k := range geo.UVs {
		geo.UVs[k].Name = fmt.Sprintf("TEXCOORD_%d", k)
	}
	if hasColor {
		geo.Colors = &mesh.ColorLayer{}
	}

	data := &scene.Mesh{
		Ref:       scene.Ref(fmt.Sprintf("mesh/%d", i)),
		Name:      name,
		Geometry:  geo,
		TangentUV: -1,
	}
	for slot, p := range prims {
		if err := c.appendPrimitive(geo, p, uint16(slot), uvSets); err != nil {
			return nil, fmt.Errorf("mesh %s: %w", name, err)
		}
		ref := scene.Ref("")
		if p.Material != nil {
			ref = materialRef(int(*p.Material))
			if data.TangentUV < 0 {
				data.TangentUV = c.normalMapUV(int(*p.Material))
			}
		}
		data.Materials = append(data.Materials, ref)
	}

	c.meshes[i] = data
	c.st.meshes[data.Ref] = digest(data)
	return data, nil
}

func (c *converter) normalMapUV(material int) int {
	if material < 0 || material >= len(c.doc.Materials) || c.doc.Materials[material].NormalTexture == nil {
		return -1
	}
	var ti *textureInfo
	if err := decodeJSON(c.doc.Materials[material].NormalTexture, &ti); err != nil || ti == nil || ti.Index == nil {
		return -1
	}
	return ti.TexCoord
}

func (c *converter) appendPrimitive(geo *mesh.Mesh, p *gltf.Primitive, slot uint16, uvSets int) error {
	positions, err := readPositions(c.doc, int(p.Attributes["POSITION"]))
	if err != nil {
		return err
	}
	var normals [][3]float32
	if idx, ok := p.Attributes["NORMAL"]; ok {
		if normals, err = readNormals(c.doc, int(idx)); err != nil {
			return err
		}
		if len(normals) != len(positions) {
			return fmt.Errorf("%d normals for %d positions", len(normals), len(positions))
		}
	}

	var indices []uint32
	if p.Indices != nil {
		if indices, err = readIndices(c.doc, int(*p.Indices)); err != nil {
			return err
		}
	} else {
		indices = make([]uint32, len(positions))
		for k := range indices {
			indices[k] = uint32(k)
		}
	}
	if len(indices)%3 != 0 {
		return fmt.Errorf("%d indices do not form triangles", len(indices))
	}
	for _, ix := range indices {
		if int(ix) >= len(positions) {
			return fmt.Errorf("index %d past %d vertices", ix, len(positions))
		}
	}

	var colors [][4]float32
	if geo.Colors != nil {
		var alpha bool
		if colors, alpha, err = readColors(c.doc, int(p.Attributes["COLOR_0"])); err != nil {
			return err
		}
		geo.Colors.HasAlpha = geo.Colors.HasAlpha || alpha
	}
	uvs := make([][][2]float32, uvSets)
	for k := range uvs {
		if uvs[k], err = readTexCoords(c.doc, int(p.Attributes[fmt.Sprintf("TEXCOORD_%d", k)])); err != nil {
			return err
		}
	}

	base := uint32(len(geo.Vertices))
	for k, pos := range positions {
		v := mesh.Vertex{Position: pos}
		if normals != nil {
			v.Normal = normals[k]
		}
		geo.Vertices = append(geo.Vertices, v)
	}

	for t := 0; t+2 < len(indices); t += 3 {
		tri := [3]uint32{indices[t], indices[t+1], indices[t+2]}
		geo.Polygons = append(geo.Polygons, mesh.Polygon{
			Vertices: []uint32{base + tri[0], base + tri[1], base + tri[2]},
			Normal:   faceNormal(positions[tri[0]], positions[tri[1]], positions[tri[2]]),
			Smooth:   normals != nil,
			Material: slot,
		})
		if geo.Colors != nil {
			var corners [4][4]float32
			for k, ix := range tri {
				if int(ix) < len(colors) {
					corners[k] = colors[ix]
				}
			}
			geo.Colors.Faces = append(geo.Colors.Faces, corners)
		}
		for k := range uvs {
			var corners [4][2]float32
			for n, ix := range tri {
				if int(ix) < len(uvs[k]) {
					// Texture space origin is bottom left on the renderer.
					corners[n] = [2]float32{uvs[k][ix][0], 1 - uvs[k][ix][1]}
				}
			}
			geo.UVs[k].Faces = append(geo.UVs[k].Faces, corners)
		}
	}
	return nil
}

func faceNormal(a, b, c [3]float32) [3]float32 {
	pa, pb, pc := dmath.Vec3From(a), dmath.Vec3From(b), dmath.Vec3From(c)
	return pb.Sub(pa).Cross(pc.Sub(pa)).Normalize().Array()
}

// digest fingerprints everything a Mesh message carries.
func digest(m *scene.Mesh) uint64 {
	h := xxhash.New()
	geo := m.Geometry
	_ = binary.Write(h, binary.LittleEndian, geo.Vertices)
	for _, p := range geo.Polygons {
		_ = binary.Write(h, binary.LittleEndian, p.Vertices)
		_ = binary.Write(h, binary.LittleEndian, p.Normal)
		_ = binary.Write(h, binary.LittleEndian, p.Smooth)
		_ = binary.Write(h, binary.LittleEndian, p.Material)
	}
	if geo.Colors != nil {
		_ = binary.Write(h, binary.LittleEndian, geo.Colors.HasAlpha)
		_ = binary.Write(h, binary.LittleEndian, geo.Colors.Faces)
	}
	for _, uv := range geo.UVs {
		_, _ = h.WriteString(uv.Name)
		_ = binary.Write(h, binary.LittleEndian, uv.Faces)
	}
	for _, ref := range m.Materials {
		_, _ = h.WriteString(string(ref))
		_, _ = h.Write([]byte{0})
	}
	_ = binary.Write(h, binary.LittleEndian, int32(m.TangentUV))
	return h.Sum64()
}
