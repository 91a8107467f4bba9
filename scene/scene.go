// Package scene manages meshes, entities and textures together with the
// acceleration structures the raytrace kernel traverses: one GAS per mesh
// and one scene-wide IAS over the visible entities. All structures are
// rebuilt or refitted lazily at commit time depending on what changed.
package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/chewxy/math32"

	"github.com/achilleasa/go-lidar/device"
	"github.com/achilleasa/go-lidar/log"
	"github.com/achilleasa/go-lidar/types"
)

// Scene owns meshes, entities and textures. Mutations only flip dirty
// flags; device work happens at Commit. Texture id 0 means "no texture";
// an instance id of 0 is replaced by the entity handle.
type Scene struct {
	mu     sync.Mutex
	logger log.Logger

	dev *device.Device

	meshes   map[MeshID]*Mesh
	entities map[EntityID]*Entity
	textures map[TextureID]*Texture

	nextMeshID    MeshID
	nextEntityID  EntityID
	nextTextureID TextureID
	nextSeq       uint64

	// Cached IAS. Invariant: when structureDirty and transformsDirty
	// are both false the IAS refers only to live entities with their
	// current transforms and GAS handles.
	ias             *IAS
	structureDirty  bool
	transformsDirty bool

	// Scratchpad reused across commits to avoid repacking allocations.
	packNodes []bvhNode
	packTris  []types.Vec4
	packTex   []float32
}

// Create an empty scene on the given device.
func New(dev *device.Device) *Scene {
	return &Scene{
		logger:   log.New("scene"),
		dev:      dev,
		meshes:   make(map[MeshID]*Mesh),
		entities: make(map[EntityID]*Entity),
		textures: make(map[TextureID]*Texture),
	}
}

// Get the owning device.
func (s *Scene) Device() *device.Device {
	return s.dev
}

// Add a mesh built from the given vertex and index arrays. The arrays are
// copied; the caller may reuse them.
func (s *Scene) AddMesh(vertices []types.Vec3, indices []types.Vec3i) (MeshID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMeshID++
	mesh, err := newMesh(s.nextMeshID, vertices, indices)
	if err != nil {
		s.nextMeshID--
		return 0, err
	}
	s.meshes[mesh.id] = mesh
	return mesh.id, nil
}

// Replace a mesh's vertex array. Keeping the vertex count schedules a GAS
// refit; changing it schedules a rebuild.
func (s *Scene) UpdateVertices(id MeshID, vertices []types.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mesh, exists := s.meshes[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrUnknownMesh, id)
	}
	countChanged := len(vertices) != len(mesh.vertices)
	if err := mesh.updateVertices(vertices); err != nil {
		return err
	}
	if countChanged {
		// Packed buffer extents change; the IAS must repack.
		s.structureDirty = true
	} else {
		// World bounds may move; the top BVH needs a refit.
		s.transformsDirty = true
	}
	return nil
}

// Remove a mesh. Fails while entities still reference it.
func (s *Scene) RemoveMesh(id MeshID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mesh, exists := s.meshes[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrUnknownMesh, id)
	}
	if mesh.refs > 0 {
		return fmt.Errorf("%w: mesh %d has %d references", ErrMeshInUse, id, mesh.refs)
	}
	delete(s.meshes, id)
	return nil
}

// Add an intensity texture. Texels are row-major width*height floats.
func (s *Scene) AddTexture(width, height int, texels []float32) (TextureID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width <= 0 || height <= 0 || len(texels) != width*height {
		return 0, fmt.Errorf("%w: texture %dx%d with %d texels", ErrInvalidGeometry, width, height, len(texels))
	}
	s.nextTextureID++
	tex := &Texture{
		id:     s.nextTextureID,
		width:  width,
		height: height,
		texels: append([]float32(nil), texels...),
	}
	s.textures[tex.id] = tex
	return tex.id, nil
}

// Instance a mesh into the scene. id is the caller-assigned instance id
// reported in hit metadata; texture 0 means no intensity texture.
func (s *Scene) AddEntity(mesh MeshID, transform types.Mat3x4, id uint32, texture TextureID) (EntityID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.meshes[mesh]
	if !exists {
		return 0, fmt.Errorf("%w: %d", ErrUnknownMesh, mesh)
	}
	var tex *Texture
	if texture != 0 {
		tex, exists = s.textures[texture]
		if !exists {
			return 0, fmt.Errorf("%w: unknown texture %d", ErrInvalidGeometry, texture)
		}
	}

	s.nextEntityID++
	s.nextSeq++
	ent := &Entity{
		id:        s.nextEntityID,
		mesh:      m,
		transform: transform,
		texture:   tex,
		visible:   true,
		seq:       s.nextSeq,
	}
	// Instance id defaults to the entity handle when the caller passes 0.
	if id == 0 {
		id = uint32(ent.id)
	}
	ent.instanceID = id

	m.refs++
	if tex != nil {
		tex.refs++
	}
	s.entities[ent.id] = ent
	s.structureDirty = true
	return ent.id, nil
}

// Update an entity's world transform.
func (s *Scene) SetTransform(id EntityID, transform types.Mat3x4) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	ent.transform = transform
	s.transformsDirty = true
	return nil
}

// Toggle entity visibility. Changes the instance set, so the IAS is
// rebuilt on the next commit.
func (s *Scene) SetVisible(id EntityID, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	if ent.visible != visible {
		ent.visible = visible
		s.structureDirty = true
	}
	return nil
}

// Remove an entity and release its mesh and texture references.
func (s *Scene) RemoveEntity(id EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	ent.mesh.refs--
	if ent.texture != nil {
		ent.texture.refs--
	}
	delete(s.entities, id)
	s.structureDirty = true
	return nil
}

// Commit ensures every dirty GAS is rebuilt or refitted and that the IAS
// reflects the current entity set and transforms, then returns it.
// Idempotent: a clean scene returns the cached IAS without touching the
// device. All device work is submitted to the supplied queue.
func (s *Scene) Commit(q *device.Queue) (*IAS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := s.visibleEntities()

	// Refresh per-mesh structures first; a topology rebuild changes
	// packed extents and escalates to an IAS rebuild.
	gasChanged := false
	for _, ent := range visible {
		if ent.mesh.gasNeedsUpdate || ent.mesh.cachedGAS == nil {
			if ent.mesh.topologyChanged {
				s.structureDirty = true
			}
			ent.mesh.ensureGAS()
			gasChanged = true
		}
	}

	if s.ias != nil && !s.structureDirty && !s.transformsDirty && !gasChanged {
		return s.ias, nil
	}

	var err error
	if s.ias == nil || s.structureDirty {
		err = s.rebuildIAS(q, visible)
	} else {
		err = s.refitIAS(q, visible, gasChanged)
	}
	if err != nil {
		return nil, err
	}

	s.structureDirty = false
	s.transformsDirty = false
	return s.ias, nil
}

// Collect visible entities in insertion order.
func (s *Scene) visibleEntities() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, ent := range s.entities {
		if ent.visible {
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Full IAS rebuild: repack every used GAS, triangle and texture into the
// shared device buffers, rebuild the top BVH and upload everything.
func (s *Scene) rebuildIAS(q *device.Queue, visible []*Entity) error {
	if s.ias == nil {
		s.ias = &IAS{
			TopBuf:   s.dev.Buffer("iasTopNodes"),
			NodesBuf: s.dev.Buffer("gasNodes"),
			TrisBuf:  s.dev.Buffer("gasTriangles"),
			InstBuf:  s.dev.Buffer("instances"),
			TexBuf:   s.dev.Buffer("intensityTextures"),
		}
	}
	ias := s.ias

	// Pack GAS nodes and leaf-ordered triangles for every referenced
	// mesh. Rebuilt storage is exactly sized (compacted); refits later
	// reuse it in place.
	s.packNodes = s.packNodes[:0]
	s.packTris = s.packTris[:0]
	s.packTex = s.packTex[:0]
	packedMeshes := make(map[MeshID]bool, len(visible))
	packedTextures := make(map[TextureID]bool)

	for _, ent := range visible {
		mesh := ent.mesh
		if !packedMeshes[mesh.id] {
			packedMeshes[mesh.id] = true
			mesh.nodeOffset = uint32(len(s.packNodes))
			mesh.triOffset = uint32(len(s.packTris) / 3)
			s.packNodes = append(s.packNodes, mesh.cachedGAS.nodes...)
			s.packTris = appendMeshTris(s.packTris, mesh)
		}
		if ent.texture != nil && !packedTextures[ent.texture.id] {
			packedTextures[ent.texture.id] = true
			ent.texture.texOffset = int32(len(s.packTex))
			s.packTex = append(s.packTex, ent.texture.texels...)
		}
	}

	// Build instance records and world bounds in insertion order.
	ias.instances = ias.instances[:0]
	ias.boxes = ias.boxes[:0]
	for _, ent := range visible {
		rec := InstanceRecord{
			Transform:  ent.transform,
			Inverse:    ent.transform.Inverse(),
			NodeOffset: ent.mesh.nodeOffset,
			TriOffset:  ent.mesh.triOffset,
			InstanceID: ent.instanceID,
			TexOffset:  -1,
		}
		if ent.texture != nil {
			rec.TexOffset = ent.texture.texOffset
			rec.TexWidth = uint32(ent.texture.width)
			rec.TexHeight = uint32(ent.texture.height)
		}
		ias.instances = append(ias.instances, rec)

		min, max := ent.mesh.cachedGAS.bbox()
		ias.boxes = append(ias.boxes, worldBounds(min, max, ent.transform))
	}
	ias.InstanceCount = len(ias.instances)

	if len(ias.instances) == 0 {
		ias.topNodes = ias.topNodes[:0]
		return nil
	}
	ias.topNodes = buildTopBVH(ias.boxes)
	s.logger.Debugf(
		"IAS rebuild: %d instances, %d top nodes, %d gas nodes, %d triangles",
		len(ias.instances), len(ias.topNodes), len(s.packNodes), len(s.packTris)/3,
	)

	if err := s.uploadAll(q); err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	return nil
}

// Transform-only update: rewrite instance records and refit the top BVH
// in place. GAS node content is re-uploaded only when a refit moved it.
func (s *Scene) refitIAS(q *device.Queue, visible []*Entity, gasChanged bool) error {
	ias := s.ias
	for i, ent := range visible {
		ias.instances[i].Transform = ent.transform
		ias.instances[i].Inverse = ent.transform.Inverse()
		min, max := ent.mesh.cachedGAS.bbox()
		ias.boxes[i] = worldBounds(min, max, ent.transform)
	}
	ias.refitTop()

	if len(ias.instances) == 0 {
		return nil
	}

	if gasChanged {
		s.packNodes = s.packNodes[:0]
		s.packTris = s.packTris[:0]
		repacked := make(map[MeshID]bool, len(visible))
		for _, ent := range visible {
			if !repacked[ent.mesh.id] {
				repacked[ent.mesh.id] = true
				s.packNodes = append(s.packNodes, ent.mesh.cachedGAS.nodes...)
				s.packTris = appendMeshTris(s.packTris, ent.mesh)
			}
		}
		if err := upload(q, s.ias.NodesBuf, s.packNodes, len(s.packNodes)*32); err != nil {
			return fmt.Errorf("%w: %w", ErrBuildFailed, err)
		}
		if err := upload(q, s.ias.TrisBuf, s.packTris, len(s.packTris)*16); err != nil {
			return fmt.Errorf("%w: %w", ErrBuildFailed, err)
		}
	}

	if err := upload(q, ias.TopBuf, ias.topNodes, len(ias.topNodes)*32); err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	if err := upload(q, ias.InstBuf, ias.instances, len(ias.instances)*128); err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	return nil
}

// Append a mesh's triangles in GAS leaf order as three padded Vec4 per
// triangle.
func appendMeshTris(dst []types.Vec4, mesh *Mesh) []types.Vec4 {
	for _, triIdx := range mesh.cachedGAS.order {
		tri := mesh.indices[triIdx]
		for _, v := range tri {
			dst = append(dst, mesh.vertices[v].Vec4(0))
		}
	}
	return dst
}

func upload(q *device.Queue, buf *device.Buffer, data interface{}, byteSize int) error {
	if byteSize == 0 {
		return nil
	}
	if err := buf.Grow(byteSize, false, cl.MEM_READ_ONLY, q); err != nil {
		return err
	}
	return buf.WriteData(q, data, 0)
}

func (s *Scene) uploadAll(q *device.Queue) error {
	ias := s.ias
	if err := upload(q, ias.TopBuf, ias.topNodes, len(ias.topNodes)*32); err != nil {
		return err
	}
	if err := upload(q, ias.NodesBuf, s.packNodes, len(s.packNodes)*32); err != nil {
		return err
	}
	if err := upload(q, ias.TrisBuf, s.packTris, len(s.packTris)*16); err != nil {
		return err
	}
	if err := upload(q, ias.InstBuf, ias.instances, len(ias.instances)*128); err != nil {
		return err
	}
	if len(s.packTex) == 0 {
		// Kernels still take a texture argument; keep one texel around.
		s.packTex = append(s.packTex, float32(1))
	}
	return upload(q, ias.TexBuf, s.packTex, len(s.packTex)*4)
}

// Compute the world-space bounds of the whole committed scene. Useful for
// framing demo scans.
func (s *Scene) Bounds() (types.Vec3, types.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()

	min := types.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32}
	max := types.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32}
	if s.ias != nil && len(s.ias.topNodes) > 0 {
		min = types.MinVec3(min, s.ias.topNodes[0].Min)
		max = types.MaxVec3(max, s.ias.topNodes[0].Max)
	}
	return min, max
}
