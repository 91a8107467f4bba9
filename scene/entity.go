package scene

import (
	"github.com/achilleasa/go-lidar/types"
)

// EntityID is a stable handle to an entity owned by a scene.
type EntityID uint32

// TextureID is a stable handle to an intensity texture owned by a scene.
type TextureID uint32

// Entity instances a mesh into the scene with a world transform. Entities
// never own their mesh; many entities may share one.
type Entity struct {
	id         EntityID
	mesh       *Mesh
	transform  types.Mat3x4
	texture    *Texture
	visible    bool
	instanceID uint32

	// Monotonic insertion sequence; instance packing order.
	seq uint64
}

// Get the entity id.
func (e *Entity) ID() EntityID {
	return e.id
}

// Get the world transform.
func (e *Entity) Transform() types.Mat3x4 {
	return e.transform
}

// Report whether the entity participates in tracing.
func (e *Entity) Visible() bool {
	return e.visible
}

// Texture holds a per-instance intensity raster. It is sampled by the
// raytrace kernel to produce the INTENSITY field; entities without a
// texture report intensity 1.0.
type Texture struct {
	id     TextureID
	width  int
	height int
	texels []float32

	// Float offset into the scene's packed texture buffer, assigned
	// during IAS rebuild.
	texOffset int32

	refs int
}

// Get the texture id.
func (t *Texture) ID() TextureID {
	return t.id
}

// Get texture dimensions.
func (t *Texture) Dims() (w, h int) {
	return t.width, t.height
}
