package scene

import (
	"fmt"

	"github.com/achilleasa/go-lidar/types"
)

// MeshID is a stable handle to a mesh owned by a scene.
type MeshID uint32

// Mesh owns the vertex and index data of one triangle mesh together with
// its cached GAS. Host copies are retained so that acceleration structure
// builds and refits never read back from the device. Many entities may
// share one mesh; the reference count guards its release.
type Mesh struct {
	id MeshID

	vertices []types.Vec3
	indices  []types.Vec3i

	// Invariant: if cachedGAS is set and gasNeedsUpdate is false, the
	// GAS reflects the current vertex and index content.
	cachedGAS      *GAS
	gasNeedsUpdate bool

	// Set when indices or the vertex count changed; forces a rebuild
	// instead of a refit on the next commit.
	topologyChanged bool

	// Offsets into the scene's packed device buffers, assigned during
	// IAS rebuild.
	nodeOffset uint32
	triOffset  uint32

	refs int
}

// Validate mesh geometry.
func validateGeometry(vertices []types.Vec3, indices []types.Vec3i) error {
	if len(vertices) == 0 {
		return fmt.Errorf("%w: empty vertex array", ErrInvalidGeometry)
	}
	if len(indices) == 0 {
		return fmt.Errorf("%w: empty index array", ErrInvalidGeometry)
	}
	for triIdx, tri := range indices {
		for _, v := range tri {
			if v < 0 || int(v) >= len(vertices) {
				return fmt.Errorf("%w: triangle %d references vertex %d of %d", ErrInvalidGeometry, triIdx, v, len(vertices))
			}
		}
	}
	return nil
}

func newMesh(id MeshID, vertices []types.Vec3, indices []types.Vec3i) (*Mesh, error) {
	if err := validateGeometry(vertices, indices); err != nil {
		return nil, err
	}

	m := &Mesh{id: id}
	m.vertices = append([]types.Vec3(nil), vertices...)
	m.indices = append([]types.Vec3i(nil), indices...)
	m.gasNeedsUpdate = true
	m.topologyChanged = true
	return m, nil
}

// Get the mesh id.
func (m *Mesh) ID() MeshID {
	return m.id
}

// Get the triangle count.
func (m *Mesh) TriangleCount() int {
	return len(m.indices)
}

// Replace the vertex array. An update that keeps the vertex count marks
// the GAS for a refit; a changed count forces a rebuild.
func (m *Mesh) updateVertices(vertices []types.Vec3) error {
	if len(vertices) == 0 {
		return fmt.Errorf("%w: empty vertex array", ErrInvalidGeometry)
	}
	if len(vertices) != len(m.vertices) {
		if err := validateGeometry(vertices, m.indices); err != nil {
			return err
		}
		m.topologyChanged = true
	}
	m.vertices = append(m.vertices[:0], vertices...)
	m.gasNeedsUpdate = true
	return nil
}

// Ensure the cached GAS matches the current geometry: rebuild after a
// topology change, refit after a position-only update. Idempotent.
func (m *Mesh) ensureGAS() {
	if m.cachedGAS != nil && !m.gasNeedsUpdate {
		return
	}
	if m.cachedGAS == nil || m.topologyChanged {
		m.cachedGAS = buildGAS(m.vertices, m.indices)
		m.topologyChanged = false
	} else {
		m.cachedGAS.refit(m.vertices, m.indices)
	}
	m.gasNeedsUpdate = false
}
