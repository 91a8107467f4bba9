package scene

import "errors"

var (
	// Mesh or build inputs are malformed: empty vertex or index array,
	// index out of range.
	ErrInvalidGeometry = errors.New("scene: invalid geometry")

	// An acceleration structure build was rejected by the device.
	ErrBuildFailed = errors.New("scene: acceleration structure build failed")

	ErrUnknownMesh   = errors.New("scene: unknown mesh id")
	ErrUnknownEntity = errors.New("scene: unknown entity id")
	ErrMeshInUse     = errors.New("scene: mesh is referenced by entities")
)
