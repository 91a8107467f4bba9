package scene

import (
	"errors"
	"testing"

	"github.com/achilleasa/go-lidar/types"
)

func addTestMesh(t *testing.T, sc *Scene) MeshID {
	t.Helper()
	id, err := sc.AddMesh(
		[]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]types.Vec3i{{0, 1, 2}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestSceneMeshLifecycle(t *testing.T) {
	sc := New(nil)
	mesh := addTestMesh(t, sc)

	ent, err := sc.AddEntity(mesh, types.Mat3x4Ident(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	// The mesh is referenced and cannot be removed.
	if err = sc.RemoveMesh(mesh); !errors.Is(err, ErrMeshInUse) {
		t.Fatalf("expected ErrMeshInUse; got %v", err)
	}

	// Removing the entity releases the reference.
	if err = sc.RemoveEntity(ent); err != nil {
		t.Fatal(err)
	}
	if err = sc.RemoveMesh(mesh); err != nil {
		t.Fatal(err)
	}

	if err = sc.RemoveMesh(mesh); !errors.Is(err, ErrUnknownMesh) {
		t.Fatalf("expected ErrUnknownMesh; got %v", err)
	}
}

func TestSceneUnknownHandles(t *testing.T) {
	sc := New(nil)

	if _, err := sc.AddEntity(42, types.Mat3x4Ident(), 0, 0); !errors.Is(err, ErrUnknownMesh) {
		t.Fatalf("expected ErrUnknownMesh; got %v", err)
	}
	if err := sc.SetTransform(42, types.Mat3x4Ident()); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity; got %v", err)
	}
	if err := sc.SetVisible(42, false); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity; got %v", err)
	}
}

func TestSceneDirtyFlags(t *testing.T) {
	sc := New(nil)
	mesh := addTestMesh(t, sc)
	ent, err := sc.AddEntity(mesh, types.Mat3x4Ident(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !sc.structureDirty {
		t.Fatal("expected entity add to dirty the structure")
	}
	sc.structureDirty = false

	if err = sc.SetTransform(ent, types.Mat3x4Translation(types.Vec3{1, 0, 0})); err != nil {
		t.Fatal(err)
	}
	if sc.structureDirty || !sc.transformsDirty {
		t.Fatal("expected transform change to dirty transforms only")
	}
	sc.transformsDirty = false

	// Same-count vertex update: transforms-dirty (world bounds move).
	if err = sc.UpdateVertices(mesh, []types.Vec3{{0, 0, 1}, {1, 0, 1}, {0, 1, 1}}); err != nil {
		t.Fatal(err)
	}
	if sc.structureDirty || !sc.transformsDirty {
		t.Fatal("expected position update to dirty transforms only")
	}
	sc.transformsDirty = false

	// Count change: structure-dirty (packed extents move).
	if err = sc.UpdateVertices(mesh, []types.Vec3{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 2}, {1, 0, 2}, {0, 1, 2},
	}); err != nil {
		t.Fatal(err)
	}
	if !sc.structureDirty {
		t.Fatal("expected vertex count change to dirty the structure")
	}

	if err = sc.SetVisible(ent, false); err != nil {
		t.Fatal(err)
	}
	if !sc.structureDirty {
		t.Fatal("expected visibility change to dirty the structure")
	}
}

// An empty scene commits host-side without touching the device.
func TestSceneCommitEmpty(t *testing.T) {
	sc := New(nil)
	ias, err := sc.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	if ias.InstanceCount != 0 {
		t.Fatalf("expected 0 instances; got %d", ias.InstanceCount)
	}

	// Idempotent.
	again, err := sc.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	if again != ias {
		t.Fatal("expected a clean commit to return the cached IAS")
	}
}

// A scene whose only entities are invisible also commits host-side.
func TestSceneCommitInvisible(t *testing.T) {
	sc := New(nil)
	mesh := addTestMesh(t, sc)
	ent, err := sc.AddEntity(mesh, types.Mat3x4Ident(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err = sc.SetVisible(ent, false); err != nil {
		t.Fatal(err)
	}

	ias, err := sc.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	if ias.InstanceCount != 0 {
		t.Fatalf("expected invisible entities to be excluded; got %d instances", ias.InstanceCount)
	}
}
