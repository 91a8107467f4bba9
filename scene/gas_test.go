package scene

import (
	"testing"

	"github.com/achilleasa/go-lidar/types"
)

func makeGridMesh(t *testing.T, cells int) ([]types.Vec3, []types.Vec3i) {
	t.Helper()
	var vertices []types.Vec3
	var indices []types.Vec3i
	for x := 0; x < cells; x++ {
		for z := 0; z < cells; z++ {
			base := int32(len(vertices))
			fx, fz := float32(x), float32(z)
			vertices = append(vertices,
				types.Vec3{fx, 0, fz},
				types.Vec3{fx + 1, 0, fz},
				types.Vec3{fx + 1, 0, fz + 1},
				types.Vec3{fx, 0, fz + 1},
			)
			indices = append(indices, types.Vec3i{base, base + 1, base + 2}, types.Vec3i{base, base + 2, base + 3})
		}
	}
	return vertices, indices
}

// Every triangle must land in exactly one leaf and every node must bound
// its content.
func TestGASBuildInvariants(t *testing.T) {
	vertices, indices := makeGridMesh(t, 8)
	gas := buildGAS(vertices, indices)

	seen := make(map[uint32]int)
	for _, tri := range gas.order {
		seen[tri]++
	}
	if len(seen) != len(indices) {
		t.Fatalf("expected %d distinct triangles in leaf order; got %d", len(indices), len(seen))
	}
	for tri, count := range seen {
		if count != 1 {
			t.Fatalf("triangle %d appears %d times in leaf order", tri, count)
		}
	}

	for i, node := range gas.nodes {
		if node.leaf() {
			first, count := node.items()
			if count == 0 {
				t.Fatalf("node %d is an empty leaf", i)
			}
			for _, tri := range gas.order[first : first+count] {
				bb := triBounds(vertices, indices[tri])
				for axis := 0; axis < 3; axis++ {
					if bb[0][axis] < node.Min[axis]-1e-5 || bb[1][axis] > node.Max[axis]+1e-5 {
						t.Fatalf("leaf %d does not bound triangle %d on axis %d", i, tri, axis)
					}
				}
			}
			continue
		}
		for _, child := range []int32{node.LData, node.RData} {
			if child <= 0 || int(child) >= len(gas.nodes) {
				t.Fatalf("node %d references invalid child %d", i, child)
			}
			cn := gas.nodes[child]
			for axis := 0; axis < 3; axis++ {
				if cn.Min[axis] < node.Min[axis]-1e-5 || cn.Max[axis] > node.Max[axis]+1e-5 {
					t.Fatalf("node %d does not bound child %d on axis %d", i, child, axis)
				}
			}
		}
	}
}

func TestGASRefitMovesBounds(t *testing.T) {
	vertices, indices := makeGridMesh(t, 4)
	gas := buildGAS(vertices, indices)

	// Raise every vertex; topology is unchanged.
	for i := range vertices {
		vertices[i][1] += 5
	}
	gas.refit(vertices, indices)

	min, max := gas.bbox()
	if !floatNear(min[1], 5) || !floatNear(max[1], 5) {
		t.Fatalf("expected refit bounds y=[5,5]; got [%f,%f]", min[1], max[1])
	}
}

func floatNear(a, b float32) bool {
	d := a - b
	return d > -1e-4 && d < 1e-4
}

// A same-count vertex update must refit the cached GAS in place; a
// changed count must rebuild it.
func TestMeshRefitVsRebuild(t *testing.T) {
	mesh, err := newMesh(1, []types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, []types.Vec3i{{0, 1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	mesh.ensureGAS()
	firstGAS := mesh.cachedGAS

	// Same vertex count: refit, the GAS object survives.
	if err = mesh.updateVertices([]types.Vec3{{0, 0, 1}, {1, 0, 1}, {0, 1, 1}}); err != nil {
		t.Fatal(err)
	}
	if mesh.topologyChanged {
		t.Fatal("expected position-only update to keep topology")
	}
	if !mesh.gasNeedsUpdate {
		t.Fatal("expected position update to mark the GAS dirty")
	}
	mesh.ensureGAS()
	if mesh.cachedGAS != firstGAS {
		t.Fatal("expected a refit to reuse the cached GAS")
	}
	min, max := mesh.cachedGAS.bbox()
	if !floatNear(min[2], 1) || !floatNear(max[2], 1) {
		t.Fatalf("refit did not move bounds: z=[%f,%f]", min[2], max[2])
	}

	// Changed vertex count: rebuild produces a fresh GAS.
	sixVerts := []types.Vec3{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
		{0, 0, 2}, {1, 0, 2}, {0, 1, 2},
	}
	if err = mesh.updateVertices(sixVerts); err != nil {
		t.Fatal(err)
	}
	if !mesh.topologyChanged {
		t.Fatal("expected vertex count change to mark topology changed")
	}
	mesh.ensureGAS()
	if mesh.cachedGAS == firstGAS {
		t.Fatal("expected a rebuild to replace the cached GAS")
	}
}

func TestGeometryValidation(t *testing.T) {
	type spec struct {
		vertices []types.Vec3
		indices  []types.Vec3i
	}
	specs := []spec{
		// Empty vertex array.
		{nil, []types.Vec3i{{0, 1, 2}}},
		// Empty index array.
		{[]types.Vec3{{0, 0, 0}}, nil},
		// Index out of range.
		{[]types.Vec3{{0, 0, 0}, {1, 0, 0}}, []types.Vec3i{{0, 1, 2}}},
	}

	for index, s := range specs {
		if _, err := newMesh(1, s.vertices, s.indices); err == nil {
			t.Fatalf("[spec %d] expected geometry validation to fail", index)
		}
	}
}

func TestTopBVHBuildAndRefit(t *testing.T) {
	boxes := [][2]types.Vec3{
		{{0, 0, 0}, {1, 1, 1}},
		{{10, 0, 0}, {11, 1, 1}},
		{{0, 10, 0}, {1, 11, 1}},
		{{5, 5, 5}, {6, 6, 6}},
	}
	nodes := buildTopBVH(boxes)

	// Every instance appears in exactly one leaf.
	seen := make(map[uint32]bool)
	for _, node := range nodes {
		if node.leaf() {
			first, count := node.items()
			if count != 1 {
				t.Fatalf("expected single-instance leaves; got %d", count)
			}
			if seen[first] {
				t.Fatalf("instance %d appears in two leaves", first)
			}
			seen[first] = true
		}
	}
	if len(seen) != len(boxes) {
		t.Fatalf("expected %d leaves; got %d", len(boxes), len(seen))
	}

	// Move a box and refit through the IAS helper.
	ias := &IAS{topNodes: nodes, boxes: boxes}
	ias.boxes[3] = [2]types.Vec3{{50, 50, 50}, {51, 51, 51}}
	ias.refitTop()
	if ias.topNodes[0].Max[0] < 51 {
		t.Fatalf("expected refit root to cover the moved box; max=%v", ias.topNodes[0].Max)
	}
}

func TestWorldBounds(t *testing.T) {
	tf := types.Mat3x4Translation(types.Vec3{10, 0, 0})
	bb := worldBounds(types.Vec3{-1, -1, -1}, types.Vec3{1, 1, 1}, tf)
	if !floatNear(bb[0][0], 9) || !floatNear(bb[1][0], 11) {
		t.Fatalf("expected x bounds [9,11]; got [%f,%f]", bb[0][0], bb[1][0])
	}
}
