package scene

import (
	"sort"

	"github.com/chewxy/math32"

	"github.com/achilleasa/go-lidar/device"
	"github.com/achilleasa/go-lidar/types"
)

// InstanceRecord is the per-instance record consumed by the raytrace
// kernel: the analog of a shader binding table entry. 128 bytes.
type InstanceRecord struct {
	// Object-to-world transform and its inverse.
	Transform types.Mat3x4
	Inverse   types.Mat3x4

	// Offsets into the scene's packed GAS node and triangle buffers.
	NodeOffset uint32
	TriOffset  uint32

	// Caller-assigned instance id, reported via hit metadata.
	InstanceID uint32

	// Intensity texture placement; TexOffset is -1 when the instance
	// has no texture.
	TexOffset int32
	TexWidth  uint32
	TexHeight uint32

	_ [2]uint32
}

// IAS is the scene-wide instance acceleration structure: a flat BVH over
// the world bounds of every visible entity plus the packed device buffers
// the raytrace kernel traverses. It is owned by the scene; nodes only
// read it.
type IAS struct {
	// Host copies, retained for refits.
	topNodes  []bvhNode
	instances []InstanceRecord
	boxes     [][2]types.Vec3

	// Device buffers, valid after a successful commit.
	TopBuf   *device.Buffer
	NodesBuf *device.Buffer
	TrisBuf  *device.Buffer
	InstBuf  *device.Buffer
	TexBuf   *device.Buffer

	InstanceCount int
}

// Transform a local bounding box into world space and rebound it.
func worldBounds(min, max types.Vec3, tf types.Mat3x4) [2]types.Vec3 {
	outMin := types.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32}
	outMax := types.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32}
	for corner := 0; corner < 8; corner++ {
		p := types.Vec3{min[0], min[1], min[2]}
		if corner&1 != 0 {
			p[0] = max[0]
		}
		if corner&2 != 0 {
			p[1] = max[1]
		}
		if corner&4 != 0 {
			p[2] = max[2]
		}
		w := tf.ApplyPoint(p)
		outMin = types.MinVec3(outMin, w)
		outMax = types.MaxVec3(outMax, w)
	}
	return [2]types.Vec3{outMin, outMax}
}

// Build the top-level BVH over instance world bounds. Leaves hold exactly
// one instance; interior nodes use a longest-axis median split.
func buildTopBVH(boxes [][2]types.Vec3) []bvhNode {
	nodes := make([]bvhNode, 0, 2*len(boxes))
	items := make([]uint32, len(boxes))
	for i := range items {
		items[i] = uint32(i)
	}
	topPartition(&nodes, boxes, items)
	return nodes
}

func topPartition(nodes *[]bvhNode, boxes [][2]types.Vec3, items []uint32) uint32 {
	node := bvhNode{
		Min: types.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		Max: types.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
	for _, item := range items {
		node.Min = types.MinVec3(node.Min, boxes[item][0])
		node.Max = types.MaxVec3(node.Max, boxes[item][1])
	}

	if len(items) == 1 {
		node.setItems(items[0], 1)
		*nodes = append(*nodes, node)
		return uint32(len(*nodes) - 1)
	}

	// Median split along the longest axis.
	side := node.Max.Sub(node.Min)
	axis := 0
	if side[1] > side[axis] {
		axis = 1
	}
	if side[2] > side[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		ci := boxes[items[i]][0][axis] + boxes[items[i]][1][axis]
		cj := boxes[items[j]][0][axis] + boxes[items[j]][1][axis]
		if ci != cj {
			return ci < cj
		}
		return items[i] < items[j]
	})
	mid := len(items) / 2

	nodeIndex := uint32(len(*nodes))
	*nodes = append(*nodes, node)

	leftIndex := topPartition(nodes, boxes, items[:mid])
	rightIndex := topPartition(nodes, boxes, items[mid:])
	(*nodes)[nodeIndex].setChildNodes(leftIndex, rightIndex)

	return nodeIndex
}

// Refit the top BVH in place from the current instance boxes. Same
// reverse-sweep argument as the GAS refit: children carry larger indices
// than their parent.
func (ias *IAS) refitTop() {
	for i := len(ias.topNodes) - 1; i >= 0; i-- {
		node := &ias.topNodes[i]
		if node.leaf() {
			first, _ := node.items()
			node.Min = ias.boxes[first][0]
			node.Max = ias.boxes[first][1]
			continue
		}
		left := &ias.topNodes[node.LData]
		right := &ias.topNodes[node.RData]
		node.Min = types.MinVec3(left.Min, right.Min)
		node.Max = types.MaxVec3(left.Max, right.Max)
	}
}
