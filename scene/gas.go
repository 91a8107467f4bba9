package scene

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/achilleasa/go-lidar/log"
	"github.com/achilleasa/go-lidar/types"
)

const (
	// Leaves are emitted once a partition holds this many triangles
	// or fewer.
	minLeafTris = 4

	// The builder will not evaluate split candidates along an axis
	// whose bbox side is shorter than this threshold.
	minSideLength float32 = 1e-4

	// Number of SAH split candidates evaluated per axis.
	splitCandidates = 16
)

// A 32-byte flat BVH node. For internal nodes both data words are > 0 and
// point to the child nodes; for leaf nodes LData is <= 0 and holds the
// negated index of the first item while RData holds the item count. The
// root lives at index 0 and is never a child, so the encodings cannot
// collide.
type bvhNode struct {
	Min   types.Vec3
	LData int32
	Max   types.Vec3
	RData int32
}

// Set left and right child node indices.
func (n *bvhNode) setChildNodes(left, right uint32) {
	n.LData = int32(left)
	n.RData = int32(right)
}

// Set first item index and item count.
func (n *bvhNode) setItems(first, count uint32) {
	n.LData = -int32(first)
	n.RData = int32(count)
}

// Report whether the node is a leaf.
func (n *bvhNode) leaf() bool {
	return n.LData <= 0
}

// Get leaf item range.
func (n *bvhNode) items() (first, count uint32) {
	return uint32(-n.LData), uint32(n.RData)
}

// GAS is the geometry acceleration structure of one mesh: a flat BVH over
// its triangles plus the leaf-ordered triangle permutation. Nodes are
// host-resident; the scene packs them into device buffers at commit.
type GAS struct {
	nodes []bvhNode

	// Triangle indices in leaf order; leaves address ranges of this
	// permutation.
	order []uint32
}

type gasBuilder struct {
	logger log.Logger

	vertices []types.Vec3
	indices  []types.Vec3i

	nodes []bvhNode
	order []uint32

	// Per-triangle cached bounds for the current build.
	bounds  [][2]types.Vec3
	centers []types.Vec3

	maxDepth int
}

// Build a GAS over the given triangle soup. The builder scores splits
// with SAH (item count times bbox surface) over a fixed candidate grid on
// each axis and falls back to a leaf when no candidate beats the parent
// score. The node array is exactly sized on return; refits reuse it
// in place.
func buildGAS(vertices []types.Vec3, indices []types.Vec3i) *GAS {
	b := &gasBuilder{
		logger:   log.New("gas"),
		vertices: vertices,
		indices:  indices,
		nodes:    make([]bvhNode, 0, 2*len(indices)/minLeafTris+1),
		order:    make([]uint32, len(indices)),
		bounds:   make([][2]types.Vec3, len(indices)),
		centers:  make([]types.Vec3, len(indices)),
	}

	work := make([]uint32, len(indices))
	for i := range work {
		work[i] = uint32(i)
		b.bounds[i] = triBounds(vertices, indices[i])
		b.centers[i] = b.bounds[i][0].Add(b.bounds[i][1]).Mul(0.5)
	}

	start := time.Now()
	b.partition(work, 0, 0)
	b.logger.Debugf(
		"GAS build time: %d ms, tris: %d, nodes: %d, maxDepth: %d",
		time.Since(start).Nanoseconds()/1e6, len(indices), len(b.nodes), b.maxDepth,
	)

	return &GAS{nodes: b.nodes, order: b.order}
}

func triBounds(vertices []types.Vec3, tri types.Vec3i) [2]types.Vec3 {
	v0, v1, v2 := vertices[tri[0]], vertices[tri[1]], vertices[tri[2]]
	return [2]types.Vec3{
		types.MinVec3(v0, types.MinVec3(v1, v2)),
		types.MaxVec3(v0, types.MaxVec3(v1, v2)),
	}
}

func bboxArea(min, max types.Vec3) float32 {
	side := max.Sub(min)
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}

// Partition the work list and return the created node index. orderOffset
// is the absolute position in the leaf permutation where this partition's
// triangles will land.
func (b *gasBuilder) partition(work []uint32, depth int, orderOffset uint32) uint32 {
	if depth > b.maxDepth {
		b.maxDepth = depth
	}

	node := bvhNode{
		Min: types.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		Max: types.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
	for _, tri := range work {
		node.Min = types.MinVec3(node.Min, b.bounds[tri][0])
		node.Max = types.MaxVec3(node.Max, b.bounds[tri][1])
	}

	if len(work) <= minLeafTris {
		return b.createLeaf(&node, work, orderOffset)
	}

	// Evaluate split candidates on every usable axis; keep the best
	// SAH score that improves on the unsplit node.
	bestScore := float32(len(work)) * bboxArea(node.Min, node.Max)
	bestAxis, bestSplit := -1, float32(0)

	side := node.Max.Sub(node.Min)
	for axis := 0; axis < 3; axis++ {
		if side[axis] < minSideLength {
			continue
		}
		step := side[axis] / float32(splitCandidates+1)
		for c := 1; c <= splitCandidates; c++ {
			splitPoint := node.Min[axis] + float32(c)*step
			score := b.scoreSplit(work, axis, splitPoint)
			if score < bestScore {
				bestScore = score
				bestAxis = axis
				bestSplit = splitPoint
			}
		}
	}

	if bestAxis == -1 {
		return b.createLeaf(&node, work, orderOffset)
	}

	left := make([]uint32, 0, len(work))
	right := make([]uint32, 0, len(work))
	for _, tri := range work {
		if b.centers[tri][bestAxis] < bestSplit {
			left = append(left, tri)
		} else {
			right = append(right, tri)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return b.createLeaf(&node, work, orderOffset)
	}

	nodeIndex := uint32(len(b.nodes))
	b.nodes = append(b.nodes, node)

	leftIndex := b.partition(left, depth+1, orderOffset)
	rightIndex := b.partition(right, depth+1, orderOffset+uint32(len(left)))
	b.nodes[nodeIndex].setChildNodes(leftIndex, rightIndex)

	return nodeIndex
}

// SAH score for splitting the work list at splitPoint along axis.
func (b *gasBuilder) scoreSplit(work []uint32, axis int, splitPoint float32) float32 {
	lmin := types.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32}
	lmax := types.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32}
	rmin, rmax := lmin, lmax
	leftCount, rightCount := 0, 0

	for _, tri := range work {
		if b.centers[tri][axis] < splitPoint {
			leftCount++
			lmin = types.MinVec3(lmin, b.bounds[tri][0])
			lmax = types.MaxVec3(lmax, b.bounds[tri][1])
		} else {
			rightCount++
			rmin = types.MinVec3(rmin, b.bounds[tri][0])
			rmax = types.MaxVec3(rmax, b.bounds[tri][1])
		}
	}

	if leftCount == 0 || rightCount == 0 {
		return math32.MaxFloat32
	}

	return float32(leftCount)*bboxArea(lmin, lmax) + float32(rightCount)*bboxArea(rmin, rmax)
}

// Emit a leaf for the work list and record its triangles in the leaf
// permutation.
func (b *gasBuilder) createLeaf(node *bvhNode, work []uint32, orderOffset uint32) uint32 {
	copy(b.order[orderOffset:], work)
	node.setItems(orderOffset, uint32(len(work)))

	nodeIndex := uint32(len(b.nodes))
	b.nodes = append(b.nodes, *node)
	return nodeIndex
}

// Refit the GAS in place after a position-only vertex update. Leaf bounds
// are recomputed from the current vertices; internal bounds are rebuilt
// bottom-up. Children always carry larger indices than their parent, so a
// reverse index sweep sees both children before each internal node. No
// storage is reallocated.
func (g *GAS) refit(vertices []types.Vec3, indices []types.Vec3i) {
	for i := len(g.nodes) - 1; i >= 0; i-- {
		node := &g.nodes[i]
		if node.leaf() {
			first, count := node.items()
			min := types.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32}
			max := types.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32}
			for _, tri := range g.order[first : first+count] {
				bb := triBounds(vertices, indices[tri])
				min = types.MinVec3(min, bb[0])
				max = types.MaxVec3(max, bb[1])
			}
			node.Min, node.Max = min, max
			continue
		}
		left := &g.nodes[node.LData]
		right := &g.nodes[node.RData]
		node.Min = types.MinVec3(left.Min, right.Min)
		node.Max = types.MaxVec3(left.Max, right.Max)
	}
}

// Get the root bounding box.
func (g *GAS) bbox() (types.Vec3, types.Vec3) {
	return g.nodes[0].Min, g.nodes[0].Max
}
