package graph

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/achilleasa/go-lidar/cloud"
	"github.com/achilleasa/go-lidar/types"
)

// FromMat3x4fRays is the canonical ray source: a caller-supplied array of
// 3x4 affine ray poses. The host copy is uploaded on the run's queue at
// enqueue time.
type FromMat3x4fRays struct {
	baseNode
	rays []types.Mat3x4
}

// Create a ray source from the given poses. The slice is copied.
func NewFromMat3x4fRays(rays []types.Mat3x4) *FromMat3x4fRays {
	n := &FromMat3x4fRays{baseNode: newBaseNode("rays-from-mat3x4f")}
	n.SetRays(rays)
	return n
}

// Replace the ray poses. Blocks while a run is in progress.
func (n *FromMat3x4fRays) SetRays(rays []types.Mat3x4) {
	n.touchParams()
	n.rays = append(n.rays[:0], rays...)
}

// Validate verifies a non-empty ray buffer is present.
func (n *FromMat3x4fRays) Validate() error {
	if len(n.rays) == 0 {
		return fmt.Errorf("%w: no rays set", ErrInvalidArgument)
	}
	return nil
}

func (n *FromMat3x4fRays) Enqueue(rc *RunCtx) error {
	arr, err := n.output(rc, cloud.RayPose, len(n.rays))
	if err != nil {
		return err
	}
	buf, err := arr.Buffer()
	if err != nil {
		return err
	}
	return buf.WriteData(rc.queue, n.rays, 0)
}

// Get the number of rays this node produces.
func (n *FromMat3x4fRays) RayCount() int {
	return len(n.rays)
}

func (n *FromMat3x4fRays) raysOut() *cloud.Array {
	return n.outputs[cloud.RayPose]
}

// TransformRays applies one affine transform to every ray pose produced
// by its input.
type TransformRays struct {
	baseNode
	transform types.Mat3x4
	in        RaysNode
}

func NewTransformRays(transform types.Mat3x4) *TransformRays {
	n := &TransformRays{baseNode: newBaseNode("transform-rays"), transform: transform}
	return n
}

// Set the transform applied to incoming rays.
func (n *TransformRays) SetTransform(transform types.Mat3x4) {
	n.touchParams()
	n.transform = transform
}

// Wire the rays input.
func (n *TransformRays) SetInput(in Node) {
	n.setInput(in)
}

func (n *TransformRays) Validate() error {
	in, err := n.raysInput()
	if err != nil {
		return err
	}
	n.in = in
	return nil
}

func (n *TransformRays) Enqueue(rc *RunCtx) error {
	count := n.in.RayCount()
	out, err := n.output(rc, cloud.RayPose, count)
	if err != nil {
		return err
	}
	outBuf, err := out.Buffer()
	if err != nil {
		return err
	}
	inBuf, err := n.in.raysOut().Buffer()
	if err != nil {
		return err
	}

	k := rc.kern(kernTransformRays)
	if err = k.SetArgs(inBuf, outBuf, int32(count), n.transform); err != nil {
		return err
	}
	return k.Enqueue1D(rc.queue, 0, count, 0)
}

func (n *TransformRays) RayCount() int {
	return n.in.RayCount()
}

func (n *TransformRays) raysOut() *cloud.Array {
	return n.outputs[cloud.RayPose]
}

// SetRange constrains the usable distance interval of the rays flowing
// through it. The raytrace node scans its rays chain for the nearest
// range provider; without one the trace uses its own default.
type SetRange struct {
	baseNode
	min, max float32
	in       RaysNode
}

func NewSetRange(min, max float32) *SetRange {
	return &SetRange{baseNode: newBaseNode("set-range"), min: min, max: max}
}

// Set the range interval.
func (n *SetRange) SetRange(min, max float32) {
	n.touchParams()
	n.min, n.max = min, max
}

// Wire the rays input.
func (n *SetRange) SetInput(in Node) {
	n.setInput(in)
}

func (n *SetRange) Validate() error {
	if math32.IsNaN(n.min) || math32.IsNaN(n.max) || n.max <= 0 || n.min >= n.max {
		return fmt.Errorf("%w: invalid range [%f, %f]", ErrInvalidArgument, n.min, n.max)
	}
	in, err := n.raysInput()
	if err != nil {
		return err
	}
	n.in = in
	return nil
}

// Pass-through: the range rides along the chain metadata.
func (n *SetRange) Enqueue(*RunCtx) error {
	return nil
}

func (n *SetRange) RayCount() int {
	return n.in.RayCount()
}

func (n *SetRange) raysOut() *cloud.Array {
	return n.in.raysOut()
}

func (n *SetRange) rayRange() (min, max float32) {
	return n.min, n.max
}

// SetRingIds attaches laser ring ids to the rays flowing through it.
// Ring i of the sensor maps to ray indices i, i+ringCount, i+2*ringCount
// and so on.
type SetRingIds struct {
	baseNode
	rings []uint16
	in    RaysNode
}

func NewSetRingIds(rings []uint16) *SetRingIds {
	n := &SetRingIds{baseNode: newBaseNode("set-ring-ids")}
	n.SetRings(rings)
	return n
}

// Replace the ring id table.
func (n *SetRingIds) SetRings(rings []uint16) {
	n.touchParams()
	n.rings = append(n.rings[:0], rings...)
}

// Wire the rays input.
func (n *SetRingIds) SetInput(in Node) {
	n.setInput(in)
}

func (n *SetRingIds) Validate() error {
	if len(n.rings) == 0 {
		return fmt.Errorf("%w: no ring ids set", ErrInvalidArgument)
	}
	in, err := n.raysInput()
	if err != nil {
		return err
	}
	n.in = in
	return nil
}

func (n *SetRingIds) Enqueue(rc *RunCtx) error {
	arr, err := n.output(rc, cloud.RingID, len(n.rings))
	if err != nil {
		return err
	}
	buf, err := arr.Buffer()
	if err != nil {
		return err
	}
	return buf.WriteData(rc.queue, n.rings, 0)
}

func (n *SetRingIds) RayCount() int {
	return n.in.RayCount()
}

func (n *SetRingIds) raysOut() *cloud.Array {
	return n.in.raysOut()
}

func (n *SetRingIds) ringIDs(*RunCtx) (*cloud.Array, int, error) {
	return n.outputs[cloud.RingID], len(n.rings), nil
}

// SetTimeOffsets attaches a per-ray capture time offset, in seconds
// relative to the start of the scan.
type SetTimeOffsets struct {
	baseNode
	offsets []float32
	in      RaysNode
}

func NewSetTimeOffsets(offsets []float32) *SetTimeOffsets {
	n := &SetTimeOffsets{baseNode: newBaseNode("set-time-offsets")}
	n.SetOffsets(offsets)
	return n
}

// Replace the offset table.
func (n *SetTimeOffsets) SetOffsets(offsets []float32) {
	n.touchParams()
	n.offsets = append(n.offsets[:0], offsets...)
}

// Wire the rays input.
func (n *SetTimeOffsets) SetInput(in Node) {
	n.setInput(in)
}

func (n *SetTimeOffsets) Validate() error {
	in, err := n.raysInput()
	if err != nil {
		return err
	}
	if len(n.offsets) != in.RayCount() {
		return fmt.Errorf("%w: %d time offsets for %d rays", ErrInvalidArgument, len(n.offsets), in.RayCount())
	}
	n.in = in
	return nil
}

func (n *SetTimeOffsets) Enqueue(rc *RunCtx) error {
	arr, err := n.output(rc, cloud.TimeStamp, len(n.offsets))
	if err != nil {
		return err
	}
	buf, err := arr.Buffer()
	if err != nil {
		return err
	}
	return buf.WriteData(rc.queue, n.offsets, 0)
}

func (n *SetTimeOffsets) RayCount() int {
	return n.in.RayCount()
}

func (n *SetTimeOffsets) raysOut() *cloud.Array {
	return n.in.raysOut()
}

func (n *SetTimeOffsets) timeOffsets(*RunCtx) (*cloud.Array, error) {
	return n.outputs[cloud.TimeStamp], nil
}
