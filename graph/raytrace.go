package graph

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/achilleasa/go-lidar/cloud"
	"github.com/achilleasa/go-lidar/device"
	"github.com/achilleasa/go-lidar/scene"
)

// The fields every trace produces, in kernel argument order.
var raytraceFields = []cloud.Field{
	cloud.XYZ,
	cloud.IsHit,
	cloud.RayIdx,
	cloud.Distance,
	cloud.Azimuth,
	cloud.Elevation,
	cloud.Intensity,
	cloud.Normal,
	cloud.RingID,
	cloud.TimeStamp,
}

// Raytrace launches the trace kernel against the committed scene. One
// work item per input ray; the output order matches the input ray order
// and RAY_IDX equals the launch index. Rays beyond range are misses;
// misses write IS_HIT=0 and leave the remaining fields undefined but
// valid. A small epsilon offset along the ray direction guards against
// self-intersection.
type Raytrace struct {
	baseNode

	sc *scene.Scene

	// Default range, used when no SetRange node rides the rays chain.
	rangeMin, rangeMax float32

	in    RaysNode
	ias   *scene.IAS
	width int
}

// Create a raytrace node tracing against sc with the given default max
// range.
func NewRaytrace(sc *scene.Scene, maxRange float32) *Raytrace {
	return &Raytrace{
		baseNode: newBaseNode("raytrace"),
		sc:       sc,
		rangeMin: 0,
		rangeMax: maxRange,
	}
}

// Set the default range interval.
func (n *Raytrace) SetRange(min, max float32) {
	n.touchParams()
	n.rangeMin, n.rangeMax = min, max
}

// Wire the rays input.
func (n *Raytrace) SetInput(in Node) {
	n.setInput(in)
}

func (n *Raytrace) Validate() error {
	if n.sc == nil {
		return fmt.Errorf("%w: no scene attached", ErrInvalidPipeline)
	}
	if math32.IsNaN(n.rangeMax) || n.rangeMax <= 0 {
		return fmt.Errorf("%w: invalid range %f", ErrInvalidArgument, n.rangeMax)
	}
	in, err := n.raysInput()
	if err != nil {
		return err
	}
	n.in = in
	return nil
}

// Commit the scene on the run queue before the walk starts. Idempotent.
func (n *Raytrace) commitScene(q *device.Queue) error {
	ias, err := n.sc.Commit(q)
	if err != nil {
		return err
	}
	n.ias = ias
	return nil
}

// Scan the rays chain upstream for the nearest metadata provider of each
// kind: range interval, ring ids, time offsets.
func (n *Raytrace) chainMetadata(rc *RunCtx) (rangeMin, rangeMax float32, rings *cloud.Array, ringCount int, times *cloud.Array, err error) {
	rangeMin, rangeMax = n.rangeMin, n.rangeMax
	haveRange := false

	for cur := Node(n.in); cur != nil; {
		if rp, ok := cur.(rangeProvider); ok && !haveRange {
			rangeMin, rangeMax = rp.rayRange()
			haveRange = true
		}
		if rgp, ok := cur.(ringProvider); ok && rings == nil {
			if rings, ringCount, err = rgp.ringIDs(rc); err != nil {
				return
			}
		}
		if tp, ok := cur.(timeProvider); ok && times == nil {
			if times, err = tp.timeOffsets(rc); err != nil {
				return
			}
		}
		ins := cur.Inputs()
		if len(ins) != 1 {
			break
		}
		cur = ins[0]
	}
	return
}

func (n *Raytrace) Enqueue(rc *RunCtx) error {
	if n.ias == nil {
		if err := n.commitScene(rc.queue); err != nil {
			return err
		}
	}

	count := n.in.RayCount()
	n.width = count

	outBufs := make([]interface{}, len(raytraceFields))
	for i, f := range raytraceFields {
		arr, err := n.output(rc, f, count)
		if err != nil {
			return err
		}
		if outBufs[i], err = arr.Buffer(); err != nil {
			return err
		}
	}

	rangeMin, rangeMax, rings, ringCount, times, err := n.chainMetadata(rc)
	if err != nil {
		return err
	}

	var ringBuf, timeBuf interface{}
	if rings != nil {
		if ringBuf, err = rings.Buffer(); err != nil {
			return err
		}
	}
	if times != nil {
		if timeBuf, err = times.Buffer(); err != nil {
			return err
		}
	}

	raysBuf, err := n.in.raysOut().Buffer()
	if err != nil {
		return err
	}

	args := []interface{}{
		raysBuf,
		int32(count),
		n.ias.TopBuf,
		n.ias.NodesBuf,
		n.ias.TrisBuf,
		n.ias.InstBuf,
		int32(n.ias.InstanceCount),
		n.ias.TexBuf,
		rangeMin,
		rangeMax,
		ringBuf,
		int32(ringCount),
		timeBuf,
	}
	args = append(args, outBufs...)

	k := rc.kern(kernRaytrace)
	if err = k.SetArgs(args...); err != nil {
		return err
	}
	return k.Enqueue1D(rc.queue, 0, count, 0)
}

// Width synchronizes on the run queue, then reports the point count.
func (n *Raytrace) Width() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return n.width, nil
}

// Height reports 1: trace output is a flat cloud.
func (n *Raytrace) Height() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (n *Raytrace) widthEnqueue(*RunCtx) (int, error) {
	return n.width, nil
}

// Get the produced field set.
func (n *Raytrace) Fields() []cloud.Field {
	return raytraceFields
}

func (n *Raytrace) HasField(f cloud.Field) bool {
	return cloud.ContainsField(raytraceFields, f)
}

// FieldData blocks until the run drains, then returns the device array
// holding the requested field.
func (n *Raytrace) FieldData(f cloud.Field) (*cloud.Array, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.syncRun(); err != nil {
		return nil, err
	}
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not produce field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}

func (n *Raytrace) fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error) {
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not produce field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}
