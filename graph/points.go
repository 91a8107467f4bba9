package graph

import (
	"fmt"
	"math/rand"

	"github.com/achilleasa/go-lidar/cloud"
	"github.com/achilleasa/go-lidar/types"
)

// pointsTransform carries the PointsNode surface shared by single-input
// transform nodes: geometry delegates to the input, produced fields
// shadow the input's.
type pointsTransform struct {
	baseNode
	in PointsNode
}

// Wire the points input.
func (p *pointsTransform) SetInput(in Node) {
	p.setInput(in)
}

func (p *pointsTransform) validatePoints(self Node) error {
	in, err := p.pointsInput()
	if err != nil {
		return err
	}
	if err = checkRequiredFields(self, in); err != nil {
		return err
	}
	p.in = in
	return nil
}

func (p *pointsTransform) Width() (int, error) {
	if err := p.syncRun(); err != nil {
		return 0, err
	}
	return p.in.Width()
}

func (p *pointsTransform) Height() (int, error) {
	if err := p.syncRun(); err != nil {
		return 0, err
	}
	return p.in.Height()
}

func (p *pointsTransform) Fields() []cloud.Field {
	return p.in.Fields()
}

func (p *pointsTransform) HasField(f cloud.Field) bool {
	return p.in.HasField(f)
}

// FieldData returns the node's own output when it shadows the field and
// otherwise falls through to the input.
func (p *pointsTransform) FieldData(f cloud.Field) (*cloud.Array, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.syncRun(); err != nil {
		return nil, err
	}
	if arr, exists := p.outputs[f]; exists {
		return arr, nil
	}
	return p.in.FieldData(f)
}

func (p *pointsTransform) fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error) {
	if arr, exists := p.outputs[f]; exists {
		return arr, nil
	}
	return p.in.fieldDataEnqueue(rc, f)
}

func (p *pointsTransform) widthEnqueue(rc *RunCtx) (int, error) {
	return p.in.widthEnqueue(rc)
}

// TransformPoints applies one affine transform to the XYZ field and
// passes every other field through.
type TransformPoints struct {
	pointsTransform
	transform types.Mat3x4
}

func NewTransformPoints(transform types.Mat3x4) *TransformPoints {
	return &TransformPoints{
		pointsTransform: pointsTransform{baseNode: newBaseNode("transform-points")},
		transform:       transform,
	}
}

// Set the transform applied to incoming points.
func (n *TransformPoints) SetTransform(transform types.Mat3x4) {
	n.touchParams()
	n.transform = transform
}

func (n *TransformPoints) RequiredFields() []cloud.Field {
	return []cloud.Field{cloud.XYZ}
}

func (n *TransformPoints) Validate() error {
	return n.validatePoints(n)
}

func (n *TransformPoints) Enqueue(rc *RunCtx) error {
	count, err := n.in.widthEnqueue(rc)
	if err != nil {
		return err
	}
	in, err := n.in.fieldDataEnqueue(rc, cloud.XYZ)
	if err != nil {
		return err
	}
	inBuf, err := in.Buffer()
	if err != nil {
		return err
	}
	out, err := n.output(rc, cloud.XYZ, count)
	if err != nil {
		return err
	}
	outBuf, err := out.Buffer()
	if err != nil {
		return err
	}

	k := rc.kern(kernTransformPoints)
	if err = k.SetArgs(inBuf, outBuf, int32(count), n.transform); err != nil {
		return err
	}
	return k.Enqueue1D(rc.queue, 0, count, 0)
}

// GaussianNoiseDistance perturbs each hit along its ray direction with
// gaussian noise, updating XYZ and DISTANCE consistently. Offsets are
// drawn host-side from a seeded source so that runs are reproducible,
// then applied on-device.
type GaussianNoiseDistance struct {
	pointsTransform
	mean, stdDev float32
	seed         int64
	rng          *rand.Rand
}

func NewGaussianNoiseDistance(mean, stdDev float32, seed int64) *GaussianNoiseDistance {
	return &GaussianNoiseDistance{
		pointsTransform: pointsTransform{baseNode: newBaseNode("gaussian-noise-distance")},
		mean:            mean,
		stdDev:          stdDev,
		seed:            seed,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// Set the noise distribution. Resets the random source.
func (n *GaussianNoiseDistance) SetParams(mean, stdDev float32, seed int64) {
	n.touchParams()
	n.mean, n.stdDev, n.seed = mean, stdDev, seed
	n.rng = rand.New(rand.NewSource(seed))
}

func (n *GaussianNoiseDistance) RequiredFields() []cloud.Field {
	return []cloud.Field{cloud.XYZ, cloud.Distance}
}

func (n *GaussianNoiseDistance) Validate() error {
	if n.stdDev < 0 {
		return fmt.Errorf("%w: negative standard deviation %f", ErrInvalidArgument, n.stdDev)
	}
	return n.validatePoints(n)
}

func (n *GaussianNoiseDistance) Enqueue(rc *RunCtx) error {
	count, err := n.in.widthEnqueue(rc)
	if err != nil {
		return err
	}

	offsets := make([]float32, count)
	for i := range offsets {
		offsets[i] = n.mean + float32(n.rng.NormFloat64())*n.stdDev
	}
	offArr := cloud.NewDeviceArray(rc.dev, cloud.Distance, n.name+"/offsets")
	rc.arrays.registerScratch(offArr)
	if err = offArr.Resize(count, false, false, rc.queue); err != nil {
		return err
	}
	offBuf, err := offArr.Buffer()
	if err != nil {
		return err
	}
	if count > 0 {
		if err = offBuf.WriteData(rc.queue, offsets, 0); err != nil {
			return err
		}
	}

	xyzIn, err := n.in.fieldDataEnqueue(rc, cloud.XYZ)
	if err != nil {
		return err
	}
	distIn, err := n.in.fieldDataEnqueue(rc, cloud.Distance)
	if err != nil {
		return err
	}
	xyzInBuf, err := xyzIn.Buffer()
	if err != nil {
		return err
	}
	distInBuf, err := distIn.Buffer()
	if err != nil {
		return err
	}

	xyzOut, err := n.output(rc, cloud.XYZ, count)
	if err != nil {
		return err
	}
	distOut, err := n.output(rc, cloud.Distance, count)
	if err != nil {
		return err
	}
	xyzOutBuf, err := xyzOut.Buffer()
	if err != nil {
		return err
	}
	distOutBuf, err := distOut.Buffer()
	if err != nil {
		return err
	}

	k := rc.kern(kernApplyDistanceNoise)
	if err = k.SetArgs(xyzInBuf, distInBuf, offBuf, xyzOutBuf, distOutBuf, int32(count)); err != nil {
		return err
	}
	return k.Enqueue1D(rc.queue, 0, count, 0)
}
