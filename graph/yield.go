package graph

import (
	"fmt"

	"github.com/achilleasa/go-lidar/cloud"
)

// YieldPoints is the terminal node a client reads results from. At
// enqueue time it stages the requested fields into host arrays; after the
// run drains the client reads them without touching the device.
type YieldPoints struct {
	baseNode

	fields []cloud.Field
	in     PointsNode
	width  int

	hostOutputs map[cloud.Field]*cloud.Array
}

// Create a yield node exposing the given field subset.
func NewYieldPoints(fields []cloud.Field) *YieldPoints {
	n := &YieldPoints{
		baseNode:    newBaseNode("yield-points"),
		hostOutputs: make(map[cloud.Field]*cloud.Array),
	}
	n.SetFields(fields)
	return n
}

// Replace the yielded field subset.
func (n *YieldPoints) SetFields(fields []cloud.Field) {
	n.touchParams()
	n.fields = append(n.fields[:0], fields...)
}

// Wire the points input.
func (n *YieldPoints) SetInput(in Node) {
	n.setInput(in)
}

func (n *YieldPoints) RequiredFields() []cloud.Field {
	return n.fields
}

func (n *YieldPoints) Validate() error {
	if len(n.fields) == 0 {
		return fmt.Errorf("%w: empty field list", ErrInvalidArgument)
	}
	in, err := n.pointsInput()
	if err != nil {
		return err
	}
	if err = checkRequiredFields(n, in); err != nil {
		return err
	}
	n.in = in
	return nil
}

func (n *YieldPoints) Enqueue(rc *RunCtx) error {
	count, err := n.in.widthEnqueue(rc)
	if err != nil {
		return err
	}
	n.width = count

	for _, f := range n.fields {
		src, err := n.in.fieldDataEnqueue(rc, f)
		if err != nil {
			return err
		}
		dst := n.hostOutputs[f]
		if dst == nil {
			dst = cloud.NewHostArray(f, cloud.MemHostPinned)
			n.hostOutputs[f] = dst
		}
		if err = dst.CopyFrom(src, rc.queue); err != nil {
			return err
		}
	}
	return nil
}

// Width reports the yielded point count; it synchronizes first.
func (n *YieldPoints) Width() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return n.width, nil
}

func (n *YieldPoints) Height() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (n *YieldPoints) widthEnqueue(*RunCtx) (int, error) {
	return n.width, nil
}

func (n *YieldPoints) Fields() []cloud.Field {
	return n.fields
}

func (n *YieldPoints) HasField(f cloud.Field) bool {
	return cloud.ContainsField(n.fields, f)
}

// FieldData returns the host-resident copy of a yielded field. Blocks
// until the run drains; safe for concurrent readers.
func (n *YieldPoints) FieldData(f cloud.Field) (*cloud.Array, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.syncRun(); err != nil {
		return nil, err
	}
	arr, exists := n.hostOutputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not yield field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}

func (n *YieldPoints) fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error) {
	return n.in.fieldDataEnqueue(rc, f)
}
