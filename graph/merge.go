package graph

import (
	"fmt"

	"github.com/achilleasa/go-lidar/cloud"
)

// SpatialMerge concatenates the point clouds of several inputs into one,
// input order first, point order within each input preserved. Only the
// declared field set is merged; every input must advertise all of it.
type SpatialMerge struct {
	baseNode

	fields []cloud.Field
	ins    []PointsNode
	width  int
}

// Create a merge node carrying the given field set.
func NewSpatialMerge(fields []cloud.Field) *SpatialMerge {
	n := &SpatialMerge{baseNode: newBaseNode("spatial-merge")}
	n.fields = append(n.fields, fields...)
	return n
}

// Add a points input. Merge nodes accept any number of inputs.
func (n *SpatialMerge) AddInput(in Node) {
	n.addInput(in)
}

func (n *SpatialMerge) RequiredFields() []cloud.Field {
	return n.fields
}

func (n *SpatialMerge) Validate() error {
	if len(n.fields) == 0 {
		return fmt.Errorf("%w: empty field list", ErrInvalidArgument)
	}
	if len(n.inputs) == 0 {
		return fmt.Errorf("%w: %s has no inputs", ErrInvalidPipeline, n.name)
	}
	n.ins = n.ins[:0]
	for _, raw := range n.inputs {
		in, ok := raw.(PointsNode)
		if !ok {
			return fmt.Errorf("%w: %s requires points-producing inputs, %s does not produce points", ErrInvalidPipeline, n.name, raw.Name())
		}
		if err := checkRequiredFields(n, in); err != nil {
			return err
		}
		n.ins = append(n.ins, in)
	}
	return nil
}

func (n *SpatialMerge) Enqueue(rc *RunCtx) error {
	n.width = 0
	counts := make([]int, len(n.ins))
	for i, in := range n.ins {
		count, err := in.widthEnqueue(rc)
		if err != nil {
			return err
		}
		counts[i] = count
		n.width += count
	}

	for _, f := range n.fields {
		out, err := n.output(rc, f, n.width)
		if err != nil {
			return err
		}
		if n.width == 0 {
			continue
		}
		outBuf, err := out.Buffer()
		if err != nil {
			return err
		}

		offset := 0
		for i, in := range n.ins {
			if counts[i] == 0 {
				continue
			}
			src, err := in.fieldDataEnqueue(rc, f)
			if err != nil {
				return err
			}
			srcBuf, err := src.Buffer()
			if err != nil {
				return err
			}
			byteCount := counts[i] * f.Size()
			if err = srcBuf.CopyTo(rc.queue, outBuf, 0, offset, byteCount); err != nil {
				return err
			}
			offset += byteCount
		}
	}

	return nil
}

// Width reports the merged point count; it synchronizes first.
func (n *SpatialMerge) Width() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return n.width, nil
}

func (n *SpatialMerge) Height() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (n *SpatialMerge) widthEnqueue(*RunCtx) (int, error) {
	return n.width, nil
}

func (n *SpatialMerge) Fields() []cloud.Field {
	return n.fields
}

func (n *SpatialMerge) HasField(f cloud.Field) bool {
	return cloud.ContainsField(n.fields, f)
}

func (n *SpatialMerge) FieldData(f cloud.Field) (*cloud.Array, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.syncRun(); err != nil {
		return nil, err
	}
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not carry field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}

func (n *SpatialMerge) fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error) {
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not carry field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}
