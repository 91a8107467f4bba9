package graph

import (
	"fmt"

	"github.com/achilleasa/go-lidar/cloud"
)

// CompactByField drops the points whose value in a boolean-valued field
// is zero, preserving input order. An inclusive scan over the field
// yields destination indices; every field is then scattered through them.
// The compacted width becomes known once the scan result is read back.
type CompactByField struct {
	baseNode

	filterField cloud.Field
	in          PointsNode
	width       int
}

// Create a compaction node filtering by the given boolean-valued field,
// typically IS_HIT.
func NewCompactByField(filterField cloud.Field) *CompactByField {
	return &CompactByField{
		baseNode:    newBaseNode("compact-by-field"),
		filterField: filterField,
	}
}

// Wire the points input.
func (n *CompactByField) SetInput(in Node) {
	n.setInput(in)
}

func (n *CompactByField) RequiredFields() []cloud.Field {
	return []cloud.Field{n.filterField}
}

func (n *CompactByField) Validate() error {
	if n.filterField.Size() != 4 {
		return fmt.Errorf("%w: cannot compact by %s; a 32-bit boolean-valued field is required", ErrInvalidPipeline, n.filterField)
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

func (n *CompactByField) Enqueue(rc *RunCtx) error {
	count, err := n.in.widthEnqueue(rc)
	if err != nil {
		return err
	}
	if count == 0 {
		n.width = 0
		return nil
	}

	mask, err := n.in.fieldDataEnqueue(rc, n.filterField)
	if err != nil {
		return err
	}
	maskBuf, err := mask.Buffer()
	if err != nil {
		return err
	}

	// Inclusive scan of the mask; element count-1 is the compacted
	// width.
	scan := cloud.NewDeviceArray(rc.dev, cloud.RayIdx, n.name+"/scan")
	rc.arrays.registerScratch(scan)
	if err = scan.Resize(count, false, false, rc.queue); err != nil {
		return err
	}
	scanBuf, err := scan.Buffer()
	if err != nil {
		return err
	}

	k := rc.kern(kernScanHits)
	if err = k.SetArgs(maskBuf, scanBuf, int32(count)); err != nil {
		return err
	}
	// The scan runs as a single work group so it can synchronize
	// internally with barriers.
	if err = k.Enqueue1D(rc.queue, 0, 1, 1); err != nil {
		return err
	}

	// Blocking read of the scan tail: the walk runs on the worker
	// goroutine, so this does not stall the submitting thread.
	tail := make([]uint32, 1)
	if err = scanBuf.ReadData(rc.queue, (count-1)*4, 0, 4, tail); err != nil {
		return err
	}
	n.width = int(tail[0])

	// Scatter every input field through the destination indices.
	scatter := rc.kern(kernCompactScatter)
	for _, f := range n.in.Fields() {
		src, err := n.in.fieldDataEnqueue(rc, f)
		if err != nil {
			return err
		}
		srcBuf, err := src.Buffer()
		if err != nil {
			return err
		}
		dst, err := n.output(rc, f, n.width)
		if err != nil {
			return err
		}
		dstBuf, err := dst.Buffer()
		if err != nil {
			return err
		}
		if n.width == 0 {
			continue
		}
		if err = scatter.SetArgs(srcBuf, dstBuf, maskBuf, scanBuf, int32(count), int32(f.Size())); err != nil {
			return err
		}
		if err = scatter.Enqueue1D(rc.queue, 0, count, 0); err != nil {
			return err
		}
	}

	return nil
}

// Width reports the compacted point count; it synchronizes first.
func (n *CompactByField) Width() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return n.width, nil
}

func (n *CompactByField) Height() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (n *CompactByField) widthEnqueue(*RunCtx) (int, error) {
	return n.width, nil
}

func (n *CompactByField) Fields() []cloud.Field {
	return n.in.Fields()
}

func (n *CompactByField) HasField(f cloud.Field) bool {
	return n.in.HasField(f)
}

func (n *CompactByField) FieldData(f cloud.Field) (*cloud.Array, error) {
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

func (n *CompactByField) fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error) {
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not carry field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}
