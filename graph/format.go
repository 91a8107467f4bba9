package graph

import (
	"fmt"

	"github.com/achilleasa/go-lidar/cloud"
)

// Format packs a subset of fields into one contiguous strided buffer in a
// caller-specified order. Dummy (padding) fields reserve space within the
// stride but are never written. Non-dummy fields are packed one kernel
// launch each; points keep their input order.
type Format struct {
	pointsTransform
	fields []cloud.Field
}

// Create a format node packing the given field ordering.
func NewFormat(fields []cloud.Field) *Format {
	n := &Format{pointsTransform: pointsTransform{baseNode: newBaseNode("format")}}
	n.SetFields(fields)
	return n
}

// Replace the packed field ordering.
func (n *Format) SetFields(fields []cloud.Field) {
	n.touchParams()
	n.fields = append(n.fields[:0], fields...)
}

// Get the size of one packed point in bytes.
func (n *Format) PointSize() int {
	size := 0
	for _, f := range n.fields {
		size += f.Size()
	}
	return size
}

// Get the byte offset of a field within the packed stride. Returns -1
// when the field is not part of the format.
func (n *Format) FieldOffset(f cloud.Field) int {
	offset := 0
	for _, have := range n.fields {
		if have == f && !have.IsDummy() {
			return offset
		}
		offset += have.Size()
	}
	return -1
}

func (n *Format) RequiredFields() []cloud.Field {
	out := make([]cloud.Field, 0, len(n.fields))
	for _, f := range n.fields {
		if !f.IsDummy() {
			out = append(out, f)
		}
	}
	return out
}

func (n *Format) Validate() error {
	if len(n.fields) == 0 {
		return fmt.Errorf("%w: empty field list", ErrInvalidArgument)
	}
	return n.validatePoints(n)
}

func (n *Format) Enqueue(rc *RunCtx) error {
	count, err := n.in.widthEnqueue(rc)
	if err != nil {
		return err
	}

	stride := n.PointSize()
	out := n.outputs[cloud.Formatted]
	if out == nil {
		out = cloud.NewDeviceArraySized(rc.dev, cloud.Formatted, stride, n.name+"/out")
		n.outputs[cloud.Formatted] = out
	}
	if err = out.Resize(count, false, false, rc.queue); err != nil {
		return err
	}
	rc.arrays.register(out)
	if count == 0 {
		return nil
	}
	outBuf, err := out.Buffer()
	if err != nil {
		return err
	}

	k := rc.kern(kernFormatField)
	offset := 0
	for _, f := range n.fields {
		if f.IsDummy() {
			offset += f.Size()
			continue
		}
		src, err := n.in.fieldDataEnqueue(rc, f)
		if err != nil {
			return err
		}
		srcBuf, err := src.Buffer()
		if err != nil {
			return err
		}
		if err = k.SetArgs(srcBuf, outBuf, int32(count), int32(f.Size()), int32(stride), int32(offset)); err != nil {
			return err
		}
		if err = k.Enqueue1D(rc.queue, 0, count, 0); err != nil {
			return err
		}
		offset += f.Size()
	}

	return nil
}

// FormattedData returns the packed aggregate buffer; it synchronizes
// first.
func (n *Format) FormattedData() (*cloud.Array, error) {
	return n.FieldData(cloud.Formatted)
}
