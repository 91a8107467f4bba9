package graph

import (
	"fmt"

	"github.com/achilleasa/go-lidar/cloud"
)

// FromArrayPoints injects a caller-supplied SoA point cloud into the
// graph. Host data is copied at parameter time and uploaded on the run's
// queue at enqueue time.
type FromArrayPoints struct {
	baseNode

	count  int
	fields []cloud.Field
	data   map[cloud.Field][]byte
}

// Create a point source from raw per-field byte slices. Every slice must
// hold count elements of its field.
func NewFromArrayPoints(count int, data map[cloud.Field][]byte) *FromArrayPoints {
	n := &FromArrayPoints{
		baseNode: newBaseNode("points-from-array"),
	}
	n.SetData(count, data)
	return n
}

// Replace the injected cloud. Blocks while a run is in progress.
func (n *FromArrayPoints) SetData(count int, data map[cloud.Field][]byte) {
	n.touchParams()
	n.count = count
	n.fields = n.fields[:0]
	n.data = make(map[cloud.Field][]byte, len(data))
	for f, raw := range data {
		n.data[f] = append([]byte(nil), raw...)
	}
	// Deterministic field order regardless of map iteration.
	for f := cloud.Field(0); int(f) < int(cloud.Formatted); f++ {
		if _, exists := n.data[f]; exists {
			n.fields = append(n.fields, f)
		}
	}
}

func (n *FromArrayPoints) Validate() error {
	if n.count <= 0 || len(n.fields) == 0 {
		return fmt.Errorf("%w: empty point cloud", ErrInvalidArgument)
	}
	for _, f := range n.fields {
		if want, have := n.count*f.Size(), len(n.data[f]); want != have {
			return fmt.Errorf("%w: field %s holds %d bytes, want %d", ErrInvalidArgument, f, have, want)
		}
	}
	return nil
}

func (n *FromArrayPoints) Enqueue(rc *RunCtx) error {
	for _, f := range n.fields {
		arr, err := n.output(rc, f, n.count)
		if err != nil {
			return err
		}
		buf, err := arr.Buffer()
		if err != nil {
			return err
		}
		if err = buf.WriteData(rc.queue, n.data[f], 0); err != nil {
			return err
		}
	}
	return nil
}

// Width reports the injected point count; it synchronizes first.
func (n *FromArrayPoints) Width() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return n.count, nil
}

func (n *FromArrayPoints) Height() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (n *FromArrayPoints) widthEnqueue(*RunCtx) (int, error) {
	return n.count, nil
}

func (n *FromArrayPoints) Fields() []cloud.Field {
	return n.fields
}

func (n *FromArrayPoints) HasField(f cloud.Field) bool {
	return cloud.ContainsField(n.fields, f)
}

func (n *FromArrayPoints) FieldData(f cloud.Field) (*cloud.Array, error) {
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

func (n *FromArrayPoints) fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error) {
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not carry field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}
