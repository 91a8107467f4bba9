// Package graph implements the processing graph runtime: a dynamically
// mutable DAG of typed nodes whose outputs flow through shared device
// arrays. Graphs are compiled lazily and executed asynchronously, one
// command queue per run.
package graph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/achilleasa/go-lidar/cloud"
	"github.com/achilleasa/go-lidar/device"
)

// Status tracks a node's progress through the current run.
type Status uint8

const (
	StatusIdle Status = iota
	StatusValidated
	StatusEnqueued
	StatusCompleted
	// A predecessor failed or the run was cancelled; outputs are
	// invalid for this run.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusValidated:
		return "validated"
	case StatusEnqueued:
		return "enqueued"
	case StatusCompleted:
		return "completed"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Node is the common contract of every graph node. Validate verifies
// inputs exist and advertise the node's required fields; Enqueue submits
// the node's work onto the run's queue and returns immediately.
type Node interface {
	Name() string
	Inputs() []Node
	RequiredFields() []cloud.Field
	Validate() error
	Enqueue(rc *RunCtx) error

	base() *baseNode
}

// RaysNode is implemented by nodes that produce rays as an array of 3x4
// affine transforms.
type RaysNode interface {
	Node
	RayCount() int

	// Get the device ray buffer; valid once the node is enqueued.
	raysOut() *cloud.Array
}

// PointsNode is implemented by nodes that produce a SoA point cloud.
// Width, Height and FieldData synchronize on the run's queue before
// reporting.
type PointsNode interface {
	Node
	Width() (int, error)
	Height() (int, error)
	Fields() []cloud.Field
	HasField(f cloud.Field) bool
	FieldData(f cloud.Field) (*cloud.Array, error)

	// Non-blocking variants used while enqueuing successor nodes on
	// the same queue, where enqueue order already guarantees
	// visibility.
	fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error)
	widthEnqueue(rc *RunCtx) (int, error)
}

// rangeProvider is implemented by rays nodes that constrain ray range.
type rangeProvider interface {
	rayRange() (min, max float32)
}

// ringProvider is implemented by rays nodes that attach laser ring ids.
type ringProvider interface {
	ringIDs(rc *RunCtx) (*cloud.Array, int, error)
}

// timeProvider is implemented by rays nodes that attach per-ray time
// offsets.
type timeProvider interface {
	timeOffsets(rc *RunCtx) (*cloud.Array, error)
}

var nodeSeq atomic.Uint64

// baseNode carries the state shared by every node implementation.
type baseNode struct {
	name string

	// Serializes FieldData calls from concurrent readers.
	mu sync.Mutex

	inputs []Node

	// Insertion sequence; breaks topological-sort ties.
	seq uint64

	status         Status
	paramsDirty    bool
	structureDirty bool

	// The run this node last participated in.
	run *RunCtx

	// Lazily allocated output arrays, one per produced field. A node
	// never writes to another node's outputs.
	outputs map[cloud.Field]*cloud.Array

	// Completion event of the last run; consumed by later runs on
	// other queues.
	lastEvent device.Event
}

func newBaseNode(kind string) baseNode {
	seq := nodeSeq.Add(1)
	return baseNode{
		name:        fmt.Sprintf("%s-%d", kind, seq),
		seq:         seq,
		paramsDirty: true,
		outputs:     make(map[cloud.Field]*cloud.Array),
	}
}

func (b *baseNode) base() *baseNode { return b }

// Get the node name.
func (b *baseNode) Name() string { return b.name }

// Get the node inputs.
func (b *baseNode) Inputs() []Node { return b.inputs }

// Get the node status for the current run.
func (b *baseNode) Status() Status { return b.status }

// Default: no required fields.
func (b *baseNode) RequiredFields() []cloud.Field { return nil }

// Block until any in-progress run that includes this node completes.
// Graph mutation while a run is in progress is forbidden; mutating calls
// funnel through here first.
func (b *baseNode) awaitIdle() {
	if rc := b.run; rc != nil {
		rc.Synchronize()
	}
}

// Wire an input. Blocks while a run is in progress.
func (b *baseNode) addInput(n Node) {
	b.awaitIdle()
	b.inputs = append(b.inputs, n)
	b.structureDirty = true
}

// Replace the single input. Blocks while a run is in progress.
func (b *baseNode) setInput(n Node) {
	b.awaitIdle()
	b.inputs = b.inputs[:0]
	if n != nil {
		b.inputs = append(b.inputs, n)
	}
	b.structureDirty = true
}

// Mark parameters changed. Blocks while a run is in progress.
func (b *baseNode) touchParams() {
	b.awaitIdle()
	b.paramsDirty = true
}

// Get (allocating and sizing as needed) the output array for a field and
// register it with the run so its lifetime extends past node execution.
func (b *baseNode) output(rc *RunCtx, f cloud.Field, count int) (*cloud.Array, error) {
	arr := b.outputs[f]
	if arr == nil {
		arr = cloud.NewDeviceArray(rc.dev, f, fmt.Sprintf("%s/%s", b.name, f))
		b.outputs[f] = arr
	}
	if err := arr.Resize(count, false, false, rc.queue); err != nil {
		return nil, err
	}
	rc.arrays.register(arr)
	return arr, nil
}

// Wait for the node's run to drain and verify the node completed. All
// blocking accessors (Width, Height, FieldData) funnel through here;
// calling them mid-run stalls until the run queue drains past this node.
func (b *baseNode) syncRun() error {
	rc := b.run
	if rc == nil {
		return fmt.Errorf("%w: %s", ErrNotEnqueued, b.name)
	}
	err := rc.Synchronize()
	if b.status == StatusSkipped {
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s was skipped", ErrCancelled, b.name)
	}
	if b.status != StatusCompleted {
		return fmt.Errorf("%w: %s", ErrNotEnqueued, b.name)
	}
	return nil
}

// Fetch the single input as a points node. Shared validation helper.
func (b *baseNode) pointsInput() (PointsNode, error) {
	if len(b.inputs) != 1 {
		return nil, fmt.Errorf("%w: %s expects exactly one input, has %d", ErrInvalidPipeline, b.name, len(b.inputs))
	}
	in, ok := b.inputs[0].(PointsNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires a points-producing input, %s does not produce points", ErrInvalidPipeline, b.name, b.inputs[0].Name())
	}
	return in, nil
}

// Fetch the single input as a rays node. Shared validation helper.
func (b *baseNode) raysInput() (RaysNode, error) {
	if len(b.inputs) != 1 {
		return nil, fmt.Errorf("%w: %s expects exactly one input, has %d", ErrInvalidPipeline, b.name, len(b.inputs))
	}
	in, ok := b.inputs[0].(RaysNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires a rays-producing input, %s does not produce rays", ErrInvalidPipeline, b.name, b.inputs[0].Name())
	}
	return in, nil
}

// Verify the input advertises every required field.
func checkRequiredFields(n Node, in PointsNode) error {
	for _, f := range n.RequiredFields() {
		if !in.HasField(f) {
			return fmt.Errorf("%w: %s requires field %s which %s does not provide", ErrInvalidPipeline, n.Name(), f, in.Name())
		}
	}
	return nil
}
