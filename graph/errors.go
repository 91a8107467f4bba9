package graph

import "errors"

var (
	// Malformed input from the caller: nil data, wrong size, NaN where
	// disallowed.
	ErrInvalidArgument = errors.New("graph: invalid argument")

	// Graph-level issues: cycle, missing input, required field not
	// advertised, non-device-accessible input to a device-only node.
	ErrInvalidPipeline = errors.New("graph: invalid pipeline")

	// The run was cancelled before the node executed.
	ErrCancelled = errors.New("graph: run cancelled")

	// FieldData/Width were called on a node that has not been part of
	// an enqueued run.
	ErrNotEnqueued = errors.New("graph: node has not been enqueued")
)
