// Package cloud defines the point cloud data model: per-point field tags
// and the typed arrays that carry them across host and device memory.
package cloud

import "fmt"

// Field identifies a per-point attribute. Each tag has a fixed element
// size; generic kernels operate on the runtime (tag, size) descriptor.
type Field uint8

const (
	// Hit position in world coordinates (3 x float32).
	XYZ Field = iota
	// Non-zero when the ray hit geometry (int32).
	IsHit
	// Launch index of the ray that produced the point (uint32).
	RayIdx
	// Distance from ray origin to hit (float32).
	Distance
	// Horizontal angle of the ray, radians (float32).
	Azimuth
	// Vertical angle of the ray, radians (float32).
	Elevation
	// Surface reflectivity sample (float32).
	Intensity
	// Surface normal at hit (3 x float32).
	Normal
	// Laser ring that produced the point (uint16).
	RingID
	// Per-point capture time offset, seconds (float32).
	TimeStamp
	// Dummy fields: reserved space in formatted output, never written.
	Padding8
	Padding16
	Padding32
	// RayPose is the pseudo-field used by ray buffers: one 3x4 affine
	// transform per ray.
	RayPose
	// Formatted is the pseudo-field carried by aggregate output of the
	// format node; its element size is the format stride.
	Formatted

	fieldCount
)

var fieldSizes = [fieldCount]int{
	XYZ:       12,
	IsHit:     4,
	RayIdx:    4,
	Distance:  4,
	Azimuth:   4,
	Elevation: 4,
	Intensity: 4,
	Normal:    12,
	RingID:    2,
	TimeStamp: 4,
	Padding8:  1,
	Padding16: 2,
	Padding32: 4,
	RayPose:   48,
	Formatted: 0,
}

var fieldNames = [fieldCount]string{
	XYZ:       "XYZ",
	IsHit:     "IS_HIT",
	RayIdx:    "RAY_IDX",
	Distance:  "DISTANCE",
	Azimuth:   "AZIMUTH",
	Elevation: "ELEVATION",
	Intensity: "INTENSITY",
	Normal:    "NORMAL",
	RingID:    "RING_ID",
	TimeStamp: "TIME_STAMP",
	Padding8:  "PADDING_8",
	Padding16: "PADDING_16",
	Padding32: "PADDING_32",
	RayPose:   "RAY_POSE",
	Formatted: "FORMATTED",
}

// Get the element size of the field in bytes.
func (f Field) Size() int {
	if f >= fieldCount {
		panic(fmt.Sprintf("cloud: unknown field tag %d", uint8(f)))
	}
	return fieldSizes[f]
}

// Report whether the field only reserves space in formatted output.
func (f Field) IsDummy() bool {
	return f == Padding8 || f == Padding16 || f == Padding32
}

// Implements Stringer.
func (f Field) String() string {
	if f >= fieldCount {
		return fmt.Sprintf("FIELD(%d)", uint8(f))
	}
	return fieldNames[f]
}

// Report whether the list contains the given field.
func ContainsField(list []Field, f Field) bool {
	for _, have := range list {
		if have == f {
			return true
		}
	}
	return false
}
