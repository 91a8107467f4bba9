package graph

import (
	"sync"

	"github.com/achilleasa/go-lidar/device"
)

type kernelType uint8

// The list of kernels that implement the graph nodes. Their source lives
// in the device program built at device init time.
const (
	// Trace one ray per work item against the committed scene.
	kernRaytrace kernelType = iota
	// Gather points by an index list (the filter primitive used by
	// the radar postprocess node).
	kernFilterPoints
	// Pack one field into a strided aggregate at a fixed offset.
	kernFormatField
	// Apply an affine transform to XYZ triples.
	kernTransformPoints
	// Apply an affine transform to ray poses.
	kernTransformRays
	// Add per-ray offsets along the ray direction to XYZ and DISTANCE.
	kernApplyDistanceNoise
	// Inclusive scan over a boolean field.
	kernScanHits
	// Scatter one field to the destinations computed by the scan.
	kernCompactScatter

	numKernels
)

// Map a kernel type to the name of its device program entry point.
func (kt kernelType) String() string {
	switch kt {
	case kernRaytrace:
		return "raytrace"
	case kernFilterPoints:
		return "filterPoints"
	case kernFormatField:
		return "formatField"
	case kernTransformPoints:
		return "transformPoints"
	case kernTransformRays:
		return "transformRays"
	case kernApplyDistanceNoise:
		return "applyDistanceNoise"
	case kernScanHits:
		return "scanHits"
	case kernCompactScatter:
		return "compactScatter"
	}
	panic("graph: unsupported kernel type")
}

// kernelSet caches the loaded kernel handles of one device. Kernel
// handles are process-global like the device program; they are loaded on
// first use and kept for the life of the process; closing the device does
// not release them.
type kernelSet struct {
	kernels [numKernels]*device.Kernel
}

var (
	kernelSetsMu sync.Mutex
	kernelSets   = make(map[*device.Device]*kernelSet)
)

// Get (loading on first use) the kernel set of a device.
func kernelsFor(dev *device.Device) (*kernelSet, error) {
	kernelSetsMu.Lock()
	defer kernelSetsMu.Unlock()

	if ks, exists := kernelSets[dev]; exists {
		return ks, nil
	}

	ks := &kernelSet{}
	var kType kernelType
	for kType = 0; kType < numKernels; kType++ {
		kernel, err := dev.Kernel(kType.String())
		if err != nil {
			ks.release()
			return nil, err
		}
		ks.kernels[kType] = kernel
	}

	kernelSets[dev] = ks
	return ks, nil
}

func (ks *kernelSet) get(kt kernelType) *device.Kernel {
	return ks.kernels[kt]
}

func (ks *kernelSet) release() {
	for _, kernel := range ks.kernels {
		if kernel != nil {
			kernel.Release()
		}
	}
}
