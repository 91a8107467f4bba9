package cloud

import (
	"errors"
	"fmt"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/achilleasa/go-lidar/device"
)

// MemoryKind labels where an array's backing storage lives.
type MemoryKind uint8

const (
	// Device-only memory; read/write pointers are not host accessible.
	MemDevice MemoryKind = iota
	// Page-locked host memory used for staging device transfers.
	MemHostPinned
	// Ordinary host memory.
	MemHostPageable
)

func (k MemoryKind) String() string {
	switch k {
	case MemDevice:
		return "device"
	case MemHostPinned:
		return "host-pinned"
	case MemHostPageable:
		return "host-pageable"
	}
	return fmt.Sprintf("memory-kind(%d)", uint8(k))
}

// Report whether kernels can consume arrays of this kind directly.
func (k MemoryKind) DeviceAccessible() bool {
	return k == MemDevice
}

var errHostPtrOnDevice = errors.New("cloud: raw pointers are not available for device arrays")
var errDevicePtrOnHost = errors.New("cloud: device buffer is not available for host arrays")

// Array is a typed contiguous buffer labeled with one field and one memory
// domain. All mutating methods are ordered within the queue they are given;
// cross-queue consumers must wait on an event recorded by the producer.
type Array struct {
	field    Field
	elemSize int
	kind     MemoryKind
	count    int

	// Backing storage; exactly one of the two is in use.
	dev  *device.Buffer
	host []byte
}

// Create a device-resident array for the given field.
func NewDeviceArray(d *device.Device, f Field, name string) *Array {
	return &Array{
		field:    f,
		elemSize: f.Size(),
		kind:     MemDevice,
		dev:      d.Buffer(name),
	}
}

// Create a device-resident array with an explicit element size. Used by
// the format node whose output stride is computed at run time.
func NewDeviceArraySized(d *device.Device, f Field, elemSize int, name string) *Array {
	return &Array{
		field:    f,
		elemSize: elemSize,
		kind:     MemDevice,
		dev:      d.Buffer(name),
	}
}

// Create a host-resident array for the given field.
func NewHostArray(f Field, kind MemoryKind) *Array {
	if kind == MemDevice {
		panic("cloud: NewHostArray called with MemDevice")
	}
	return &Array{
		field:    f,
		elemSize: f.Size(),
		kind:     kind,
	}
}

// Get the field label.
func (a *Array) Field() Field {
	return a.field
}

// Get the memory domain.
func (a *Array) Kind() MemoryKind {
	return a.kind
}

// Get element count.
func (a *Array) Count() int {
	return a.count
}

// Get the element size in bytes.
func (a *Array) ElemSize() int {
	return a.elemSize
}

// Get the used size in bytes.
func (a *Array) SizeBytes() int {
	return a.count * a.elemSize
}

// Resize the array to n elements. With preserve the previous content is
// retained; with zero new storage is cleared. Without either the call is
// O(1) amortized: capacity grows geometrically and shrinking only adjusts
// the element count.
func (a *Array) Resize(n int, preserve, zero bool, q *device.Queue) error {
	byteSize := n * a.elemSize

	if a.kind != MemDevice {
		// a.host is kept at full capacity; count tracks the used prefix.
		if len(a.host) < byteSize {
			grown := make([]byte, nextCapacity(len(a.host), byteSize))
			if preserve {
				copy(grown, a.host)
			}
			a.host = grown
		}
		if zero {
			for i := a.count * a.elemSize; i < byteSize; i++ {
				a.host[i] = 0
			}
		}
		a.count = n
		return nil
	}

	if byteSize > 0 {
		// Bytes past the previous element count are new; a reallocation
		// without preserve makes the whole buffer new.
		prevUsed := a.count * a.elemSize
		if !preserve && (!a.dev.Allocated() || a.dev.Size() < byteSize) {
			prevUsed = 0
		}
		if err := a.dev.Grow(byteSize, preserve, cl.MEM_READ_WRITE, q); err != nil {
			return err
		}
		if zero && byteSize > prevUsed {
			if err := a.dev.Zero(q, prevUsed, byteSize-prevUsed); err != nil {
				return err
			}
		}
	}
	a.count = n
	return nil
}

func nextCapacity(current, needed int) int {
	if current == 0 {
		return needed
	}
	for current < needed {
		current *= 2
	}
	return current
}

// Copy the content of src into this array, resizing first. Any domain
// pair is valid: device to device copies stay on-device, host to device
// and device to host stage through the queue, host to host is a memcpy.
func (a *Array) CopyFrom(src *Array, q *device.Queue) error {
	if src.field != a.field && a.field != Formatted && src.field != Formatted {
		return fmt.Errorf("cloud: cannot copy %s array into %s array", src.field, a.field)
	}
	byteSize := src.count * src.elemSize
	if err := a.Resize(src.count, false, false, q); err != nil {
		return err
	}
	if byteSize == 0 {
		return nil
	}

	switch {
	case a.kind == MemDevice && src.kind == MemDevice:
		return src.dev.CopyTo(q, a.dev, 0, 0, byteSize)
	case a.kind == MemDevice:
		return a.dev.WriteData(q, src.host[:byteSize], 0)
	case src.kind == MemDevice:
		return src.dev.ReadData(q, 0, 0, byteSize, a.host[:byteSize])
	default:
		copy(a.host[:byteSize], src.host[:byteSize])
		return nil
	}
}

// Upload raw bytes into the array on the given queue; only valid for
// device arrays. The byte count must be a whole number of elements.
func (a *Array) SetData(data []byte, q *device.Queue) error {
	if a.kind != MemDevice {
		return errors.New("cloud: SetData is only valid for device arrays")
	}
	if len(data)%a.elemSize != 0 {
		return fmt.Errorf("cloud: %d bytes is not a whole number of %s elements", len(data), a.field)
	}
	if err := a.Resize(len(data)/a.elemSize, false, false, q); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return a.dev.WriteData(q, data, 0)
}

// Get a read-only view of the host backing storage. Returns an error for
// device arrays.
func (a *Array) ReadPtr() ([]byte, error) {
	if a.kind == MemDevice {
		return nil, errHostPtrOnDevice
	}
	return a.host[:a.count*a.elemSize], nil
}

// Get a writable view of the host backing storage. Returns an error for
// device arrays.
func (a *Array) WritePtr() ([]byte, error) {
	if a.kind == MemDevice {
		return nil, errHostPtrOnDevice
	}
	return a.host[:a.count*a.elemSize], nil
}

// Get the underlying device buffer. Returns an error for host arrays.
func (a *Array) Buffer() (*device.Buffer, error) {
	if a.kind != MemDevice {
		return nil, errDevicePtrOnHost
	}
	return a.dev, nil
}

// Release device storage. Host storage is left to the garbage collector.
func (a *Array) Release() {
	if a.dev != nil {
		a.dev.Release()
	}
	a.host = nil
	a.count = 0
}
