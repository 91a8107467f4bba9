package device

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

type Buffer struct {
	// Handle to opencl buffer.
	bufHandle cl.Mem

	// Associated Device.
	device *Device

	// A name for identifying the buffer.
	name string

	// Allocated size.
	size int
}

// Get buffer size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Get the buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Report whether the buffer is allocated.
func (b *Buffer) Allocated() bool {
	return b.bufHandle != nil
}

// Allocate a buffer with the given size and flags. If the buffer is
// already allocated it is released first.
func (b *Buffer) Allocate(size int, flags cl.MemFlags) error {
	var errCode cl.ErrorCode

	b.Release()

	if b.device.ctx == nil {
		return ErrNotInitialized
	}

	b.bufHandle = cl.CreateBuffer(
		*b.device.ctx,
		flags,
		cl.MemFlags(size),
		nil,
		(*int32)(&errCode),
	)

	if errCode != cl.SUCCESS {
		return clError(b.device.Name, fmt.Sprintf("allocate buffer %s (%d bytes)", b.name, size), errCode)
	}

	b.size = size

	return nil
}

// Grow the buffer to at least minSize bytes using geometric growth. When
// preserve is set the old content is copied into the new allocation via a
// device-side copy on the supplied queue. A no-op when the current
// allocation is already large enough.
func (b *Buffer) Grow(minSize int, preserve bool, flags cl.MemFlags, q *Queue) error {
	if b.size >= minSize && b.bufHandle != nil {
		return nil
	}

	newSize := b.size
	if newSize == 0 {
		newSize = minSize
	}
	for newSize < minSize {
		newSize *= 2
	}

	if !preserve || b.bufHandle == nil {
		return b.Allocate(newSize, flags)
	}

	old := *b
	b.bufHandle = nil
	if err := b.Allocate(newSize, flags); err != nil {
		*b = old
		return err
	}
	if err := old.CopyTo(q, b, 0, 0, old.size); err != nil {
		old.Release()
		return err
	}
	old.Release()
	return nil
}

// Write data to the device buffer on the given queue. The behavior of this
// method is undefined if a non-slice argument is passed or the argument
// does not use contiguous memory. A byte offset may also be specified to
// adjust the destination of the copied data. The call blocks until the
// copy completes; it is still ordered after everything already enqueued.
func (b *Buffer) WriteData(q *Queue, data interface{}, offset int) error {

	dataPtr, dataLen := getSliceData(data)

	if offset+dataLen > b.size {
		return fmt.Errorf("opencl device (%s): insufficient buffer space (%d) in %s for copying data of length %d at offset %d", b.device.Name, b.size, b.name, dataLen, offset)
	}

	errCode := cl.EnqueueWriteBuffer(
		q.handle,
		b.bufHandle,
		cl.TRUE,
		uint64(offset),
		uint64(dataLen),
		dataPtr,
		0,
		nil,
		nil,
	)

	if errCode != cl.SUCCESS {
		return clError(b.device.Name, fmt.Sprintf("write host data to buffer %s", b.name), errCode)
	}

	return nil
}

// Read data from the device buffer into the supplied host buffer on the
// given queue. The behavior of this method is undefined if a non-slice
// argument is passed or if the argument does not use contiguous memory.
//
// If size is <= 0 then ReadData will read the entire buffer. Both src and
// dst offsets are specified in bytes. The call blocks until the read
// completes.
func (b *Buffer) ReadData(q *Queue, srcOffset, dstOffset, size int, hostBuffer interface{}) error {
	if size <= 0 {
		size = b.size
	}

	dataPtr, _ := getSliceData(hostBuffer)

	errCode := cl.EnqueueReadBuffer(
		q.handle,
		b.bufHandle,
		cl.TRUE,
		uint64(srcOffset),
		uint64(size),
		unsafe.Pointer(uintptr(dataPtr)+uintptr(dstOffset)),
		0,
		nil,
		nil,
	)

	if errCode != cl.SUCCESS {
		return clError(b.device.Name, fmt.Sprintf("read buffer %s to host", b.name), errCode)
	}

	return nil
}

// Enqueue a device-side copy of size bytes into dst. Asynchronous: the
// copy is ordered on the queue but the host does not wait for it.
func (b *Buffer) CopyTo(q *Queue, dst *Buffer, srcOffset, dstOffset, size int) error {
	if size <= 0 {
		size = b.size
	}

	if dstOffset+size > dst.size {
		return fmt.Errorf("opencl device (%s): insufficient buffer space (%d) in %s for device copy of %d bytes at offset %d", b.device.Name, dst.size, dst.name, size, dstOffset)
	}

	errCode := cl.EnqueueCopyBuffer(
		q.handle,
		b.bufHandle,
		dst.bufHandle,
		uint64(srcOffset),
		uint64(dstOffset),
		uint64(size),
		0,
		nil,
		nil,
	)

	if errCode != cl.SUCCESS {
		return clError(b.device.Name, fmt.Sprintf("copy buffer %s to %s", b.name, dst.name), errCode)
	}

	return nil
}

// Zero size bytes of the buffer starting at offset.
func (b *Buffer) Zero(q *Queue, offset, size int) error {
	if size <= 0 {
		size = b.size - offset
	}
	return b.WriteData(q, make([]byte, size), offset)
}

// Release buffer.
func (b *Buffer) Release() {
	if b.bufHandle != nil {
		cl.ReleaseMemObject(b.bufHandle)
		b.bufHandle = nil
		b.size = 0
	}
}

// Get opencl buffer handle.
func (b *Buffer) Handle() cl.Mem {
	return b.bufHandle
}

// Given an interface{} containing a slice return a pointer to its data and its length.
func getSliceData(data interface{}) (unsafe.Pointer, int) {
	reflVal := reflect.ValueOf(data)

	if reflVal.Kind() != reflect.Slice {
		panic("getSliceData: this function only supports slices")
	}

	sliceElemCount := reflVal.Len()
	if sliceElemCount == 0 {
		panic("getSliceData: supplied slice object is empty")
	}

	return unsafe.Pointer(reflVal.Index(0).Addr().Pointer()),
		sliceElemCount * int(reflect.TypeOf(data).Elem().Size())
}
