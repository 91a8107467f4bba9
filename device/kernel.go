package device

import (
	"fmt"
	"reflect"
	"time"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/achilleasa/go-lidar/types"
)

// A wrapper around opencl kernel handles.
type Kernel struct {
	device       *Device
	kernelHandle cl.Kernel
	name         string

	// kernel workgroup sizes and offsets
	offsets         [2]uint64
	globalWorkSizes [2]uint64
	localWorkSizes  [2]uint64
}

// Get the kernel name.
func (k *Kernel) Name() string {
	return k.name
}

// Free any allocated resources used by this kernel.
func (k *Kernel) Release() {
	if k.kernelHandle != nil {
		cl.ReleaseKernel(k.kernelHandle)
		k.kernelHandle = nil
	}
}

// Bind arguments to kernel.
func (k *Kernel) SetArgs(args ...interface{}) error {
	var errCode cl.ErrorCode
	for argIndex, arg := range args {
		// We can't use the captured type from the switch like
		// switch t := arg.(type) as we get back an interface and we
		// need a pointer to the underlying data.
		switch arg.(type) {
		case nil:
			var nilHandle cl.Mem
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 8, unsafe.Pointer(&nilHandle))
		case *Buffer:
			bufHandle := arg.(*Buffer).Handle()
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 8, unsafe.Pointer(&bufHandle))
		case int32:
			v := arg.(int32)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case uint32:
			v := arg.(uint32)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case float32:
			v := arg.(float32)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case types.Vec3:
			v := arg.(types.Vec3)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 12, unsafe.Pointer(&v[0]))
		case types.Vec4:
			v := arg.(types.Vec4)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 16, unsafe.Pointer(&v[0]))
		case types.Mat3x4:
			v := arg.(types.Mat3x4)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 48, unsafe.Pointer(&v[0]))
		default:
			return fmt.Errorf(
				"opencl device (%s): could not set arg %d for kernel %s; unsupported arg type: %s",
				k.device.Name,
				argIndex,
				k.name,
				reflect.TypeOf(arg).Name(),
			)
		}

		if errCode != cl.SUCCESS {
			return clError(k.device.Name, fmt.Sprintf("set arg %d for kernel %s", argIndex, k.name), errCode)
		}
	}

	return nil
}

// Enqueue a 1D kernel execution on the queue without waiting for it. If
// localWorkSize is 0 the opencl implementation picks the optimal worksize
// split for the underlying hardware.
func (k *Kernel) Enqueue1D(q *Queue, offset, globalWorkSize, localWorkSize int) error {
	var offsetPtr *uint64 = nil
	var localSizePtr *uint64 = nil

	if offset > 0 {
		k.offsets[0] = uint64(offset)
		offsetPtr = (*uint64)(unsafe.Pointer(&k.offsets[0]))
	}
	k.globalWorkSizes[0] = uint64(globalWorkSize)
	if localWorkSize != 0 {
		k.localWorkSizes[0] = uint64(localWorkSize)
		localSizePtr = (*uint64)(unsafe.Pointer(&k.localWorkSizes[0]))
	}

	errCode := cl.EnqueueNDRangeKernel(
		q.handle,
		k.kernelHandle,
		1,
		offsetPtr,
		(*uint64)(unsafe.Pointer(&k.globalWorkSizes[0])),
		localSizePtr,
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return clError(k.device.Name, fmt.Sprintf("enqueue kernel %s", k.name), errCode)
	}

	return nil
}

// Execute a 1D kernel and block until it completes. Returns the wall
// clock execution time.
func (k *Kernel) Exec1D(q *Queue, offset, globalWorkSize, localWorkSize int) (time.Duration, error) {
	tick := time.Now()

	err := k.Enqueue1D(q, offset, globalWorkSize, localWorkSize)
	if err != nil {
		return 0, err
	}

	if err = q.Finish(); err != nil {
		return 0, fmt.Errorf("kernel %s did not complete successfully: %w", k.name, err)
	}

	return time.Since(tick), nil
}
