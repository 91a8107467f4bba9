package device

import (
	"errors"
	"fmt"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

var (
	ErrNotInitialized     = errors.New("opencl device: not initialized")
	ErrAlreadyInitialized = errors.New("opencl device: already initialized")
	ErrOutOfMemory        = errors.New("opencl device: out of memory")
)

// Error wraps a failed opencl call with its vendor error code.
type Error struct {
	Device string
	Op     string
	Code   cl.ErrorCode
}

func (e *Error) Error() string {
	return fmt.Sprintf("opencl device (%s): %s failed (error: %s; code %d)", e.Device, e.Op, ErrorName(e.Code), int32(e.Code))
}

// Wrap an opencl error code. Allocation failures additionally unwrap to
// ErrOutOfMemory.
func clError(deviceName, op string, code cl.ErrorCode) error {
	err := &Error{Device: deviceName, Op: op, Code: code}
	switch int32(code) {
	case -4, -5, -6: // MEM_OBJECT_ALLOCATION_FAILURE, OUT_OF_RESOURCES, OUT_OF_HOST_MEMORY
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	return err
}

var errorNames = map[int32]string{
	0:   "SUCCESS",
	-1:  "DEVICE_NOT_FOUND",
	-2:  "DEVICE_NOT_AVAILABLE",
	-3:  "COMPILER_NOT_AVAILABLE",
	-4:  "MEM_OBJECT_ALLOCATION_FAILURE",
	-5:  "OUT_OF_RESOURCES",
	-6:  "OUT_OF_HOST_MEMORY",
	-7:  "PROFILING_INFO_NOT_AVAILABLE",
	-8:  "MEM_COPY_OVERLAP",
	-9:  "IMAGE_FORMAT_MISMATCH",
	-10: "IMAGE_FORMAT_NOT_SUPPORTED",
	-11: "BUILD_PROGRAM_FAILURE",
	-12: "MAP_FAILURE",
	-30: "INVALID_VALUE",
	-31: "INVALID_DEVICE_TYPE",
	-32: "INVALID_PLATFORM",
	-33: "INVALID_DEVICE",
	-34: "INVALID_CONTEXT",
	-35: "INVALID_QUEUE_PROPERTIES",
	-36: "INVALID_COMMAND_QUEUE",
	-37: "INVALID_HOST_PTR",
	-38: "INVALID_MEM_OBJECT",
	-43: "INVALID_BUILD_OPTIONS",
	-44: "INVALID_PROGRAM",
	-45: "INVALID_PROGRAM_EXECUTABLE",
	-46: "INVALID_KERNEL_NAME",
	-48: "INVALID_KERNEL",
	-49: "INVALID_ARG_INDEX",
	-50: "INVALID_ARG_VALUE",
	-51: "INVALID_ARG_SIZE",
	-52: "INVALID_KERNEL_ARGS",
	-53: "INVALID_WORK_DIMENSION",
	-54: "INVALID_WORK_GROUP_SIZE",
	-55: "INVALID_WORK_ITEM_SIZE",
	-57: "INVALID_EVENT_WAIT_LIST",
	-58: "INVALID_EVENT",
	-59: "INVALID_OPERATION",
	-61: "INVALID_BUFFER_SIZE",
	-63: "INVALID_GLOBAL_WORK_SIZE",
}

// Return a textual description of an opencl error code.
func ErrorName(errCode cl.ErrorCode) string {
	if name, exists := errorNames[int32(errCode)]; exists {
		return name
	}
	return fmt.Sprintf("unknown error code %d", int32(errCode))
}
