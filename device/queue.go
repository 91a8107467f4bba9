package device

import (
	"github.com/achilleasa/gopencl/v1.2/cl"
)

// A Queue wraps an in-order opencl command queue. It plays the role of a
// stream: commands enqueued on the same queue execute in enqueue order,
// while commands on different queues are unordered unless tied together
// with events.
type Queue struct {
	device *Device
	handle cl.CommandQueue
}

// Get the owning device.
func (q *Queue) Device() *Device {
	return q.device
}

// Get the opencl queue handle.
func (q *Queue) Handle() cl.CommandQueue {
	return q.handle
}

// Submit all enqueued commands to the device without waiting for them.
func (q *Queue) Flush() error {
	if errCode := cl.Flush(q.handle); errCode != cl.SUCCESS {
		return clError(q.device.Name, "flush queue", errCode)
	}
	return nil
}

// Block until every command enqueued so far has completed on-device.
func (q *Queue) Finish() error {
	if errCode := cl.Finish(q.handle); errCode != cl.SUCCESS {
		return clError(q.device.Name, "finish queue", errCode)
	}
	return nil
}

// Release the queue.
func (q *Queue) Release() {
	if q.handle != nil {
		cl.ReleaseCommandQueue(q.handle)
		q.handle = nil
	}
}

// An Event marks a point in a queue's command sequence. It completes once
// every command enqueued before it on its queue has completed.
type Event struct {
	handle cl.Event
	queue  *Queue
}

// Record a marker event on the queue.
func (q *Queue) Marker() (Event, error) {
	var ev cl.Event
	if errCode := cl.EnqueueMarker(q.handle, &ev); errCode != cl.SUCCESS {
		return Event{}, clError(q.device.Name, "enqueue marker", errCode)
	}
	return Event{handle: ev, queue: q}, nil
}

// Make subsequent commands on this queue wait until the event completes.
// Required when reading an array produced on a different queue; within a
// single queue enqueue order already guarantees visibility.
func (q *Queue) WaitFor(ev Event) error {
	if ev.handle == nil {
		return nil
	}
	if errCode := cl.EnqueueWaitForEvents(q.handle, 1, &ev.handle); errCode != cl.SUCCESS {
		return clError(q.device.Name, "enqueue event wait", errCode)
	}
	return nil
}

// Report whether the event was recorded on the given queue.
func (ev Event) On(q *Queue) bool {
	return ev.queue == q
}

// Report whether the event holds a live handle.
func (ev Event) Valid() bool {
	return ev.handle != nil
}

// Block the host until the event completes.
func (ev Event) Wait() error {
	if ev.handle == nil {
		return nil
	}
	if errCode := cl.WaitForEvents(1, &ev.handle); errCode != cl.SUCCESS {
		return clError(ev.queue.device.Name, "wait for event", errCode)
	}
	return nil
}

// Release the event handle.
func (ev *Event) Release() {
	if ev.handle != nil {
		cl.ReleaseEvent(ev.handle)
		ev.handle = nil
	}
}
