package graph

import (
	"sync"
	"sync/atomic"

	"github.com/achilleasa/go-lidar/device"
	"github.com/achilleasa/go-lidar/log"
)

// RunCtx is one execution of a graph. It owns the topological order, one
// command queue for the run, and an array registry pinning every array
// produced during the run until the run ends. At most one run is active
// per graph; submitting a new run waits for the previous one.
type RunCtx struct {
	logger log.Logger

	dev     *device.Device
	queue   *device.Queue
	kernels *kernelSet

	order  []Node
	arrays *arrayMgr

	cancelled atomic.Bool

	// Closed once the host-side walk is done; the queue may still be
	// draining at that point.
	done chan struct{}

	errMu sync.Mutex
	err   error

	finishOnce sync.Once
	finishErr  error

	// Runs superseded by this one; their queues are released once this
	// run has drained (draining implies their device work completed,
	// because the walk waits on their completion events).
	prev []*RunCtx

	completionEvent device.Event

	releaseOnce sync.Once
}

// Get the run's command queue.
func (rc *RunCtx) Queue() *device.Queue {
	return rc.queue
}

// Get the run's device.
func (rc *RunCtx) Device() *device.Device {
	return rc.dev
}

func (rc *RunCtx) kern(kt kernelType) *device.Kernel {
	return rc.kernels.get(kt)
}

func (rc *RunCtx) setErr(err error) {
	rc.errMu.Lock()
	if rc.err == nil {
		rc.err = err
	}
	rc.errMu.Unlock()
}

// Err reports the first error recorded for this run, if any.
func (rc *RunCtx) Err() error {
	rc.errMu.Lock()
	defer rc.errMu.Unlock()
	return rc.err
}

// Cancel signals the run to stop. Cooperative: the walk checks the flag
// between nodes, so in-flight launches complete but their outputs are
// discarded and the remaining nodes are skipped. Cancelling a completed
// run is a no-op.
func (rc *RunCtx) Cancel() {
	rc.cancelled.Store(true)
}

// Synchronize blocks until every node has been walked and the queue has
// drained, then releases the run's array pins. Safe to call from multiple
// goroutines and more than once.
func (rc *RunCtx) Synchronize() error {
	<-rc.done

	rc.finishOnce.Do(func() {
		rc.finishErr = rc.queue.Finish()
		for _, n := range rc.order {
			if n.base().status == StatusEnqueued {
				n.base().status = StatusCompleted
			}
		}
		rc.arrays.releaseAll()
		for _, p := range rc.prev {
			p.release()
		}
	})

	if err := rc.Err(); err != nil {
		return err
	}
	return rc.finishErr
}

// Release the run's queue. Called when a newer run supersedes this one.
func (rc *RunCtx) release() {
	rc.releaseOnce.Do(func() {
		rc.arrays.releaseAll()
		rc.completionEvent.Release()
		rc.queue.Release()
	})
}

func (rc *RunCtx) finished() bool {
	select {
	case <-rc.done:
		return true
	default:
		return false
	}
}

// The host-side walk: enqueue every node in topological order on the
// run's queue, checking the cancellation flag between nodes. Runs on its
// own goroutine; Enqueue never blocks the caller of Run.
func (rc *RunCtx) walk() {
	defer close(rc.done)

	for i, n := range rc.order {
		if rc.cancelled.Load() {
			rc.skipFrom(i)
			rc.setErr(ErrCancelled)
			return
		}

		// Inputs produced on another queue (a prior run) are only
		// safe to read after their completion event.
		base := n.base()
		for _, in := range n.Inputs() {
			if ev := in.base().lastEvent; ev.Valid() && !ev.On(rc.queue) {
				if err := rc.queue.WaitFor(ev); err != nil {
					rc.skipFrom(i)
					rc.setErr(err)
					return
				}
			}
		}
		// The node's own output buffers may also still be in use by
		// a previous run on another queue.
		if ev := base.lastEvent; ev.Valid() && !ev.On(rc.queue) {
			if err := rc.queue.WaitFor(ev); err != nil {
				rc.skipFrom(i)
				rc.setErr(err)
				return
			}
		}

		if err := n.Enqueue(rc); err != nil {
			rc.logger.Errorf("%s: %v", n.Name(), err)
			rc.skipFrom(i)
			rc.setErr(err)
			return
		}
		base.status = StatusEnqueued
	}

	rc.queue.Flush()

	// Record a completion marker so later runs on other queues can
	// order themselves after this run's output writes. The run owns the
	// event; nodes hold non-owning copies.
	if ev, err := rc.queue.Marker(); err == nil {
		rc.completionEvent = ev
		for _, n := range rc.order {
			n.base().lastEvent = ev
		}
	}
}

// Mark order[from:] skipped; their outputs are invalid for this run.
func (rc *RunCtx) skipFrom(from int) {
	for _, n := range rc.order[from:] {
		n.base().status = StatusSkipped
	}
}
