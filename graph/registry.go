package graph

import (
	"sync"

	"github.com/achilleasa/go-lidar/cloud"
)

// arrayMgr pins every array that participates in a run so that none is
// released before the run completes on-device, even if the producing node
// is reconfigured or dropped while commands are still in flight.
type arrayMgr struct {
	mu     sync.Mutex
	pinned []*cloud.Array

	// Arrays owned by the run itself (scratch space); released when
	// the run completes rather than returned to a node.
	scratch []*cloud.Array
}

func newArrayMgr() *arrayMgr {
	return &arrayMgr{}
}

// Pin a node-owned array for the duration of the run.
func (m *arrayMgr) register(a *cloud.Array) {
	m.mu.Lock()
	m.pinned = append(m.pinned, a)
	m.mu.Unlock()
}

// Pin a run-owned scratch array; its storage is released at run end.
func (m *arrayMgr) registerScratch(a *cloud.Array) {
	m.mu.Lock()
	m.scratch = append(m.scratch, a)
	m.mu.Unlock()
}

// Drop all pins. Called once the run has drained.
func (m *arrayMgr) releaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pinned = nil
	for _, a := range m.scratch {
		a.Release()
	}
	m.scratch = nil
}
