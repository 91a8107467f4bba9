package graph

import (
	"fmt"
	"sort"

	"github.com/achilleasa/go-lidar/device"
	"github.com/achilleasa/go-lidar/log"
)

// sceneCommitter is implemented by nodes that need the scene committed
// before the walk starts (the raytrace node).
type sceneCommitter interface {
	commitScene(q *device.Queue) error
}

// Run compiles and executes the graph reachable from target: discover the
// closure, reject cycles, topologically sort (stable, insertion order
// breaks ties), validate every node, commit the scene if a raytrace node
// is present, then walk the order on a dedicated queue. The walk happens
// on a worker goroutine; the returned RunCtx is the handle the caller
// synchronizes on.
//
// No device work is issued before the whole graph validates.
func Run(dev *device.Device, target Node) (*RunCtx, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target node", ErrInvalidArgument)
	}

	order, err := compile(target)
	if err != nil {
		return nil, err
	}

	// Wait for (and supersede) any previous run these nodes took part
	// in; at most one run is active per graph.
	var prev []*RunCtx
	for _, n := range order {
		if p := n.base().run; p != nil {
			<-p.done
			found := false
			for _, have := range prev {
				if have == p {
					found = true
				}
			}
			if !found {
				prev = append(prev, p)
			}
		}
	}

	for _, n := range order {
		n.base().status = StatusIdle
	}
	for _, n := range order {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPipeline, n.Name(), err)
		}
		base := n.base()
		base.status = StatusValidated
		base.paramsDirty = false
		base.structureDirty = false
	}

	kernels, err := kernelsFor(dev)
	if err != nil {
		return nil, err
	}
	queue, err := dev.NewQueue()
	if err != nil {
		return nil, err
	}

	rc := &RunCtx{
		logger:  log.New("graph"),
		dev:     dev,
		queue:   queue,
		kernels: kernels,
		order:   order,
		arrays:  newArrayMgr(),
		done:    make(chan struct{}),
		prev:    prev,
	}

	// Ensure the scene reflects every mutation before any trace
	// launches; commits are idempotent.
	for _, n := range order {
		if sc, ok := n.(sceneCommitter); ok {
			if err = sc.commitScene(queue); err != nil {
				queue.Release()
				return nil, err
			}
		}
	}

	for _, n := range order {
		n.base().run = rc
	}
	go rc.walk()

	return rc, nil
}

// compile discovers the closure of nodes reachable from target through
// input edges and returns them in stable topological order. A cycle is
// reported as InvalidPipeline naming the node that closes it.
func compile(target Node) ([]Node, error) {
	const (
		colorVisiting = 1
		colorDone     = 2
	)
	colors := make(map[*baseNode]int)
	var nodes []Node

	var visit func(n Node) error
	visit = func(n Node) error {
		switch colors[n.base()] {
		case colorDone:
			return nil
		case colorVisiting:
			return fmt.Errorf("%w: cycle detected at %s", ErrInvalidPipeline, n.Name())
		}
		colors[n.base()] = colorVisiting
		for _, in := range n.Inputs() {
			if in == nil {
				continue
			}
			if err := visit(in); err != nil {
				return err
			}
		}
		colors[n.base()] = colorDone
		nodes = append(nodes, n)
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}

	// Post-order DFS already yields a topological order; re-sort into
	// the stable order: every node after its inputs, ties broken by
	// insertion sequence.
	depth := make(map[*baseNode]int, len(nodes))
	var depthOf func(n Node) int
	depthOf = func(n Node) int {
		if d, ok := depth[n.base()]; ok {
			return d
		}
		d := 0
		for _, in := range n.Inputs() {
			if in == nil {
				continue
			}
			if id := depthOf(in) + 1; id > d {
				d = id
			}
		}
		depth[n.base()] = d
		return d
	}
	for _, n := range nodes {
		depthOf(n)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		di, dj := depth[nodes[i].base()], depth[nodes[j].base()]
		if di != dj {
			return di < dj
		}
		return nodes[i].base().seq < nodes[j].base().seq
	})

	return nodes, nil
}
