package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/achilleasa/go-lidar/cloud"
	"github.com/achilleasa/go-lidar/types"
)

func makeHostPoints(t *testing.T, count int) *FromArrayPoints {
	t.Helper()
	xyz := make([]byte, count*cloud.XYZ.Size())
	isHit := make([]byte, count*cloud.IsHit.Size())
	return NewFromArrayPoints(count, map[cloud.Field][]byte{
		cloud.XYZ:   xyz,
		cloud.IsHit: isHit,
	})
}

func TestCompileOrderIsStableTopological(t *testing.T) {
	src1 := makeHostPoints(t, 4)
	src2 := makeHostPoints(t, 2)
	merge := NewSpatialMerge([]cloud.Field{cloud.XYZ})
	merge.AddInput(src1)
	merge.AddInput(src2)
	yield := NewYieldPoints([]cloud.Field{cloud.XYZ})
	yield.SetInput(merge)

	order, err := compile(yield)
	if err != nil {
		t.Fatal(err)
	}

	expected := []Node{src1, src2, merge, yield}
	if len(order) != len(expected) {
		t.Fatalf("expected %d nodes in order; got %d", len(expected), len(order))
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("expected %s at position %d; got %s", expected[i].Name(), i, order[i].Name())
		}
	}
}

func TestCompileDetectsCycle(t *testing.T) {
	a := NewSpatialMerge([]cloud.Field{cloud.XYZ})
	b := NewSpatialMerge([]cloud.Field{cloud.XYZ})
	a.AddInput(b)
	b.AddInput(a)

	_, err := compile(a)
	if err == nil {
		t.Fatal("expected cycle detection to fail the compile")
	}
	if !errors.Is(err, ErrInvalidPipeline) {
		t.Fatalf("expected ErrInvalidPipeline; got %v", err)
	}
	if !strings.Contains(err.Error(), "cycle detected at") {
		t.Fatalf("expected the error to name the cycle node; got %q", err)
	}
}

// Run must reject a cyclic graph before any device work is issued; a nil
// device proves nothing was touched.
func TestRunRejectsCycle(t *testing.T) {
	a := NewSpatialMerge([]cloud.Field{cloud.XYZ})
	b := NewSpatialMerge([]cloud.Field{cloud.XYZ})
	a.AddInput(b)
	b.AddInput(a)

	if _, err := Run(nil, a); !errors.Is(err, ErrInvalidPipeline) {
		t.Fatalf("expected ErrInvalidPipeline; got %v", err)
	}
}

func TestRunRejectsInvalidNodes(t *testing.T) {
	type spec struct {
		build func() Node
	}
	specs := []spec{
		// Yield with no input.
		{func() Node {
			return NewYieldPoints([]cloud.Field{cloud.XYZ})
		}},
		// Yield with an empty field list.
		{func() Node {
			y := NewYieldPoints(nil)
			y.SetInput(makeHostPoints(t, 1))
			return y
		}},
		// Required field not advertised by the input.
		{func() Node {
			y := NewYieldPoints([]cloud.Field{cloud.Intensity})
			y.SetInput(makeHostPoints(t, 1))
			return y
		}},
		// Merge over a field an input lacks.
		{func() Node {
			m := NewSpatialMerge([]cloud.Field{cloud.Distance})
			m.AddInput(makeHostPoints(t, 1))
			return m
		}},
		// Points node wired into a rays consumer.
		{func() Node {
			tr := NewTransformRays(types.Mat3x4Ident())
			tr.SetInput(makeHostPoints(t, 1))
			return tr
		}},
		// Empty ray source.
		{func() Node {
			return NewFromMat3x4fRays(nil)
		}},
	}

	for index, s := range specs {
		if _, err := Run(nil, s.build()); err == nil {
			t.Fatalf("[spec %d] expected Run to reject the graph", index)
		} else if !errors.Is(err, ErrInvalidPipeline) {
			t.Fatalf("[spec %d] expected ErrInvalidPipeline; got %v", index, err)
		}
	}
}

func TestRunRejectsNilTarget(t *testing.T) {
	if _, err := Run(nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument; got %v", err)
	}
}

func TestAccessorsBeforeRun(t *testing.T) {
	src := makeHostPoints(t, 4)
	if _, err := src.Width(); !errors.Is(err, ErrNotEnqueued) {
		t.Fatalf("expected ErrNotEnqueued; got %v", err)
	}
	if _, err := src.FieldData(cloud.XYZ); !errors.Is(err, ErrNotEnqueued) {
		t.Fatalf("expected ErrNotEnqueued; got %v", err)
	}
}

func TestFromArrayPointsValidation(t *testing.T) {
	// A field slice whose size disagrees with the point count.
	n := NewFromArrayPoints(3, map[cloud.Field][]byte{
		cloud.XYZ: make([]byte, 2*cloud.XYZ.Size()),
	})
	if err := n.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument; got %v", err)
	}
}
