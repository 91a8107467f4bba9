package graph

import (
	"testing"

	"github.com/achilleasa/go-lidar/cloud"
)

func TestFormatPointSizeAndOffsets(t *testing.T) {
	type spec struct {
		fields    []cloud.Field
		expStride int
		offsets   map[cloud.Field]int
	}
	specs := []spec{
		{
			fields:    []cloud.Field{cloud.XYZ, cloud.Intensity},
			expStride: 16,
			offsets:   map[cloud.Field]int{cloud.XYZ: 0, cloud.Intensity: 12},
		},
		{
			fields:    []cloud.Field{cloud.XYZ, cloud.Padding32, cloud.Distance},
			expStride: 20,
			offsets:   map[cloud.Field]int{cloud.XYZ: 0, cloud.Distance: 16},
		},
		{
			fields:    []cloud.Field{cloud.RingID, cloud.Padding16, cloud.XYZ},
			expStride: 16,
			offsets:   map[cloud.Field]int{cloud.RingID: 0, cloud.XYZ: 4},
		},
	}

	for index, s := range specs {
		n := NewFormat(s.fields)
		if got := n.PointSize(); got != s.expStride {
			t.Fatalf("[spec %d] expected stride %d; got %d", index, s.expStride, got)
		}
		for f, expOffset := range s.offsets {
			if got := n.FieldOffset(f); got != expOffset {
				t.Fatalf("[spec %d] expected offset %d for %s; got %d", index, expOffset, f, got)
			}
		}
	}
}

func TestFormatFieldOffsetMissing(t *testing.T) {
	n := NewFormat([]cloud.Field{cloud.XYZ})
	if got := n.FieldOffset(cloud.Distance); got != -1 {
		t.Fatalf("expected -1 for a missing field; got %d", got)
	}
	// Dummy fields reserve space but are not addressable.
	n = NewFormat([]cloud.Field{cloud.Padding32, cloud.XYZ})
	if got := n.FieldOffset(cloud.Padding32); got != -1 {
		t.Fatalf("expected -1 for a dummy field; got %d", got)
	}
}

func TestFormatRequiredFieldsSkipDummies(t *testing.T) {
	n := NewFormat([]cloud.Field{cloud.XYZ, cloud.Padding32, cloud.Intensity})
	req := n.RequiredFields()
	if len(req) != 2 || req[0] != cloud.XYZ || req[1] != cloud.Intensity {
		t.Fatalf("expected required fields [XYZ INTENSITY]; got %v", req)
	}
}
