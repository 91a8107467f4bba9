package graph

import (
	"math"
	"testing"
)

func deg(d float64) float32 {
	return float32(d * math.Pi / 180)
}

func TestRadarClusterScenario(t *testing.T) {
	// Four detections: three tightly grouped around 10m / 0deg and one
	// far outlier at 50m.
	distances := []float32{10, 10.05, 50, 10.03}
	azimuths := []float32{deg(0), deg(0.1), deg(0), deg(0.05)}
	elevations := []float32{0, 0, 0, 0}

	centers := clusterRadarPoints(distances, azimuths, elevations, 0.2, deg(0.5))
	if len(centers) != 2 {
		t.Fatalf("expected 2 clusters; got %d (%v)", len(centers), centers)
	}

	// The dense cluster spans azimuth [0, 0.1deg]; its directional
	// center is the point closest to 0.05deg, which is point 3.
	if centers[0] != 3 {
		t.Fatalf("expected dense cluster center to be point 3; got %d", centers[0])
	}
	if centers[1] != 2 {
		t.Fatalf("expected outlier cluster center to be point 2; got %d", centers[1])
	}
}

func TestRadarClusterGreedyChaining(t *testing.T) {
	// Point 3 is outside point 0's box but inside the box once point 1
	// has been absorbed: clusters chain along the distance axis.
	distances := []float32{10, 10.3, 20, 10.6}
	azimuths := []float32{0, 0, 0, 0}
	elevations := []float32{0, 0, 0, 0}

	centers := clusterRadarPoints(distances, azimuths, elevations, 0.4, deg(1))
	// Points 0,1,3 chain into one cluster; 2 stays alone.
	if len(centers) != 2 {
		t.Fatalf("expected 2 clusters; got %d (%v)", len(centers), centers)
	}
}

func TestRadarClusterIdempotent(t *testing.T) {
	distances := []float32{10, 10.05, 50, 10.03, 30, 30.1}
	azimuths := []float32{deg(0), deg(0.1), deg(0), deg(0.05), deg(10), deg(10.2)}
	elevations := []float32{0, deg(1), 0, deg(0.5), 0, 0}
	dSep, azSep := float32(0.2), deg(0.5)

	centers := clusterRadarPoints(distances, azimuths, elevations, dSep, azSep)

	// Re-clustering the centers with the same separations must leave
	// every cluster intact: each center collapses to itself.
	d2 := make([]float32, len(centers))
	az2 := make([]float32, len(centers))
	el2 := make([]float32, len(centers))
	for i, c := range centers {
		d2[i] = distances[c]
		az2[i] = azimuths[c]
		el2[i] = elevations[c]
	}
	again := clusterRadarPoints(d2, az2, el2, dSep, azSep)
	if len(again) != len(centers) {
		t.Fatalf("expected re-clustering to be idempotent: %d -> %d clusters", len(centers), len(again))
	}
	for i, c := range again {
		if int(c) != i {
			t.Fatalf("expected center %d to collapse to itself; got %d", i, c)
		}
	}
}

func TestRadarClusterSinglePoint(t *testing.T) {
	centers := clusterRadarPoints([]float32{5}, []float32{0}, []float32{0}, 1, 1)
	if len(centers) != 1 || centers[0] != 0 {
		t.Fatalf("expected single point to form one cluster; got %v", centers)
	}
}

func TestRadarClusterEmpty(t *testing.T) {
	if centers := clusterRadarPoints(nil, nil, nil, 1, 1); centers != nil {
		t.Fatalf("expected no clusters for empty input; got %v", centers)
	}
}

func TestRadarDirectionalCenterTieBreak(t *testing.T) {
	// Two points equidistant from the angular midpoint: the smaller
	// index wins.
	c := newRadarCluster(0, 10, deg(-1), 0)
	c.addPoint(1, 10, deg(1), 0)
	azimuths := []float32{deg(-1), deg(1)}
	elevations := []float32{0, 0}
	if got := c.findDirectionalCenterIndex(azimuths, elevations); got != 0 {
		t.Fatalf("expected tie to break to index 0; got %d", got)
	}
}
