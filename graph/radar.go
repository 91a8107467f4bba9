package graph

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/achilleasa/go-lidar/cloud"
)

// radarCluster tracks one cluster's member indices and its bounding box
// in (distance, azimuth, elevation) space.
type radarCluster struct {
	indices []uint32

	minDistance, maxDistance   float32
	minAzimuth, maxAzimuth     float32
	minElevation, maxElevation float32
}

func newRadarCluster(index uint32, distance, azimuth, elevation float32) radarCluster {
	return radarCluster{
		indices:      []uint32{index},
		minDistance:  distance,
		maxDistance:  distance,
		minAzimuth:   azimuth,
		maxAzimuth:   azimuth,
		minElevation: elevation,
		maxElevation: elevation,
	}
}

func (c *radarCluster) addPoint(index uint32, distance, azimuth, elevation float32) {
	c.indices = append(c.indices, index)
	c.minDistance = math32.Min(c.minDistance, distance)
	c.maxDistance = math32.Max(c.maxDistance, distance)
	c.minAzimuth = math32.Min(c.minAzimuth, azimuth)
	c.maxAzimuth = math32.Max(c.maxAzimuth, azimuth)
	c.minElevation = math32.Min(c.minElevation, elevation)
	c.maxElevation = math32.Max(c.maxElevation, elevation)
}

// A point is a candidate for the cluster when it falls inside the
// cluster's bounding box inflated by the separation thresholds.
func (c *radarCluster) isCandidate(distance, azimuth, distanceSeparation, azimuthSeparation float32) bool {
	return distance >= c.minDistance-distanceSeparation && distance <= c.maxDistance+distanceSeparation &&
		azimuth >= c.minAzimuth-azimuthSeparation && azimuth <= c.maxAzimuth+azimuthSeparation
}

// Two clusters merge when their bounding boxes are within the separation
// thresholds on both the distance and azimuth axes: the lower bounds differ
// by at most the separation, and so do the upper bounds.
func (c *radarCluster) canMergeWith(other *radarCluster, distanceSeparation, azimuthSeparation float32) bool {
	distanceGood := math32.Abs(c.minDistance-other.minDistance) <= distanceSeparation &&
		math32.Abs(c.maxDistance-other.maxDistance) <= distanceSeparation
	azimuthGood := math32.Abs(c.minAzimuth-other.minAzimuth) <= azimuthSeparation &&
		math32.Abs(c.maxAzimuth-other.maxAzimuth) <= azimuthSeparation
	return distanceGood && azimuthGood
}

// Absorb the other cluster: union the bounding boxes and take over its
// member indices.
func (c *radarCluster) takeIndicesFrom(other radarCluster) {
	c.minDistance = math32.Min(c.minDistance, other.minDistance)
	c.maxDistance = math32.Max(c.maxDistance, other.maxDistance)
	c.minAzimuth = math32.Min(c.minAzimuth, other.minAzimuth)
	c.maxAzimuth = math32.Max(c.maxAzimuth, other.maxAzimuth)
	c.minElevation = math32.Min(c.minElevation, other.minElevation)
	c.maxElevation = math32.Max(c.maxElevation, other.maxElevation)
	c.indices = append(c.indices, other.indices...)
}

// The directional center is the member closest, in L1 angular distance,
// to the midpoint of the cluster's angular bounding box. Ties resolve to
// the smallest index, whatever the order of the member list.
func (c *radarCluster) findDirectionalCenterIndex(azimuths, elevations []float32) uint32 {
	meanAzimuth := (c.minAzimuth + c.maxAzimuth) / 2
	meanElevation := (c.minElevation + c.maxElevation) / 2

	minDistance := float32(math32.MaxFloat32)
	minIndex := c.indices[0]
	for _, i := range c.indices {
		distance := math32.Abs(azimuths[i]-meanAzimuth) + math32.Abs(elevations[i]-meanElevation)
		if distance < minDistance || (distance == minDistance && i < minIndex) {
			minDistance = distance
			minIndex = i
		}
	}
	return minIndex
}

// clusterRadarPoints groups points into clusters and reduces each to its
// directional center, returning the surviving indices in cluster
// discovery order. Points are assigned greedily in input order to the
// first candidate cluster; clusters are then merged pairwise until a full
// pass makes no merge.
func clusterRadarPoints(distances, azimuths, elevations []float32, distanceSeparation, azimuthSeparation float32) []uint32 {
	if len(distances) == 0 {
		return nil
	}

	clusters := []radarCluster{newRadarCluster(0, distances[0], azimuths[0], elevations[0])}
	for i := 1; i < len(distances); i++ {
		clustered := false
		for ci := range clusters {
			if clusters[ci].isCandidate(distances[i], azimuths[i], distanceSeparation, azimuthSeparation) {
				clusters[ci].addPoint(uint32(i), distances[i], azimuths[i], elevations[i])
				clustered = true
				break
			}
		}
		if !clustered {
			clusters = append(clusters, newRadarCluster(uint32(i), distances[i], azimuths[i], elevations[i]))
		}
	}

	merged := true
	for merged && len(clusters) > 1 {
		merged = false
	scan:
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if clusters[i].canMergeWith(&clusters[j], distanceSeparation, azimuthSeparation) {
					clusters[i].takeIndicesFrom(clusters[j])
					clusters = append(clusters[:j], clusters[j+1:]...)
					merged = true
					break scan
				}
			}
		}
	}

	out := make([]uint32, len(clusters))
	for i := range clusters {
		out[i] = clusters[i].findDirectionalCenterIndex(azimuths, elevations)
	}
	return out
}

// RadarPostprocess clusters radar detections and reduces each cluster to
// a single directional-center point. Clustering runs host-side on copies
// of the DISTANCE, AZIMUTH and ELEVATION fields; the surviving points are
// then gathered on-device for every input field. Results are recomputed
// every run; nothing is cached across runs.
type RadarPostprocess struct {
	baseNode

	distanceSeparation float32
	azimuthSeparation  float32

	in    PointsNode
	width int

	// Host staging reused across runs.
	distanceHost  *cloud.Array
	azimuthHost   *cloud.Array
	elevationHost *cloud.Array
}

// Create a radar postprocess node with the given cluster separation
// thresholds (meters, radians).
func NewRadarPostprocess(distanceSeparation, azimuthSeparation float32) *RadarPostprocess {
	return &RadarPostprocess{
		baseNode:           newBaseNode("radar-postprocess"),
		distanceSeparation: distanceSeparation,
		azimuthSeparation:  azimuthSeparation,
		distanceHost:       cloud.NewHostArray(cloud.Distance, cloud.MemHostPinned),
		azimuthHost:        cloud.NewHostArray(cloud.Azimuth, cloud.MemHostPinned),
		elevationHost:      cloud.NewHostArray(cloud.Elevation, cloud.MemHostPinned),
	}
}

// Set the separation thresholds.
func (n *RadarPostprocess) SetSeparations(distanceSeparation, azimuthSeparation float32) {
	n.touchParams()
	n.distanceSeparation = distanceSeparation
	n.azimuthSeparation = azimuthSeparation
}

// Wire the points input.
func (n *RadarPostprocess) SetInput(in Node) {
	n.setInput(in)
}

func (n *RadarPostprocess) RequiredFields() []cloud.Field {
	return []cloud.Field{cloud.Distance, cloud.Azimuth, cloud.Elevation}
}

func (n *RadarPostprocess) Validate() error {
	if n.distanceSeparation <= 0 || n.azimuthSeparation <= 0 {
		return fmt.Errorf("%w: separations must be positive", ErrInvalidArgument)
	}
	in, err := n.pointsInput()
	if err != nil {
		return err
	}
	if err = checkRequiredFields(n, in); err != nil {
		return err
	}
	n.in = in
	return nil
}

func (n *RadarPostprocess) Enqueue(rc *RunCtx) error {
	count, err := n.in.widthEnqueue(rc)
	if err != nil {
		return err
	}
	if count == 0 {
		n.width = 0
		return nil
	}

	// Stage the clustering fields to the host. The blocking reads also
	// drain the producers, which is safe on the worker goroutine.
	distances, err := n.stageToHost(rc, cloud.Distance, n.distanceHost)
	if err != nil {
		return err
	}
	azimuths, err := n.stageToHost(rc, cloud.Azimuth, n.azimuthHost)
	if err != nil {
		return err
	}
	elevations, err := n.stageToHost(rc, cloud.Elevation, n.elevationHost)
	if err != nil {
		return err
	}

	centers := clusterRadarPoints(distances, azimuths, elevations, n.distanceSeparation, n.azimuthSeparation)
	n.width = len(centers)

	// Upload the surviving indices and gather every input field.
	idx := cloud.NewDeviceArray(rc.dev, cloud.RayIdx, n.name+"/centers")
	rc.arrays.registerScratch(idx)
	if err = idx.Resize(len(centers), false, false, rc.queue); err != nil {
		return err
	}
	idxBuf, err := idx.Buffer()
	if err != nil {
		return err
	}
	if err = idxBuf.WriteData(rc.queue, centers, 0); err != nil {
		return err
	}

	filter := rc.kern(kernFilterPoints)
	for _, f := range n.in.Fields() {
		src, err := n.in.fieldDataEnqueue(rc, f)
		if err != nil {
			return err
		}
		if !src.Kind().DeviceAccessible() {
			return fmt.Errorf("%w: %s requires its input to be device-accessible, %s is not", ErrInvalidPipeline, n.name, f)
		}
		srcBuf, err := src.Buffer()
		if err != nil {
			return err
		}
		dst, err := n.output(rc, f, n.width)
		if err != nil {
			return err
		}
		dstBuf, err := dst.Buffer()
		if err != nil {
			return err
		}
		if err = filter.SetArgs(srcBuf, dstBuf, idxBuf, int32(n.width), int32(f.Size())); err != nil {
			return err
		}
		if err = filter.Enqueue1D(rc.queue, 0, n.width, 0); err != nil {
			return err
		}
	}

	return nil
}

// Copy one float field of the input into host staging and view it as a
// float32 slice.
func (n *RadarPostprocess) stageToHost(rc *RunCtx, f cloud.Field, host *cloud.Array) ([]float32, error) {
	src, err := n.in.fieldDataEnqueue(rc, f)
	if err != nil {
		return nil, err
	}
	if err = host.CopyFrom(src, rc.queue); err != nil {
		return nil, err
	}
	raw, err := host.ReadPtr()
	if err != nil {
		return nil, err
	}
	out := make([]float32, host.Count())
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// Width reports the cluster count; it synchronizes first.
func (n *RadarPostprocess) Width() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return n.width, nil
}

func (n *RadarPostprocess) Height() (int, error) {
	if err := n.syncRun(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (n *RadarPostprocess) widthEnqueue(*RunCtx) (int, error) {
	return n.width, nil
}

func (n *RadarPostprocess) Fields() []cloud.Field {
	return n.in.Fields()
}

func (n *RadarPostprocess) HasField(f cloud.Field) bool {
	return n.in.HasField(f)
}

func (n *RadarPostprocess) FieldData(f cloud.Field) (*cloud.Array, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.syncRun(); err != nil {
		return nil, err
	}
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not carry field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}

func (n *RadarPostprocess) fieldDataEnqueue(rc *RunCtx, f cloud.Field) (*cloud.Array, error) {
	arr, exists := n.outputs[f]
	if !exists {
		return nil, fmt.Errorf("%w: %s does not carry field %s", ErrInvalidPipeline, n.name, f)
	}
	return arr, nil
}
