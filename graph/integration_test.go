package graph

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/achilleasa/go-lidar/cloud"
	"github.com/achilleasa/go-lidar/device"
	"github.com/achilleasa/go-lidar/scene"
	"github.com/achilleasa/go-lidar/types"
)

// Device tests need an opencl platform and the device program sources;
// point LIDAR_KERNEL_DIR at them to enable this file.
func newTestDevice(t *testing.T) *device.Device {
	t.Helper()

	kernelDir := os.Getenv("LIDAR_KERNEL_DIR")
	if kernelDir == "" {
		t.Skip("LIDAR_KERNEL_DIR not set; skipping device test")
	}

	devList, err := device.SelectDevices(device.AllDevices, "")
	if err != nil || len(devList) == 0 {
		t.Skip("no opencl device available; skipping device test")
	}

	dev := devList[0]
	if err = dev.Init(filepath.Join(kernelDir, "lidar.cl")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Close)
	return dev
}

func singleTriangleScene(t *testing.T, dev *device.Device) *scene.Scene {
	t.Helper()
	sc := scene.New(dev)
	mesh, err := sc.AddMesh(
		[]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]types.Vec3i{{0, 1, 2}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = sc.AddEntity(mesh, types.Mat3x4Ident(), 0, 0); err != nil {
		t.Fatal(err)
	}
	return sc
}

// A ray pose looking down -Z from the given origin.
func downRay(origin types.Vec3) types.Mat3x4 {
	return types.Mat3x4FromQuat(types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, math.Pi), origin)
}

func readFloats(t *testing.T, arr *cloud.Array) []float32 {
	t.Helper()
	raw, err := arr.ReadPtr()
	if err != nil {
		t.Fatal(err)
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func readUint32s(t *testing.T, arr *cloud.Array) []uint32 {
	t.Helper()
	raw, err := arr.ReadPtr()
	if err != nil {
		t.Fatal(err)
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out
}

func TestOneRayHit(t *testing.T) {
	dev := newTestDevice(t)
	sc := singleTriangleScene(t, dev)

	rays := NewFromMat3x4fRays([]types.Mat3x4{downRay(types.Vec3{0.25, 0.25, 1})})
	trace := NewRaytrace(sc, 10)
	trace.SetInput(rays)
	yield := NewYieldPoints([]cloud.Field{cloud.XYZ, cloud.IsHit, cloud.Distance, cloud.RayIdx})
	yield.SetInput(trace)

	run, err := Run(dev, yield)
	if err != nil {
		t.Fatal(err)
	}
	if err = run.Synchronize(); err != nil {
		t.Fatal(err)
	}

	width, err := yield.Width()
	if err != nil {
		t.Fatal(err)
	}
	if width != 1 {
		t.Fatalf("expected width 1; got %d", width)
	}

	hitArr, err := yield.FieldData(cloud.IsHit)
	if err != nil {
		t.Fatal(err)
	}
	if hits := readUint32s(t, hitArr); hits[0] == 0 {
		t.Fatal("expected the ray to hit")
	}

	xyzArr, err := yield.FieldData(cloud.XYZ)
	if err != nil {
		t.Fatal(err)
	}
	xyz := readFloats(t, xyzArr)
	if !near(xyz[0], 0.25) || !near(xyz[1], 0.25) || !near(xyz[2], 0) {
		t.Fatalf("expected hit point (0.25, 0.25, 0); got (%f, %f, %f)", xyz[0], xyz[1], xyz[2])
	}

	distArr, err := yield.FieldData(cloud.Distance)
	if err != nil {
		t.Fatal(err)
	}
	if dist := readFloats(t, distArr); !near(dist[0], 1.0) {
		t.Fatalf("expected distance 1.0; got %f", dist[0])
	}

	idxArr, err := yield.FieldData(cloud.RayIdx)
	if err != nil {
		t.Fatal(err)
	}
	if idx := readUint32s(t, idxArr); idx[0] != 0 {
		t.Fatalf("expected ray index 0; got %d", idx[0])
	}
}

func TestMissBeyondRange(t *testing.T) {
	dev := newTestDevice(t)
	sc := singleTriangleScene(t, dev)

	rays := NewFromMat3x4fRays([]types.Mat3x4{downRay(types.Vec3{0.25, 0.25, 100})})
	trace := NewRaytrace(sc, 10)
	trace.SetInput(rays)
	yield := NewYieldPoints([]cloud.Field{cloud.IsHit})
	yield.SetInput(trace)

	run, err := Run(dev, yield)
	if err != nil {
		t.Fatal(err)
	}
	if err = run.Synchronize(); err != nil {
		t.Fatal(err)
	}

	hitArr, err := yield.FieldData(cloud.IsHit)
	if err != nil {
		t.Fatal(err)
	}
	if hits := readUint32s(t, hitArr); hits[0] != 0 {
		t.Fatal("expected a miss beyond range")
	}
}

// Position-only updates must refit the GAS and still trace the moved
// geometry; a vertex count change must rebuild it.
func TestRefitThenRebuildScan(t *testing.T) {
	dev := newTestDevice(t)
	sc := scene.New(dev)
	mesh, err := sc.AddMesh(
		[]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]types.Vec3i{{0, 1, 2}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = sc.AddEntity(mesh, types.Mat3x4Ident(), 0, 0); err != nil {
		t.Fatal(err)
	}

	rays := NewFromMat3x4fRays([]types.Mat3x4{downRay(types.Vec3{0.25, 0.25, 1})})
	trace := NewRaytrace(sc, 10)
	trace.SetInput(rays)
	yield := NewYieldPoints([]cloud.Field{cloud.XYZ, cloud.IsHit})
	yield.SetInput(trace)

	runOnce := func() (hit uint32, z float32) {
		run, err := Run(dev, yield)
		if err != nil {
			t.Fatal(err)
		}
		if err = run.Synchronize(); err != nil {
			t.Fatal(err)
		}
		hitArr, err := yield.FieldData(cloud.IsHit)
		if err != nil {
			t.Fatal(err)
		}
		xyzArr, err := yield.FieldData(cloud.XYZ)
		if err != nil {
			t.Fatal(err)
		}
		return readUint32s(t, hitArr)[0], readFloats(t, xyzArr)[2]
	}

	if hit, z := runOnce(); hit == 0 || !near(z, 0) {
		t.Fatalf("expected initial hit at z=0; hit=%d z=%f", hit, z)
	}

	// Same count, new positions: refit path.
	if err = sc.UpdateVertices(mesh, []types.Vec3{{0, 0, 0.5}, {1, 0, 0.5}, {0, 1, 0.5}}); err != nil {
		t.Fatal(err)
	}
	if hit, z := runOnce(); hit == 0 || !near(z, 0.5) {
		t.Fatalf("expected refit hit at z=0.5; hit=%d z=%f", hit, z)
	}

	// Changed count: rebuild path.
	if err = sc.UpdateVertices(mesh, []types.Vec3{
		{0, 0, 0.25}, {1, 0, 0.25}, {0, 1, 0.25},
		{10, 0, 0}, {11, 0, 0}, {10, 1, 0},
	}); err != nil {
		t.Fatal(err)
	}
	if hit, z := runOnce(); hit == 0 || !near(z, 0.25) {
		t.Fatalf("expected rebuild hit at z=0.25; hit=%d z=%f", hit, z)
	}
}

// Repeated runs with identical inputs yield identical outputs.
func TestDeterministicReruns(t *testing.T) {
	dev := newTestDevice(t)
	sc := singleTriangleScene(t, dev)

	rays := NewFromMat3x4fRays([]types.Mat3x4{downRay(types.Vec3{0.25, 0.25, 1})})
	trace := NewRaytrace(sc, 10)
	trace.SetInput(rays)
	yield := NewYieldPoints([]cloud.Field{cloud.XYZ})
	yield.SetInput(trace)

	var prev []float32
	for iter := 0; iter < 3; iter++ {
		run, err := Run(dev, yield)
		if err != nil {
			t.Fatal(err)
		}
		if err = run.Synchronize(); err != nil {
			t.Fatal(err)
		}
		xyzArr, err := yield.FieldData(cloud.XYZ)
		if err != nil {
			t.Fatal(err)
		}
		xyz := readFloats(t, xyzArr)
		if prev != nil {
			for i := range xyz {
				if xyz[i] != prev[i] {
					t.Fatalf("[iter %d] output differs at %d: %f vs %f", iter, i, xyz[i], prev[i])
				}
			}
		}
		prev = xyz
	}
}

// Two host threads read different fields of the same completed run.
func TestConcurrentYieldReads(t *testing.T) {
	dev := newTestDevice(t)
	sc := singleTriangleScene(t, dev)

	rays := NewFromMat3x4fRays([]types.Mat3x4{downRay(types.Vec3{0.25, 0.25, 1})})
	trace := NewRaytrace(sc, 10)
	trace.SetInput(rays)
	yield := NewYieldPoints([]cloud.Field{cloud.XYZ, cloud.Distance})
	yield.SetInput(trace)

	run, err := Run(dev, yield)
	if err != nil {
		t.Fatal(err)
	}
	if err = run.Synchronize(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := yield.FieldData(cloud.XYZ); err != nil {
			errs <- err
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := yield.FieldData(cloud.Distance); err != nil {
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

// Cancelling before the walk reaches a node leaves it skipped with no
// observable outputs.
func TestCancelSkipsNodes(t *testing.T) {
	dev := newTestDevice(t)
	sc := singleTriangleScene(t, dev)

	rays := NewFromMat3x4fRays([]types.Mat3x4{downRay(types.Vec3{0.25, 0.25, 1})})
	trace := NewRaytrace(sc, 10)
	trace.SetInput(rays)
	yield := NewYieldPoints([]cloud.Field{cloud.XYZ})
	yield.SetInput(trace)

	run, err := Run(dev, yield)
	if err != nil {
		t.Fatal(err)
	}
	run.Cancel()
	err = run.Synchronize()
	if err != nil && !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled or clean completion; got %v", err)
	}
	if err == nil {
		// The walk won the race; nothing to assert.
		return
	}
	if _, err = yield.FieldData(cloud.XYZ); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected reads from a skipped node to fail with ErrCancelled; got %v", err)
	}
}

func near(a, b float32) bool {
	d := a - b
	return d > -1e-3 && d < 1e-3
}
