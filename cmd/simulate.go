package cmd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/achilleasa/go-lidar/cloud"
	"github.com/achilleasa/go-lidar/config"
	"github.com/achilleasa/go-lidar/device"
	"github.com/achilleasa/go-lidar/graph"
	"github.com/achilleasa/go-lidar/scene"
	"github.com/achilleasa/go-lidar/types"
)

const deviceProgramFile = "lidar.cl"

// Find and initialize a device matching the configured selection.
func findDevice(cfg *config.Config) (*device.Device, error) {
	typeMask := device.AllDevices
	switch cfg.Device.Type {
	case "cpu":
		typeMask = device.CpuDevice
	case "gpu":
		typeMask = device.GpuDevice
	}

	devList, err := device.SelectDevices(typeMask, cfg.Device.Match)
	if err != nil {
		return nil, err
	}
	if len(devList) == 0 {
		return nil, fmt.Errorf("no suitable opencl device found")
	}

	dev := devList[0]
	if err = dev.Init(filepath.Join(cfg.Kernels.Dir, deviceProgramFile)); err != nil {
		return nil, err
	}
	return dev, nil
}

// Simulate fires one spherical scan against a demo scene and dumps the
// hits to an .xyz point file.
func Simulate(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.GlobalString("config"))
	if err != nil {
		return err
	}
	if err = setupLogging(ctx, cfg); err != nil {
		return err
	}

	dev, err := findDevice(cfg)
	if err != nil {
		logger.Error(err)
		return err
	}
	defer dev.Close()
	logger.Infof("using device: %s", dev.Name)

	sc := scene.New(dev)
	if err = buildDemoScene(sc); err != nil {
		logger.Error(err)
		return err
	}

	raysNode := graph.NewFromMat3x4fRays(sphericalScan(
		ctx.Int("hres"),
		ctx.Int("vres"),
		float32(ctx.Float64("vfov"))*math.Pi/180,
	))
	trace := graph.NewRaytrace(sc, float32(ctx.Float64("range")))
	trace.SetInput(raysNode)
	compact := graph.NewCompactByField(cloud.IsHit)
	compact.SetInput(trace)
	yield := graph.NewYieldPoints([]cloud.Field{cloud.XYZ})
	yield.SetInput(compact)

	run, err := graph.Run(dev, yield)
	if err != nil {
		logger.Error(err)
		return err
	}
	if err = run.Synchronize(); err != nil {
		logger.Error(err)
		return err
	}

	width, err := yield.Width()
	if err != nil {
		return err
	}
	xyz, err := yield.FieldData(cloud.XYZ)
	if err != nil {
		return err
	}
	logger.Infof("scan produced %d hits", width)

	return savePointsToFile(xyz, width, ctx.String("out"))
}

// A ground plane with a box on top of it.
func buildDemoScene(sc *scene.Scene) error {
	groundVerts := []types.Vec3{
		{-50, 0, -50}, {50, 0, -50}, {50, 0, 50}, {-50, 0, 50},
	}
	groundIdx := []types.Vec3i{{0, 1, 2}, {0, 2, 3}}
	ground, err := sc.AddMesh(groundVerts, groundIdx)
	if err != nil {
		return err
	}
	if _, err = sc.AddEntity(ground, types.Mat3x4Ident(), 0, 0); err != nil {
		return err
	}

	boxVerts := []types.Vec3{
		{-1, 0, -1}, {1, 0, -1}, {1, 2, -1}, {-1, 2, -1},
		{-1, 0, 1}, {1, 0, 1}, {1, 2, 1}, {-1, 2, 1},
	}
	boxIdx := []types.Vec3i{
		{0, 1, 2}, {0, 2, 3}, {4, 6, 5}, {4, 7, 6},
		{0, 3, 7}, {0, 7, 4}, {1, 5, 6}, {1, 6, 2},
		{3, 2, 6}, {3, 6, 7}, {0, 4, 5}, {0, 5, 1},
	}
	box, err := sc.AddMesh(boxVerts, boxIdx)
	if err != nil {
		return err
	}
	_, err = sc.AddEntity(box, types.Mat3x4Translation(types.Vec3{5, 0, 0}), 0, 0)
	return err
}

// Generate a spherical scan pattern from the origin: hres columns around
// the vertical axis, vres rows across the vertical field of view.
func sphericalScan(hres, vres int, vfov float32) []types.Mat3x4 {
	rays := make([]types.Mat3x4, 0, hres*vres)
	up := types.Vec3{0, 1, 0}
	right := types.Vec3{1, 0, 0}
	origin := types.Vec3{0, 1, 0}

	for h := 0; h < hres; h++ {
		azimuth := 2 * math.Pi * float64(h) / float64(hres)
		for v := 0; v < vres; v++ {
			elevation := float64(vfov) * (float64(v)/float64(vres-1) - 0.5)
			rot := types.QuatFromAxisAngle(up, float32(azimuth)).
				Mul(types.QuatFromAxisAngle(right, float32(elevation)))
			rays = append(rays, types.Mat3x4FromQuat(rot.Normalize(), origin))
		}
	}
	return rays
}

// Dump XYZ triples to a whitespace separated .xyz file.
func savePointsToFile(xyz *cloud.Array, width int, path string) error {
	raw, err := xyz.ReadPtr()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := 0; i < width; i++ {
		x := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*12:]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*12+4:]))
		z := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*12+8:]))
		fmt.Fprintf(w, "%f %f %f\n", x, y, z)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	logger.Infof("wrote %d points to %s", width, path)
	return nil
}
