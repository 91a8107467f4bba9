package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/achilleasa/go-lidar/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "go-lidar"
	app.Usage = "simulate lidar scans against triangle mesh scenes"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "path to a config file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available opencl devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "simulate",
			Usage: "fire a demo scan and dump the resulting point cloud",
			Description: `
Build a small demo scene, fire a spherical lidar scan against it on the
first matching opencl device and write the surviving hits to an .xyz file.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "hres",
					Value: 1800,
					Usage: "horizontal samples per revolution",
				},
				cli.IntFlag{
					Name:  "vres",
					Value: 32,
					Usage: "vertical samples (lasers)",
				},
				cli.Float64Flag{
					Name:  "vfov",
					Value: 30.0,
					Usage: "vertical field of view in degrees",
				},
				cli.Float64Flag{
					Name:  "range",
					Value: 100.0,
					Usage: "max ray range in meters",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "points.xyz",
					Usage: "output .xyz filename",
				},
			},
			Action: cmd.Simulate,
		},
	}

	app.Run(os.Args)
}
