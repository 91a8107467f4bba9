package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/achilleasa/go-lidar/device"
)

// List available opencl devices.
func ListDevices(ctx *cli.Context) error {
	platforms, err := device.GetPlatformInfo()
	if err != nil {
		logger.Error(err)
		return err
	}

	fmt.Printf("System provides %d opencl platform(s)\n\n", len(platforms))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Platform", "Device", "Type", "Speed (GFlops)"})
	for _, platform := range platforms {
		for _, dev := range platform.Devices {
			table.Append([]string{
				platform.Name,
				dev.Name,
				dev.Type.String(),
				fmt.Sprintf("%d", dev.Speed),
			})
		}
	}
	table.Render()

	return nil
}
