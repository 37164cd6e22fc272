// -- cmd/devices.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Safphere/OMG-Agent/internal/device"
)

// newDevicesCmd creates the `devices` command.
func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Lists connected Android devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			serials, err := device.ListDevices(cmd.Context(), cfg.Device.ADBPath, cfg.Device.CommandTimeout)
			if err != nil {
				return err
			}
			if len(serials) == 0 {
				fmt.Println("No devices connected.")
				return nil
			}
			for _, serial := range serials {
				fmt.Println(serial)
			}
			return nil
		},
	}
}
