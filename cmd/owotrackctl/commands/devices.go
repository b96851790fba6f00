package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Short:   "List devices currently known to owotrackd",
		Aliases: []string{"list", "ls"},
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			devices, err := fetchDevices()
			if err != nil {
				return fmt.Errorf("fetch devices: %w", err)
			}

			out, err := formatDevices(devices, outputFormat)
			if err != nil {
				return fmt.Errorf("format devices: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
