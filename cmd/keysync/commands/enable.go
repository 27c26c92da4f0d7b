package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keysync/internal/domain"
	"keysync/internal/services/enroll"
)

func enableCmd() *cobra.Command {
	var reinitialize bool

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable sync on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				res enroll.EnableResult
				err error
			)
			if reinitialize {
				res, err = application.Reinitialize(cmd.Context())
			} else {
				res, err = application.EnableSync(cmd.Context())
			}
			if err != nil {
				return err
			}

			switch res.Mode {
			case domain.ModeBootstrap:
				fmt.Printf("Sync enabled. This device generated the team's keys (device %s).\n", res.DeviceID)
			case domain.ModeReady:
				fmt.Printf("Sync already enabled (device %s).\n", res.DeviceID)
			case domain.ModePair:
				fmt.Printf("Registered as device %s. Pair with a trusted device to receive keys:\n", res.DeviceID)
				for _, d := range res.TrustedDevices {
					fmt.Printf("  - %s (%s)\n", d.DisplayName, d.Platform)
				}
				fmt.Println("On a trusted device run `keysync pair`, then here run `keysync join <code>`.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reinitialize, "reinitialize", false, "clear an orphaned team and bootstrap again")
	return cmd
}
