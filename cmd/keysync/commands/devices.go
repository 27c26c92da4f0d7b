package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keysync/internal/domain"
)

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage the devices enrolled on this team",
	}
	cmd.AddCommand(devicesListCmd(), devicesRenameCmd(), devicesRevokeCmd())
	return cmd
}

func devicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enrolled devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := application.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range devices {
				trust := string(d.TrustState)
				if d.TrustState == domain.TrustTrusted {
					trust = fmt.Sprintf("trusted@v%d", d.TrustedKeyVersion)
				}
				fmt.Printf("%s  %-20s %-8s %s\n", d.ID, d.DisplayName, d.Platform, trust)
			}
			return nil
		},
	}
}

func devicesRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <device-id> <name>",
		Short: "Rename a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.RenameDevice(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Renamed.")
			return nil
		},
	}
}

func devicesRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <device-id>",
		Short: "Withdraw a device's trust",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := application.RevokeDevice(cmd.Context(), args[0])
			if domain.IsKind(err, domain.KindLastTrustedDevice) {
				return fmt.Errorf("that is the last trusted device; use `keysync reset` instead")
			}
			if err != nil {
				return err
			}
			fmt.Println("Revoked. The device enters recovery on its next check.")
			return nil
		},
	}
}
