package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func signoutCmd() *cobra.Command {
	var acknowledge bool

	cmd := &cobra.Command{
		Use:   "signout",
		Short: "Wipe this device's local sync identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if acknowledge {
				// Recovery path: the server already disowned this device.
				if err := application.AcknowledgeRecovery(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Local identity wiped. Run `keysync enable` to re-enroll.")
				return nil
			}
			if !confirmPrompt("This wipes the local keyring, including the root key. Continue?") {
				return fmt.Errorf("signout aborted")
			}
			if err := application.ClearSyncData(); err != nil {
				return err
			}
			fmt.Println("Local sync data cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&acknowledge, "acknowledge", false, "acknowledge a server-side recovery and wipe")
	return cmd
}
