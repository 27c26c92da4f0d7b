package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keysync/internal/domain"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this device's enrollment state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := application.DetectState(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("State: %s\n", st)
			switch st {
			case domain.StateFresh:
				fmt.Println("Sync is not enabled on this device. Run `keysync enable`.")
			case domain.StateRegistered:
				fmt.Println("Registered but untrusted. Pair with a trusted device: `keysync join <code>`.")
			case domain.StateStale:
				fmt.Println("The team's keys were rotated. Re-pair with a trusted device.")
			case domain.StateRecovery:
				fmt.Println("The server no longer recognises this device. Run `keysync signout --acknowledge` to re-enroll.")
			case domain.StateOrphaned:
				fmt.Println("No trusted device remains. Run `keysync enable --reinitialize` to start over.")
			}
			return nil
		},
	}
}
