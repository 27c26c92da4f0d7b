package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Rotate the team's keys and revoke every other device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmPrompt("Every other device will need to re-pair. Continue?") {
				return fmt.Errorf("reset aborted")
			}
			version, err := application.ResetSync(cmd.Context(), reason)
			if err != nil {
				return err
			}
			fmt.Printf("Team keys rotated to version %d. This device stays trusted; all others must re-pair.\n", version)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the reset is happening (recorded server-side)")
	return cmd
}
