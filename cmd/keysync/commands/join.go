package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// joinCmd runs the claimer side: redeem the code shown on a trusted device,
// compare verification codes, wait for the key bundle and confirm it.
func joinCmd() *cobra.Command {
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "join <code>",
		Short: "Receive keys from a trusted device using its pairing code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			code := strings.ToUpper(strings.TrimSpace(args[0]))

			if _, err := application.ClaimPairingSession(ctx, code); err != nil {
				return fmt.Errorf("claiming pairing: %w", err)
			}

			sas, err := application.ClaimerVerificationCode()
			if err != nil {
				return err
			}
			fmt.Printf("Verification code: %s\n", sas)
			fmt.Println("Confirm the trusted device shows the same code; it will then transfer the keys.")

			for {
				bundle, err := application.PollForKeyBundle(ctx)
				if err != nil {
					return err
				}
				if bundle != nil {
					if err := application.ConfirmPairingAsClaimer(ctx, bundle); err != nil {
						return err
					}
					fmt.Printf("Paired. This device now holds the team keys at version %d.\n", bundle.KeyVersion)
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(pollInterval):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "cadence for polling the key bundle")
	return cmd
}
