package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"keysync/internal/services/pairing"
)

// pairCmd runs the issuer side: display a one-time code, wait for the new
// device to claim it, compare verification codes, then transfer the keys.
func pairCmd() *cobra.Command {
	var (
		pollInterval time.Duration
		assumeYes    bool
	)

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Issue a pairing code and transfer keys to a new device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flow := pairing.FlowIdle

			session, err := application.CreatePairingSession(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if !pairing.Terminal(flow) || flow == pairing.FlowError || flow == pairing.FlowExpired {
					application.CancelPairing(ctx)
				}
			}()
			flow = pairing.Transition(flow, pairing.EventSessionCreated)

			fmt.Printf("Pairing code: %s\n", session.Code)
			fmt.Printf("Enter it on the new device before %s.\n", session.ExpiresAt.Local().Format(time.Kitchen))
			flow = pairing.Transition(flow, pairing.EventCodeShown)

			// The poll cadence is ours to choose; the session dies at its
			// server-side expiry regardless.
			for {
				claimed, err := application.PollForClaimerConnection(ctx)
				if err != nil {
					flow = pairing.Transition(flow, pairing.EventFailed)
					return err
				}
				if claimed {
					break
				}
				select {
				case <-ctx.Done():
					flow = pairing.Transition(flow, pairing.EventFailed)
					return ctx.Err()
				case <-time.After(pollInterval):
				}
			}
			flow = pairing.Transition(flow, pairing.EventClaimerArrived)

			sas, err := application.IssuerVerificationCode()
			if err != nil {
				flow = pairing.Transition(flow, pairing.EventFailed)
				return err
			}
			fmt.Printf("Verification code: %s\n", sas)
			fmt.Println("Confirm the new device shows the same code.")
			if !assumeYes && !confirmPrompt("Transfer keys to this device?") {
				flow = pairing.Transition(flow, pairing.EventFailed)
				return fmt.Errorf("pairing aborted")
			}
			if session.RequireSAS {
				if err := application.ApprovePairing(ctx); err != nil {
					flow = pairing.Transition(flow, pairing.EventFailed)
					return err
				}
			}
			flow = pairing.Transition(flow, pairing.EventVerified)

			if err := application.CompletePairing(ctx); err != nil {
				flow = pairing.Transition(flow, pairing.EventFailed)
				return err
			}
			flow = pairing.Transition(flow, pairing.EventTransferred)
			fmt.Println("Keys transferred. The new device must confirm to finish.")
			return nil
		},
	}
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "cadence for polling the claimer")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the verification prompt")
	return cmd
}

func confirmPrompt(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
