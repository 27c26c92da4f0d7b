package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"keysync/internal/app"
)

var (
	home       string
	serverURL  string
	authToken  string
	passphrase string
	deviceName string

	application *app.App
)

// Execute builds the dependency graph and runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:   "keysync",
		Short: "Multi-device encrypted sync enrollment and pairing",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				home = os.Getenv("KEYSYNC_HOME")
			}
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".keysync")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			if serverURL == "" {
				serverURL = os.Getenv("KEYSYNC_SERVER")
			}
			if serverURL == "" {
				return fmt.Errorf("sync server URL required (--server or KEYSYNC_SERVER)")
			}
			if passphrase == "" {
				passphrase = os.Getenv("KEYSYNC_PASSPHRASE")
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p or KEYSYNC_PASSPHRASE)")
			}
			if deviceName == "" {
				host, err := os.Hostname()
				if err != nil {
					host = "device"
				}
				deviceName = host
			}

			var err error
			application, err = app.NewWire(app.Config{
				Home:       home,
				ServerURL:  serverURL,
				AuthToken:  authToken,
				Passphrase: passphrase,
				DeviceName: deviceName,
				Platform:   runtime.GOOS,
			})
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "keyring dir (default ~/.keysync)")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "sync server base URL")
	root.PersistentFlags().StringVar(&authToken, "token", "", "sync server bearer token")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the keyring")
	root.PersistentFlags().StringVar(&deviceName, "name", "", "device display name (default hostname)")

	root.AddCommand(statusCmd(), enableCmd(), pairCmd(), joinCmd(), devicesCmd(), resetCmd(), signoutCmd())
	return root.Execute()
}
