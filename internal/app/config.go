package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds runtime wiring options for building the app. It is the one
// explicit context object; there is no package-level state.
type Config struct {
	Home       string // keyring directory, e.g. $HOME/.keysync
	ServerURL  string // sync server base URL, e.g. http://127.0.0.1:8080
	AuthToken  string // optional bearer token for the sync server
	Passphrase string // protects the keyring at rest

	// DeviceName and Platform describe this device to the server.
	DeviceName string
	Platform   string

	HTTP   *http.Client     // optional; defaults to http.DefaultClient
	Logger *zap.Logger      // optional; defaults to zap.NewNop()
	Now    func() time.Time // optional clock, injectable in tests
}
