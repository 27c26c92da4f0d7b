package app

import (
	"time"

	"go.uber.org/zap"

	"keysync/internal/domain"
	"keysync/internal/services/enroll"
	"keysync/internal/services/pairing"
	"keysync/internal/services/state"
	"keysync/internal/store"
	"keysync/internal/transport"
)

// NewWire constructs the dependency graph from cfg and returns the composed
// App.
func NewWire(cfg Config) (*App, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	keyring := store.NewFileKeyring(cfg.Home, cfg.Passphrase)
	client := transport.New(cfg.ServerURL, cfg.AuthToken, cfg.HTTP)

	return New(keyring, client, cfg), nil
}

// New composes an App from explicit collaborators; tests use it to substitute
// fakes for either side.
func New(keyring domain.KeyringStore, client domain.SyncTransport, cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	detector := state.New(keyring, client)
	return &App{
		Keyring:   keyring,
		Transport: client,
		Detector:  detector,
		Enroll:    enroll.New(keyring, client, detector, cfg.DeviceName, cfg.Platform, cfg.Logger),
		Issuer:    pairing.NewIssuer(keyring, client, cfg.Now, cfg.Logger),
		Claimer:   pairing.NewClaimer(keyring, client, cfg.Now, cfg.Logger),
		log:       cfg.Logger,
	}
}
