// Package enroll drives the enrollment lifecycle: first enable, bootstrap,
// team reset, orphan reinitialization and recovery acknowledgement.
package enroll

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"keysync/internal/crypto"
	"keysync/internal/domain"
	"keysync/internal/services/state"
)

// EnableResult reports the outcome of Enable.
type EnableResult struct {
	State    domain.EnrollState
	Mode     domain.RegisterMode
	DeviceID string
	// TrustedDevices is populated in pair mode so the caller can show which
	// device to issue the pairing from.
	TrustedDevices []domain.Device
}

// Service performs enrollment transitions against the keyring and transport.
type Service struct {
	keyring     domain.KeyringStore
	transport   domain.SyncTransport
	detector    *state.Detector
	displayName string
	platform    string
	log         *zap.Logger

	enable singleflight.Group
}

// New returns an enrollment service. displayName and platform describe this
// device to the server.
func New(keyring domain.KeyringStore, transport domain.SyncTransport, detector *state.Detector, displayName, platform string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		keyring:     keyring,
		transport:   transport,
		detector:    detector,
		displayName: displayName,
		platform:    platform,
		log:         log,
	}
}

// Enable registers this device and, in bootstrap mode, generates the team's
// key material. Safe under concurrent invocation: callers collapse onto one
// in-flight registration and observe the same outcome.
func (s *Service) Enable(ctx context.Context) (EnableResult, error) {
	v, err, _ := s.enable.Do("enable", func() (any, error) {
		return s.enableOnce(ctx)
	})
	if err != nil {
		return EnableResult{}, err
	}
	return v.(EnableResult), nil
}

func (s *Service) enableOnce(ctx context.Context) (EnableResult, error) {
	nonce, ok, err := s.keyring.DeviceNonce()
	if err != nil {
		return EnableResult{}, err
	}
	if !ok {
		// The nonce identifies this install to the server across retries.
		// It is random, local-only and never shown to the user.
		nonce = uuid.NewString()
		if err := s.keyring.SetDeviceNonce(nonce); err != nil {
			return EnableResult{}, domain.Wrap(domain.KindInitFailed, "persist device nonce", err)
		}
	}

	signPub, _, hasKeypair, err := s.keyring.Keypair()
	if err != nil {
		return EnableResult{}, err
	}
	if !hasKeypair {
		pub, priv, err := crypto.GenerateSigning()
		if err != nil {
			return EnableResult{}, domain.Wrap(domain.KindKeysInitFailed, "generate device keypair", err)
		}
		if err := s.keyring.SetKeypair(pub, priv); err != nil {
			return EnableResult{}, domain.Wrap(domain.KindKeysInitFailed, "persist device keypair", err)
		}
		signPub = pub
	}

	res, err := s.transport.RegisterDevice(ctx, s.displayName, s.platform, nonce, signPub)
	if err != nil {
		return EnableResult{}, err
	}
	if err := s.keyring.SetDeviceID(res.DeviceID); err != nil {
		return EnableResult{}, domain.Wrap(domain.KindInitFailed, "persist device id", err)
	}

	out := EnableResult{Mode: res.Mode, DeviceID: res.DeviceID}
	switch res.Mode {
	case domain.ModeBootstrap:
		rootKey, err := crypto.GenerateRootKey()
		if err != nil {
			return EnableResult{}, domain.Wrap(domain.KindKeysInitFailed, "generate root key", err)
		}
		defer crypto.Wipe(rootKey)
		if err := s.keyring.SetE2EECredentials(rootKey, res.KeyVersion, nil, nil); err != nil {
			return EnableResult{}, domain.Wrap(domain.KindKeysInitFailed, "persist credentials", err)
		}
		out.State = domain.StateReady
		s.log.Debug("bootstrapped team keys",
			zap.String("device", res.DeviceID), zap.Int("key_version", res.KeyVersion))

	case domain.ModePair:
		out.State = domain.StateRegistered
		out.TrustedDevices = res.TrustedDevices

	case domain.ModeReady:
		out.State = domain.StateReady

	default:
		return EnableResult{}, domain.E(domain.KindInitFailed, "server returned unknown registration mode")
	}
	return out, nil
}

// Reinitialize clears the server-side epoch and re-runs Enable. Valid only
// from the orphaned state; any other state is rejected before touching the
// server.
func (s *Service) Reinitialize(ctx context.Context) (EnableResult, error) {
	st, err := s.detector.Detect(ctx)
	if err != nil {
		return EnableResult{}, err
	}
	if st != domain.StateOrphaned {
		return EnableResult{}, domain.E(domain.KindKeysAlreadyInitialized,
			"reinitialize is only valid for an orphaned team")
	}
	if err := s.transport.ReinitializeTeam(ctx); err != nil {
		return EnableResult{}, err
	}
	return s.Enable(ctx)
}

// ResetTeamSync withdraws every other device's trust, advances the key epoch
// and installs a freshly generated root key for the caller at the new
// version. Every other device observes STALE on its next detection and must
// re-pair.
func (s *Service) ResetTeamSync(ctx context.Context, reason string) (int, error) {
	deviceID, ok, err := s.keyring.DeviceID()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.E(domain.KindInitFailed, "device is not registered")
	}
	if _, ok, err := s.keyring.RootKey(); err != nil {
		return 0, err
	} else if !ok {
		return 0, domain.E(domain.KindRootKeyNotFound, "reset requires an enrolled, trusted device")
	}

	res, err := s.transport.ResetTeamSync(ctx, deviceID, reason)
	if err != nil {
		return 0, err
	}

	// The old root key dies with the old epoch; mint its replacement.
	rootKey, err := crypto.GenerateRootKey()
	if err != nil {
		return 0, domain.Wrap(domain.KindKeysInitFailed, "generate replacement root key", err)
	}
	defer crypto.Wipe(rootKey)
	if err := s.keyring.SetE2EECredentials(rootKey, res.KeyVersion, nil, nil); err != nil {
		return 0, domain.Wrap(domain.KindKeysInitFailed, "persist replacement credentials", err)
	}
	s.log.Info("team sync reset", zap.Int("key_version", res.KeyVersion))
	return res.KeyVersion, nil
}

// AcknowledgeRecovery wipes the local identity after the server has disowned
// this device, returning it to FRESH. This is the only path that performs a
// full wipe without an explicit sign-out.
func (s *Service) AcknowledgeRecovery(ctx context.Context) error {
	st, err := s.detector.Detect(ctx)
	if err != nil {
		return err
	}
	if st != domain.StateRecovery {
		return domain.E(domain.KindInitFailed, "device is not in recovery")
	}
	return s.keyring.ClearAll()
}
