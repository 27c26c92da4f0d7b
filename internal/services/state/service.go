// Package state classifies the device's enrollment state.
package state

import (
	"context"

	"keysync/internal/crypto"
	"keysync/internal/domain"
)

// Detector computes the current enrollment state from the local keyring and
// the server's view. Pure classification: it never mutates either side, and
// network failures surface as errors, never as a fabricated state.
type Detector struct {
	keyring   domain.KeyringStore
	transport domain.SyncTransport
}

// New returns a Detector over the given keyring and transport.
func New(keyring domain.KeyringStore, transport domain.SyncTransport) *Detector {
	return &Detector{keyring: keyring, transport: transport}
}

// Detect classifies into exactly one EnrollState.
func (d *Detector) Detect(ctx context.Context) (domain.EnrollState, error) {
	_, hasNonce, err := d.keyring.DeviceNonce()
	if err != nil {
		return "", err
	}
	deviceID, hasID, err := d.keyring.DeviceID()
	if err != nil {
		return "", err
	}
	// A nonce without a device id means enable() crashed before
	// registration; re-enabling reuses the nonce.
	if !hasNonce || !hasID {
		return domain.StateFresh, nil
	}

	dev, err := d.transport.GetDevice(ctx, deviceID)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.KindDeviceNotFound), domain.IsKind(err, domain.KindDeviceRevoked):
		return domain.StateRecovery, nil
	default:
		return "", err
	}
	if dev.TrustState == domain.TrustRevoked {
		return domain.StateRecovery, nil
	}

	team, err := d.transport.TeamStatus(ctx)
	if err != nil {
		return "", err
	}

	rootKey, hasRoot, err := d.keyring.RootKey()
	if err != nil {
		return "", err
	}
	defer crypto.Wipe(rootKey)

	if !hasRoot {
		if team.Initialized && team.TrustedDevices == 0 {
			return domain.StateOrphaned, nil
		}
		return domain.StateRegistered, nil
	}

	localVersion, _, err := d.keyring.KeyVersion()
	if err != nil {
		return "", err
	}
	if localVersion < team.KeyVersion {
		return domain.StateStale, nil
	}
	if dev.TrustState != domain.TrustTrusted {
		return domain.StateRecovery, nil
	}
	return domain.StateReady, nil
}
