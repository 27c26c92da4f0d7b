// Package pairing implements both ends of the key-transfer protocol: the
// trusted issuer displaying a one-time code, and the new claimer redeeming
// it. Both ends run an ephemeral X25519 exchange and must derive
// byte-identical session keys; that equality is the protocol's core
// correctness invariant.
package pairing

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"keysync/internal/crypto"
	"keysync/internal/domain"
)

// Issuer is the trusted-device side of a pairing.
type Issuer struct {
	keyring   domain.KeyringStore
	transport domain.SyncTransport
	now       func() time.Time
	log       *zap.Logger
}

// NewIssuer returns an Issuer. now is injectable for expiry tests.
func NewIssuer(keyring domain.KeyringStore, transport domain.SyncTransport, now func() time.Time, log *zap.Logger) *Issuer {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{keyring: keyring, transport: transport, now: now, log: log}
}

// CreateSession opens a pairing: a one-time code for out-of-band display, a
// fresh ephemeral keypair, and a server-side session carrying only the code
// hash and the ephemeral public key.
func (i *Issuer) CreateSession(ctx context.Context) (*domain.PairingSession, error) {
	if _, ok, err := i.keyring.RootKey(); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.E(domain.KindRootKeyNotFound, "only a device holding the root key can issue pairings")
	}
	deviceID, ok, err := i.keyring.DeviceID()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.E(domain.KindInitFailed, "device is not registered")
	}

	code, err := crypto.GeneratePairingCode()
	if err != nil {
		return nil, err
	}
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}

	created, err := i.transport.CreatePairing(ctx, deviceID, crypto.HashPairingCode(code), ephPub)
	if err != nil {
		return nil, err
	}
	i.log.Debug("pairing session created", zap.String("pairing", created.PairingID))
	return &domain.PairingSession{
		PairingID:  created.PairingID,
		Code:       code,
		CodeHash:   crypto.HashPairingCode(code),
		EphPriv:    ephPriv,
		EphPub:     ephPub,
		KeyVersion: created.KeyVersion,
		RequireSAS: created.RequireSAS,
		ExpiresAt:  created.ExpiresAt,
		Status:     domain.PairingOpen,
	}, nil
}

// PollClaimer checks whether a claimer has connected. Idempotent and safe to
// repeat on a caller-controlled cadence; it returns false while the session
// is still open. Once a claimer arrives the shared session key is derived
// and retained on the session.
func (i *Issuer) PollClaimer(ctx context.Context, s *domain.PairingSession) (bool, error) {
	if s == nil {
		return false, domain.E(domain.KindNoSession, "no active pairing session")
	}
	if s.SessionKey != nil {
		return true, nil
	}
	if err := i.checkLive(s); err != nil {
		return false, err
	}

	info, err := i.transport.GetPairing(ctx, s.PairingID)
	if err != nil {
		return false, err
	}
	switch info.Status {
	case domain.PairingOpen:
		return false, nil
	case domain.PairingExpired:
		s.Status = domain.PairingExpired
		return false, domain.E(domain.KindPairingExpired, "pairing expired before a claimer connected")
	case domain.PairingCancelled:
		s.Status = domain.PairingCancelled
		return false, domain.E(domain.KindPairingEnded, "pairing was cancelled")
	}
	if info.ClaimerEphPub == nil || info.ClaimerDeviceID == "" {
		return false, domain.E(domain.KindClaimerNotFound, "claimed session is missing the claimer's key")
	}

	shared, err := crypto.DH(s.EphPriv, *info.ClaimerEphPub)
	if err != nil {
		return false, domain.Wrap(domain.KindInvalidSession, "derive shared secret", err)
	}
	key, err := crypto.DeriveSessionKey(shared)
	crypto.Wipe(shared[:])
	if err != nil {
		return false, domain.Wrap(domain.KindInvalidSession, "derive session key", err)
	}

	s.SessionKey = key
	s.ClaimerDeviceID = info.ClaimerDeviceID
	s.ClaimerEphPub = *info.ClaimerEphPub
	s.Status = info.Status
	i.log.Debug("claimer connected",
		zap.String("pairing", s.PairingID), zap.String("claimer", s.ClaimerDeviceID))
	return true, nil
}

// VerificationCode returns the short SAS for the session; both sides show it
// to the user for out-of-band comparison. The comparison is advisory: a
// mismatch is handled by cancelling, not by a cryptographic block.
func (i *Issuer) VerificationCode(s *domain.PairingSession) (string, error) {
	if s == nil {
		return "", domain.E(domain.KindNoSession, "no active pairing session")
	}
	if s.SessionKey == nil {
		return "", domain.E(domain.KindNoClaim, "no claimer has connected yet")
	}
	return crypto.VerificationCode(s.SessionKey)
}

// Approve is the explicit confirmation gate before transfer, required when
// the server set RequireSAS on the session.
func (i *Issuer) Approve(ctx context.Context, s *domain.PairingSession) error {
	if s == nil {
		return domain.E(domain.KindNoSession, "no active pairing session")
	}
	if s.SessionKey == nil {
		return domain.E(domain.KindNoClaim, "nothing to approve before a claimer connects")
	}
	if err := i.checkLive(s); err != nil {
		return err
	}
	if err := i.transport.ApprovePairing(ctx, s.PairingID); err != nil {
		return err
	}
	s.Status = domain.PairingApproved
	return nil
}

// Complete seals the current root key and key version under the session key
// and submits it with a signed completion proof. Expiry is re-checked
// locally immediately before any key material leaves the device.
func (i *Issuer) Complete(ctx context.Context, s *domain.PairingSession) error {
	if s == nil {
		return domain.E(domain.KindNoSession, "no active pairing session")
	}
	if s.SessionKey == nil {
		return domain.E(domain.KindClaimerNotFound, "cannot complete before a claimer connects")
	}
	if err := i.checkLive(s); err != nil {
		return err
	}

	rootKey, ok, err := i.keyring.RootKey()
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindRootKeyNotFound, "local root key is missing")
	}
	defer crypto.Wipe(rootKey)
	keyVersion, ok, err := i.keyring.KeyVersion()
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindRootKeyNotFound, "local key version is missing")
	}
	_, signPriv, hasKeypair, err := i.keyring.Keypair()
	if err != nil {
		return err
	}
	if !hasKeypair {
		return domain.E(domain.KindKeysInitFailed, "device keypair is missing")
	}

	plaintext, err := json.Marshal(domain.KeyBundle{V: 1, RootKey: rootKey, KeyVersion: keyVersion})
	if err != nil {
		return err
	}
	ciphertext, err := crypto.Seal(s.SessionKey, plaintext)
	crypto.Wipe(plaintext)
	if err != nil {
		return err
	}

	proof := crypto.CompletionProof(s.SessionKey, s.PairingID, keyVersion)
	msg := domain.PairingMessage{
		Ciphertext: ciphertext,
		Proof:      proof,
		Signature:  crypto.Sign(signPriv, []byte(proof)),
	}
	if err := i.transport.CompletePairing(ctx, s.PairingID, msg); err != nil {
		if domain.IsKind(err, domain.KindPairingExpired) {
			s.Status = domain.PairingExpired
		}
		return err
	}
	s.Status = domain.PairingCompleted
	i.log.Debug("key bundle transferred", zap.String("pairing", s.PairingID))
	return nil
}

// Cancel is best-effort and always safe, including after completion or
// expiry. Server-side failures are swallowed; the local session still ends.
func (i *Issuer) Cancel(ctx context.Context, s *domain.PairingSession) {
	if s == nil {
		return
	}
	_ = i.transport.CancelPairing(ctx, s.PairingID)
	switch s.Status {
	case domain.PairingCompleted, domain.PairingExpired:
	default:
		s.Status = domain.PairingCancelled
	}
	if s.SessionKey != nil {
		crypto.Wipe(s.SessionKey)
		s.SessionKey = nil
	}
}

// checkLive rejects operations on ended or expired sessions before any
// network call.
func (i *Issuer) checkLive(s *domain.PairingSession) error {
	switch s.Status {
	case domain.PairingCancelled:
		return domain.E(domain.KindPairingEnded, "pairing was cancelled")
	case domain.PairingExpired:
		return domain.E(domain.KindPairingExpired, "pairing expired")
	}
	if i.now().After(s.ExpiresAt) {
		s.Status = domain.PairingExpired
		return domain.E(domain.KindPairingExpired, "pairing expired")
	}
	return nil
}
