package pairing

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"keysync/internal/crypto"
	"keysync/internal/domain"
)

// Claimer is the new-device side of a pairing.
type Claimer struct {
	keyring   domain.KeyringStore
	transport domain.SyncTransport
	now       func() time.Time
	log       *zap.Logger
}

// NewClaimer returns a Claimer. now is injectable for expiry tests.
func NewClaimer(keyring domain.KeyringStore, transport domain.SyncTransport, now func() time.Time, log *zap.Logger) *Claimer {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Claimer{keyring: keyring, transport: transport, now: now, log: log}
}

// Claim redeems a one-time code: it submits a fresh ephemeral public key and
// derives the session key from the issuer's. The derivation mirrors the
// issuer's exactly.
func (c *Claimer) Claim(ctx context.Context, code string) (*domain.ClaimerSession, error) {
	deviceID, ok, err := c.keyring.DeviceID()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.E(domain.KindInitFailed, "enable sync before claiming a pairing")
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	res, err := c.transport.ClaimPairing(ctx, deviceID, code, ephPub)
	if err != nil {
		return nil, err
	}

	shared, err := crypto.DH(ephPriv, res.IssuerEphPub)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidSession, "derive shared secret", err)
	}
	key, err := crypto.DeriveSessionKey(shared)
	crypto.Wipe(shared[:])
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidSession, "derive session key", err)
	}

	c.log.Debug("pairing claimed", zap.String("pairing", res.PairingID))
	return &domain.ClaimerSession{
		PairingID:    res.PairingID,
		EphPriv:      ephPriv,
		EphPub:       ephPub,
		IssuerEphPub: res.IssuerEphPub,
		SessionKey:   key,
		KeyVersion:   res.KeyVersion,
		RequireSAS:   res.RequireSAS,
		ExpiresAt:    res.ExpiresAt,
	}, nil
}

// VerificationCode returns the short SAS for out-of-band comparison with the
// issuer's display.
func (c *Claimer) VerificationCode(s *domain.ClaimerSession) (string, error) {
	if s == nil {
		return "", domain.E(domain.KindNoClaim, "no active claim")
	}
	return crypto.VerificationCode(s.SessionKey)
}

// PollKeyBundle checks the session mailbox. It returns (nil, nil) while the
// bundle has not arrived; a bundle that fails to decrypt or validate is an
// INVALID_SESSION error, deliberately distinct from "not yet".
func (c *Claimer) PollKeyBundle(ctx context.Context, s *domain.ClaimerSession) (*domain.KeyBundle, error) {
	if s == nil {
		return nil, domain.E(domain.KindNoClaim, "no active claim")
	}
	if s.Bundle != nil {
		return s.Bundle, nil
	}
	if err := c.checkLive(s); err != nil {
		return nil, err
	}

	box, err := c.transport.GetPairingMessages(ctx, s.PairingID)
	if err != nil {
		return nil, err
	}
	switch box.Status {
	case domain.PairingExpired:
		s.Ended = true
		return nil, domain.E(domain.KindPairingExpired, "pairing expired before the transfer")
	case domain.PairingCancelled:
		s.Ended = true
		return nil, domain.E(domain.KindPairingEnded, "issuer cancelled the pairing")
	}
	if len(box.Messages) == 0 {
		return nil, nil
	}

	msg := box.Messages[0]
	plaintext, err := crypto.Open(s.SessionKey, msg.Ciphertext)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidSession, "key bundle failed authentication", err)
	}
	defer crypto.Wipe(plaintext)

	var bundle domain.KeyBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, domain.Wrap(domain.KindInvalidSession, "key bundle is malformed", err)
	}
	if bundle.V != 1 || len(bundle.RootKey) != crypto.KeyBytes || bundle.KeyVersion < 1 {
		return nil, domain.E(domain.KindInvalidSession, "key bundle failed validation")
	}
	want := crypto.CompletionProof(s.SessionKey, s.PairingID, bundle.KeyVersion)
	if msg.Proof != want {
		return nil, domain.E(domain.KindInvalidSession, "completion proof does not bind this session")
	}

	s.Bundle = &bundle
	c.log.Debug("key bundle received", zap.String("pairing", s.PairingID))
	return s.Bundle, nil
}

// Confirm submits the acceptance proof and atomically persists the received
// credentials. Expiry is re-checked locally immediately before accepting key
// material. On success the device transitions REGISTERED -> READY.
func (c *Claimer) Confirm(ctx context.Context, s *domain.ClaimerSession, bundle *domain.KeyBundle) error {
	if s == nil || bundle == nil {
		return domain.E(domain.KindNoClaim, "no active claim")
	}
	if err := c.checkLive(s); err != nil {
		return err
	}

	proof := crypto.ConfirmProof(s.SessionKey, s.PairingID, bundle.KeyVersion)
	res, err := c.transport.ConfirmPairing(ctx, s.PairingID, proof)
	if err != nil {
		if domain.IsKind(err, domain.KindPairingExpired) {
			s.Ended = true
		}
		return err
	}
	if res.KeyVersion != bundle.KeyVersion {
		return domain.E(domain.KindKeyVersionMismatch,
			"server epoch moved during pairing; re-pair at the new version")
	}

	if err := c.keyring.SetE2EECredentials(bundle.RootKey, bundle.KeyVersion, nil, nil); err != nil {
		return domain.Wrap(domain.KindKeysInitFailed, "persist received credentials", err)
	}
	crypto.Wipe(s.SessionKey)
	s.Ended = true
	c.log.Debug("pairing confirmed",
		zap.String("pairing", s.PairingID), zap.Int("key_version", bundle.KeyVersion))
	return nil
}

func (c *Claimer) checkLive(s *domain.ClaimerSession) error {
	if s.Ended {
		return domain.E(domain.KindPairingEnded, "claim has ended")
	}
	if c.now().After(s.ExpiresAt) {
		s.Ended = true
		return domain.E(domain.KindPairingExpired, "pairing expired")
	}
	return nil
}
