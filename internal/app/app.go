// Package app composes the enrollment and pairing services behind one
// cohesive API for external callers.
package app

import (
	"context"

	"go.uber.org/zap"

	"keysync/internal/domain"
	"keysync/internal/services/enroll"
	"keysync/internal/services/pairing"
	"keysync/internal/services/state"
)

// App is the orchestrator. Pairing flows are one-at-a-time per device, so it
// tracks at most one issuer session and one claimer session; neither survives
// a process restart.
type App struct {
	Keyring   domain.KeyringStore
	Transport domain.SyncTransport
	Detector  *state.Detector
	Enroll    *enroll.Service
	Issuer    *pairing.Issuer
	Claimer   *pairing.Claimer

	log *zap.Logger

	issuerSession  *domain.PairingSession
	claimerSession *domain.ClaimerSession
}

// DetectState classifies the device's current enrollment state.
func (a *App) DetectState(ctx context.Context) (domain.EnrollState, error) {
	return a.Detector.Detect(ctx)
}

// EnableSync registers the device; see enroll.Service.Enable.
func (a *App) EnableSync(ctx context.Context) (enroll.EnableResult, error) {
	return a.Enroll.Enable(ctx)
}

// Reinitialize recovers an orphaned team; see enroll.Service.Reinitialize.
func (a *App) Reinitialize(ctx context.Context) (enroll.EnableResult, error) {
	return a.Enroll.Reinitialize(ctx)
}

// AcknowledgeRecovery wipes the local identity after the server disowned it.
func (a *App) AcknowledgeRecovery(ctx context.Context) error {
	return a.Enroll.AcknowledgeRecovery(ctx)
}

// --- Issuer side ---

// CreatePairingSession opens a pairing and retains it as the active one.
func (a *App) CreatePairingSession(ctx context.Context) (*domain.PairingSession, error) {
	s, err := a.Issuer.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	a.issuerSession = s
	return s, nil
}

// PollForClaimerConnection polls the active session for a claimer.
func (a *App) PollForClaimerConnection(ctx context.Context) (bool, error) {
	return a.Issuer.PollClaimer(ctx, a.issuerSession)
}

// IssuerVerificationCode returns the active session's SAS.
func (a *App) IssuerVerificationCode() (string, error) {
	return a.Issuer.VerificationCode(a.issuerSession)
}

// ApprovePairing confirms the transfer may proceed.
func (a *App) ApprovePairing(ctx context.Context) error {
	return a.Issuer.Approve(ctx, a.issuerSession)
}

// CompletePairing transfers the sealed key bundle to the claimer.
func (a *App) CompletePairing(ctx context.Context) error {
	return a.Issuer.Complete(ctx, a.issuerSession)
}

// CancelPairing ends the active issuer session, best-effort.
func (a *App) CancelPairing(ctx context.Context) {
	a.Issuer.Cancel(ctx, a.issuerSession)
	a.issuerSession = nil
}

// --- Claimer side ---

// ClaimPairingSession redeems a code and retains the claim as active.
func (a *App) ClaimPairingSession(ctx context.Context, code string) (*domain.ClaimerSession, error) {
	s, err := a.Claimer.Claim(ctx, code)
	if err != nil {
		return nil, err
	}
	a.claimerSession = s
	return s, nil
}

// ClaimerVerificationCode returns the active claim's SAS.
func (a *App) ClaimerVerificationCode() (string, error) {
	return a.Claimer.VerificationCode(a.claimerSession)
}

// PollForKeyBundle polls the active claim's mailbox.
func (a *App) PollForKeyBundle(ctx context.Context) (*domain.KeyBundle, error) {
	return a.Claimer.PollKeyBundle(ctx, a.claimerSession)
}

// ConfirmPairingAsClaimer accepts the received bundle and persists it.
func (a *App) ConfirmPairingAsClaimer(ctx context.Context, bundle *domain.KeyBundle) error {
	if err := a.Claimer.Confirm(ctx, a.claimerSession, bundle); err != nil {
		return err
	}
	a.claimerSession = nil
	return nil
}

// --- Device management ---

func (a *App) ListDevices(ctx context.Context) ([]domain.Device, error) {
	return a.Transport.ListDevices(ctx)
}

func (a *App) RenameDevice(ctx context.Context, id, name string) error {
	return a.Transport.RenameDevice(ctx, id, name)
}

// RevokeDevice withdraws a device's trust. Revoking the last trusted device
// is rejected server-side with LAST_TRUSTED_DEVICE; callers should offer
// ResetSync instead.
func (a *App) RevokeDevice(ctx context.Context, id string) error {
	return a.Transport.RevokeDevice(ctx, id)
}

// ResetSync rotates the team's key epoch; see enroll.Service.ResetTeamSync.
func (a *App) ResetSync(ctx context.Context, reason string) (int, error) {
	return a.Enroll.ResetTeamSync(ctx, reason)
}

// ClearSyncData wipes the local keyring. The server's record of this device
// is untouched; the next detection from this install starts FRESH.
func (a *App) ClearSyncData() error {
	a.issuerSession = nil
	a.claimerSession = nil
	return a.Keyring.ClearAll()
}
