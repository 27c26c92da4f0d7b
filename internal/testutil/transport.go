// Package testutil provides test doubles shared across service tests.
package testutil

import (
	"context"
	"errors"

	"keysync/internal/domain"
)

// Transport is a scriptable domain.SyncTransport. Tests set only the
// function fields they need; calls to unset methods fail loudly.
type Transport struct {
	RegisterDeviceFn     func(ctx context.Context, displayName, platform, deviceNonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error)
	TeamStatusFn         func(ctx context.Context) (domain.TeamInfo, error)
	GetDeviceFn          func(ctx context.Context, id string) (domain.Device, error)
	ListDevicesFn        func(ctx context.Context) ([]domain.Device, error)
	RenameDeviceFn       func(ctx context.Context, id, displayName string) error
	RevokeDeviceFn       func(ctx context.Context, id string) error
	DeleteDeviceFn       func(ctx context.Context, id string) error
	CreatePairingFn      func(ctx context.Context, deviceID, codeHash string, ephPub domain.X25519Public) (domain.PairingCreated, error)
	GetPairingFn         func(ctx context.Context, pairingID string) (domain.PairingInfo, error)
	ClaimPairingFn       func(ctx context.Context, deviceID, code string, ephPub domain.X25519Public) (domain.ClaimResult, error)
	GetPairingMessagesFn func(ctx context.Context, pairingID string) (domain.Mailbox, error)
	ApprovePairingFn     func(ctx context.Context, pairingID string) error
	CompletePairingFn    func(ctx context.Context, pairingID string, msg domain.PairingMessage) error
	ConfirmPairingFn     func(ctx context.Context, pairingID, proof string) (domain.ConfirmResult, error)
	CancelPairingFn      func(ctx context.Context, pairingID string) error
	ResetTeamSyncFn      func(ctx context.Context, deviceID, reason string) (domain.ResetResult, error)
	ReinitializeTeamFn   func(ctx context.Context) error
}

var errUnscripted = errors.New("testutil: transport method not scripted")

func (t *Transport) RegisterDevice(ctx context.Context, displayName, platform, deviceNonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
	if t.RegisterDeviceFn == nil {
		return domain.RegisterResult{}, errUnscripted
	}
	return t.RegisterDeviceFn(ctx, displayName, platform, deviceNonce, signPub)
}

func (t *Transport) TeamStatus(ctx context.Context) (domain.TeamInfo, error) {
	if t.TeamStatusFn == nil {
		return domain.TeamInfo{}, errUnscripted
	}
	return t.TeamStatusFn(ctx)
}

func (t *Transport) GetDevice(ctx context.Context, id string) (domain.Device, error) {
	if t.GetDeviceFn == nil {
		return domain.Device{}, errUnscripted
	}
	return t.GetDeviceFn(ctx, id)
}

func (t *Transport) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if t.ListDevicesFn == nil {
		return nil, errUnscripted
	}
	return t.ListDevicesFn(ctx)
}

func (t *Transport) RenameDevice(ctx context.Context, id, displayName string) error {
	if t.RenameDeviceFn == nil {
		return errUnscripted
	}
	return t.RenameDeviceFn(ctx, id, displayName)
}

func (t *Transport) RevokeDevice(ctx context.Context, id string) error {
	if t.RevokeDeviceFn == nil {
		return errUnscripted
	}
	return t.RevokeDeviceFn(ctx, id)
}

func (t *Transport) DeleteDevice(ctx context.Context, id string) error {
	if t.DeleteDeviceFn == nil {
		return errUnscripted
	}
	return t.DeleteDeviceFn(ctx, id)
}

func (t *Transport) CreatePairing(ctx context.Context, deviceID, codeHash string, ephPub domain.X25519Public) (domain.PairingCreated, error) {
	if t.CreatePairingFn == nil {
		return domain.PairingCreated{}, errUnscripted
	}
	return t.CreatePairingFn(ctx, deviceID, codeHash, ephPub)
}

func (t *Transport) GetPairing(ctx context.Context, pairingID string) (domain.PairingInfo, error) {
	if t.GetPairingFn == nil {
		return domain.PairingInfo{}, errUnscripted
	}
	return t.GetPairingFn(ctx, pairingID)
}

func (t *Transport) ClaimPairing(ctx context.Context, deviceID, code string, ephPub domain.X25519Public) (domain.ClaimResult, error) {
	if t.ClaimPairingFn == nil {
		return domain.ClaimResult{}, errUnscripted
	}
	return t.ClaimPairingFn(ctx, deviceID, code, ephPub)
}

func (t *Transport) GetPairingMessages(ctx context.Context, pairingID string) (domain.Mailbox, error) {
	if t.GetPairingMessagesFn == nil {
		return domain.Mailbox{}, errUnscripted
	}
	return t.GetPairingMessagesFn(ctx, pairingID)
}

func (t *Transport) ApprovePairing(ctx context.Context, pairingID string) error {
	if t.ApprovePairingFn == nil {
		return errUnscripted
	}
	return t.ApprovePairingFn(ctx, pairingID)
}

func (t *Transport) CompletePairing(ctx context.Context, pairingID string, msg domain.PairingMessage) error {
	if t.CompletePairingFn == nil {
		return errUnscripted
	}
	return t.CompletePairingFn(ctx, pairingID, msg)
}

func (t *Transport) ConfirmPairing(ctx context.Context, pairingID, proof string) (domain.ConfirmResult, error) {
	if t.ConfirmPairingFn == nil {
		return domain.ConfirmResult{}, errUnscripted
	}
	return t.ConfirmPairingFn(ctx, pairingID, proof)
}

func (t *Transport) CancelPairing(ctx context.Context, pairingID string) error {
	if t.CancelPairingFn == nil {
		return errUnscripted
	}
	return t.CancelPairingFn(ctx, pairingID)
}

func (t *Transport) ResetTeamSync(ctx context.Context, deviceID, reason string) (domain.ResetResult, error) {
	if t.ResetTeamSyncFn == nil {
		return domain.ResetResult{}, errUnscripted
	}
	return t.ResetTeamSyncFn(ctx, deviceID, reason)
}

func (t *Transport) ReinitializeTeam(ctx context.Context) error {
	if t.ReinitializeTeamFn == nil {
		return errUnscripted
	}
	return t.ReinitializeTeamFn(ctx)
}

// Compile-time assertion that Transport implements domain.SyncTransport.
var _ domain.SyncTransport = (*Transport)(nil)
