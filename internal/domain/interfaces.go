package domain

import "context"

// KeyringStore persists the device's sync identity, encrypted at rest.
// All writes are read-modify-write over a single versioned record.
// Only ClearAll removes the device nonce.
type KeyringStore interface {
	// DeviceNonce returns the locally generated install identifier.
	DeviceNonce() (string, bool, error)
	// SetDeviceNonce sets the nonce exactly once; overwriting an existing
	// nonce with a different value is an error.
	SetDeviceNonce(nonce string) error

	DeviceID() (string, bool, error)
	SetDeviceID(id string) error

	Keypair() (pub Ed25519Public, priv Ed25519Private, ok bool, err error)
	SetKeypair(pub Ed25519Public, priv Ed25519Private) error

	RootKey() ([]byte, bool, error)
	KeyVersion() (int, bool, error)
	ClearRootKey() error

	// SetE2EECredentials atomically persists the root key, key version and,
	// when pub/priv are non-nil, the device keypair in one write.
	SetE2EECredentials(rootKey []byte, keyVersion int, pub *Ed25519Public, priv *Ed25519Private) error

	// ClearAll wipes the whole record, device nonce included.
	ClearAll() error
}

// SyncTransport is the coordination server. It stores ciphertext, hashes and
// public keys only; plaintext key material never crosses it.
type SyncTransport interface {
	RegisterDevice(ctx context.Context, displayName, platform, deviceNonce string, signPub Ed25519Public) (RegisterResult, error)
	TeamStatus(ctx context.Context) (TeamInfo, error)

	GetDevice(ctx context.Context, id string) (Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
	RenameDevice(ctx context.Context, id, displayName string) error
	RevokeDevice(ctx context.Context, id string) error
	DeleteDevice(ctx context.Context, id string) error

	CreatePairing(ctx context.Context, deviceID, codeHash string, ephPub X25519Public) (PairingCreated, error)
	GetPairing(ctx context.Context, pairingID string) (PairingInfo, error)
	ClaimPairing(ctx context.Context, deviceID, code string, ephPub X25519Public) (ClaimResult, error)
	GetPairingMessages(ctx context.Context, pairingID string) (Mailbox, error)
	ApprovePairing(ctx context.Context, pairingID string) error
	CompletePairing(ctx context.Context, pairingID string, msg PairingMessage) error
	ConfirmPairing(ctx context.Context, pairingID, proof string) (ConfirmResult, error)
	CancelPairing(ctx context.Context, pairingID string) error

	ResetTeamSync(ctx context.Context, deviceID, reason string) (ResetResult, error)
	ReinitializeTeam(ctx context.Context) error
}
