package domain

import "time"

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is a signing public key.
type Ed25519Public [32]byte

func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is a signing private key (ed25519.PrivateKey layout).
type Ed25519Private [64]byte

func (k Ed25519Private) Slice() []byte { return k[:] }

// EnrollState is the device's position in the enrollment lifecycle,
// computed from the local keyring plus the server's view.
type EnrollState string

const (
	// StateFresh: no device nonce; sync has never been enabled here.
	StateFresh EnrollState = "fresh"
	// StateRegistered: registered with the server but holding no root key.
	StateRegistered EnrollState = "registered"
	// StateReady: trusted, root key present at the current key version.
	StateReady EnrollState = "ready"
	// StateStale: local key version is behind the server epoch.
	StateStale EnrollState = "stale"
	// StateRecovery: the server no longer recognises this device.
	StateRecovery EnrollState = "recovery"
	// StateOrphaned: the epoch is initialised but no trusted device remains
	// to pair against.
	StateOrphaned EnrollState = "orphaned"
)

// TrustState records whether a device has received valid key material.
type TrustState string

const (
	TrustUntrusted TrustState = "untrusted"
	TrustTrusted   TrustState = "trusted"
	TrustRevoked   TrustState = "revoked"
)

// SyncIdentity is the secret, local-only keyring record. The device nonce is
// generated locally, bound to this physical install and never transmitted;
// the device id is server-assigned. RootKey present implies KeyVersion > 0.
type SyncIdentity struct {
	Schema      int            `json:"schema"`
	DeviceNonce string         `json:"device_nonce,omitempty"`
	DeviceID    string         `json:"device_id,omitempty"`
	RootKey     []byte         `json:"root_key,omitempty"`
	KeyVersion  int            `json:"key_version,omitempty"`
	SignPub     Ed25519Public  `json:"sign_pub"`
	SignPriv    Ed25519Private `json:"sign_priv"`
	HasKeypair  bool           `json:"has_keypair"`
}

// Device is the server's record of one enrolled device, mirrored locally for
// display only.
type Device struct {
	ID                string     `json:"id"`
	DisplayName       string     `json:"display_name"`
	Platform          string     `json:"platform"`
	TrustState        TrustState `json:"trust_state"`
	TrustedKeyVersion int        `json:"trusted_key_version,omitempty"`
	PublicKey         []byte     `json:"public_key,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RegisterMode tags the server's answer to a device registration.
type RegisterMode string

const (
	// ModeBootstrap: this device is first; it generates the root key locally.
	ModeBootstrap RegisterMode = "bootstrap"
	// ModePair: trusted devices exist; complete pairing as the claimer.
	ModePair RegisterMode = "pair"
	// ModeReady: already trusted; registration is an idempotent re-entry.
	ModeReady RegisterMode = "ready"
)

// RegisterResult is the server response to RegisterDevice.
type RegisterResult struct {
	Mode           RegisterMode `json:"mode"`
	DeviceID       string       `json:"device_id"`
	KeyVersion     int          `json:"key_version"`
	TrustedDevices []Device     `json:"trusted_devices,omitempty"`
}

// TeamInfo is the server's current key epoch.
type TeamInfo struct {
	Initialized    bool `json:"initialized"`
	KeyVersion     int  `json:"key_version"`
	TrustedDevices int  `json:"trusted_devices"`
}

// PairingStatus is the server-side lifecycle of one pairing session.
type PairingStatus string

const (
	PairingOpen      PairingStatus = "open"
	PairingClaimed   PairingStatus = "claimed"
	PairingApproved  PairingStatus = "approved"
	PairingCompleted PairingStatus = "completed"
	PairingCancelled PairingStatus = "cancelled"
	PairingExpired   PairingStatus = "expired"
)

// PairingSession is the issuer-side ephemeral session. It never persists
// across process restarts.
type PairingSession struct {
	PairingID  string
	Code       string
	CodeHash   string
	EphPriv    X25519Private
	EphPub     X25519Public
	KeyVersion int
	RequireSAS bool
	ExpiresAt  time.Time
	Status     PairingStatus

	// Set once a claimer connects.
	ClaimerDeviceID string
	ClaimerEphPub   X25519Public
	SessionKey      []byte
}

// ClaimerSession mirrors PairingSession from the claiming side.
type ClaimerSession struct {
	PairingID    string
	EphPriv      X25519Private
	EphPub       X25519Public
	IssuerEphPub X25519Public
	SessionKey   []byte
	KeyVersion   int
	RequireSAS   bool
	ExpiresAt    time.Time
	Ended        bool

	// Set once the encrypted bundle arrives and decrypts.
	Bundle *KeyBundle
}

// KeyBundle is the transferred key material. It only ever exists encrypted in
// transit or briefly in memory on either end of a pairing.
type KeyBundle struct {
	V          int    `json:"v"`
	RootKey    []byte `json:"root_key"`
	KeyVersion int    `json:"key_version"`
}

// PairingCreated is the server response to CreatePairing.
type PairingCreated struct {
	PairingID  string    `json:"pairing_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	KeyVersion int       `json:"key_version"`
	RequireSAS bool      `json:"require_sas"`
}

// PairingInfo is the issuer's poll view of a session.
type PairingInfo struct {
	Status          PairingStatus `json:"status"`
	ClaimerDeviceID string        `json:"claimer_device_id,omitempty"`
	ClaimerEphPub   *X25519Public `json:"claimer_eph_pub,omitempty"`
}

// ClaimResult is the server response to ClaimPairing.
type ClaimResult struct {
	PairingID    string       `json:"pairing_id"`
	IssuerEphPub X25519Public `json:"issuer_eph_pub"`
	KeyVersion   int          `json:"key_version"`
	RequireSAS   bool         `json:"require_sas"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// PairingMessage carries the sealed key bundle through the session mailbox.
// The server stores it opaquely; only the claimer holds the session key.
type PairingMessage struct {
	Ciphertext []byte `json:"ciphertext"`
	Proof      string `json:"proof"`
	Signature  []byte `json:"signature"`
}

// Mailbox is the claimer's poll view of a session.
type Mailbox struct {
	Status   PairingStatus    `json:"status"`
	Messages []PairingMessage `json:"messages"`
}

// ConfirmResult is the server response to ConfirmPairing.
type ConfirmResult struct {
	KeyVersion int `json:"key_version"`
}

// ResetResult is the server response to ResetTeamSync.
type ResetResult struct {
	KeyVersion int `json:"key_version"`
}
