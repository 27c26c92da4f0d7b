package domain

import (
	"errors"
	"fmt"
)

// Kind tags an error with its protocol-level meaning so callers can map
// failures to states and retry policy without matching on message text.
type Kind string

const (
	KindDeviceNotFound          Kind = "device_not_found"
	KindDeviceRevoked           Kind = "device_revoked"
	KindNoAccessToken           Kind = "no_access_token"
	KindInitFailed              Kind = "init_failed"
	KindKeysInitFailed          Kind = "keys_init_failed"
	KindRootKeyNotFound         Kind = "root_key_not_found"
	KindNoSession               Kind = "no_session"
	KindNoClaim                 Kind = "no_claim"
	KindInvalidSession          Kind = "invalid_session"
	KindPairingEnded            Kind = "pairing_ended"
	KindPairingExpired          Kind = "pairing_expired"
	KindClaimerNotFound         Kind = "claimer_not_found"
	KindKeysAlreadyInitialized  Kind = "keys_already_initialized"
	KindLastTrustedDevice       Kind = "last_trusted_device"
	KindKeyVersionMismatch      Kind = "key_version_mismatch"
	KindKeyringVersion          Kind = "keyring_version"
	KindTransport               Kind = "transport"
)

// recoverableByKind is the default retry policy per kind. Recoverable means
// the caller may retry the same operation without re-deriving key material.
var recoverableByKind = map[Kind]bool{
	KindTransport:       true,
	KindNoAccessToken:   true,
	KindClaimerNotFound: true,
	KindInitFailed:      true,
	KindKeysInitFailed:  true,
}

// Error is a tagged error. Transport and crypto causes stay attached for
// errors.Is/As; Kind and Recoverable drive caller policy.
type Error struct {
	Kind        Kind
	Recoverable bool
	Msg         string
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged error with the default recoverability for kind.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Recoverable: recoverableByKind[kind], Msg: msg}
}

// Wrap attaches a cause to a tagged error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Recoverable: recoverableByKind[kind], Msg: msg, Err: err}
}

// KindOf extracts the kind from err, or KindTransport for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Recoverable reports whether the caller may retry. Untagged errors are
// treated as transient transport failures.
func Recoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return true
}
