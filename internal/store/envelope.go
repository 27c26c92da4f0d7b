package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// On-disk framing for the encrypted keyring record. envelopeVersion frames the
// ciphertext container; keyringSchema (keyring.go) versions the record inside.
const (
	envelopeVersion = 1

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Returned when the passphrase is wrong or the sealed keyring was modified.
// The two are indistinguishable by construction.
var errWrongPassphrase = errors.New("wrong passphrase or corrupted keyring")

// envelope frames the sealed record together with everything needed to
// re-derive its key. Each seal draws a fresh salt, so the derived key is
// single-use and the zero nonce is safe; the salt doubles as associated data
// to bind ciphertext and KDF parameters together.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_n"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Sealed []byte `json:"sealed"`
}

func sealRecord(passphrase string, raw []byte) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte

	return json.Marshal(envelope{
		V:      envelopeVersion,
		Salt:   salt[:],
		N:      scryptN,
		R:      scryptR,
		P:      scryptP,
		Sealed: aead.Seal(nil, nonce[:], raw, salt[:]),
	})
}

func openRecord(passphrase string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.V > envelopeVersion {
		return nil, fmt.Errorf("keyring envelope version %d is newer than this build supports", env.V)
	}

	// KDF parameters come from the envelope, not the current defaults, so
	// records sealed under older cost settings still open.
	key, err := scrypt.Key([]byte(passphrase), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	raw, err := aead.Open(nil, nonce[:], env.Sealed, env.Salt)
	if err != nil {
		return nil, errWrongPassphrase
	}
	return raw, nil
}
