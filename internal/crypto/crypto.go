package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"keysync/internal/domain"
)

const (
	// KeyBytes is the size of the root key and of derived session keys.
	KeyBytes = 32

	sessionKeyInfo = "keysync/pairing/v1"
)

// ErrDecryptFailed is returned when an AEAD open fails authentication.
// Decryption fails closed; corrupted plaintext is never returned.
var ErrDecryptFailed = errors.New("decryption failed")

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pb)
	return
}

// DH computes X25519 Diffie–Hellman.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	return out, nil
}

// DeriveSessionKey turns a DH shared secret into the pairing session key.
// Both ends of a pairing must derive byte-identical keys from their own
// private and the peer's public ephemeral.
func DeriveSessionKey(shared [32]byte) ([]byte, error) {
	r := hkdf.New(sha256.New, shared[:], nil, []byte(sessionKeyInfo))
	key := make([]byte, KeyBytes)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateRootKey returns a fresh symmetric root key.
func GenerateRootKey() ([]byte, error) {
	key := make([]byte, KeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext under key with ChaCha20-Poly1305 and a random
// nonce prefixed to the returned ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a Seal ciphertext. A wrong key or tampered ciphertext
// returns ErrDecryptFailed.
func Open(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSize {
		return nil, ErrDecryptFailed
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := ciphertext[:chacha20poly1305.NonceSize]
	pt, err := aead.Open(nil, nonce, ciphertext[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return pt, nil
}

// GenerateSigning returns a fresh Ed25519 device keypair.
func GenerateSigning() (pub domain.Ed25519Public, priv domain.Ed25519Private, err error) {
	p, k, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return pub, priv, err
	}
	copy(pub[:], p)
	copy(priv[:], k)
	return pub, priv, nil
}

// Sign signs msg with an Ed25519 private key.
func Sign(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(priv.Slice(), msg)
}

// Verify checks an Ed25519 signature.
func Verify(pub domain.Ed25519Public, msg, sig []byte) bool {
	return ed25519.Verify(pub.Slice(), msg, sig)
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
