package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

const (
	// PairingCodeLength is the fixed length of one-time pairing codes.
	PairingCodeLength = 6

	// pairingCodeAlphabet omits 0/O, 1/I/L to stay unambiguous when read
	// aloud or retyped.
	pairingCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	sasInfo = "keysync/sas/v1"
)

// GeneratePairingCode returns a short one-time code for display on the
// issuing device.
func GeneratePairingCode() (string, error) {
	max := big.NewInt(int64(len(pairingCodeAlphabet)))
	buf := make([]byte, PairingCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = pairingCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// HashPairingCode returns the hex SHA-256 of a pairing code. The server only
// ever sees the hash.
func HashPairingCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerificationCode derives the six-digit SAS from a pairing session key.
// Both sides compute it independently; matching codes rule out an
// interposed key exchange.
func VerificationCode(sessionKey []byte) (string, error) {
	r := hkdf.New(sha256.New, sessionKey, nil, []byte(sasInfo))
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1_000_000
	return fmt.Sprintf("%06d", n), nil
}

// CompletionProof binds the issuer's transfer to {pairingID, keyVersion}
// under the session key.
func CompletionProof(sessionKey []byte, pairingID string, keyVersion int) string {
	return proof(sessionKey, "complete", pairingID, keyVersion)
}

// ConfirmProof binds the claimer's acceptance to {pairingID, keyVersion}
// under the session key.
func ConfirmProof(sessionKey []byte, pairingID string, keyVersion int) string {
	return proof(sessionKey, "confirm", pairingID, keyVersion)
}

func proof(sessionKey []byte, context, pairingID string, keyVersion int) string {
	mac := hmac.New(sha256.New, sessionKey)
	mac.Write([]byte(context))
	mac.Write([]byte{0})
	mac.Write([]byte(pairingID))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.Itoa(keyVersion)))
	return hex.EncodeToString(mac.Sum(nil))
}
