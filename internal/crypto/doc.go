// Package crypto exposes the primitives the enrollment and pairing core
// orchestrates.
//
// Contents
//
//   - X25519 ephemeral key generation, clamping and Diffie–Hellman
//     (GenerateX25519, DH)
//   - HKDF-SHA256 session-key derivation with domain separation
//     (DeriveSessionKey)
//   - ChaCha20-Poly1305 AEAD with the nonce prefixed to the ciphertext
//     (Seal, Open)
//   - Ed25519 key generation, signing and verification (GenerateSigning,
//     Sign, Verify)
//   - One-time pairing codes over an unambiguous alphabet and their hashes
//     (GeneratePairingCode, HashPairingCode)
//   - Short human-comparable verification codes (VerificationCode)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//
// # Notes
//
// Fixed-size array types from internal/domain are used throughout to avoid
// accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on Wipe when practical to reduce lifetime in memory.
package crypto
