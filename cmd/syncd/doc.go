// Command syncd runs the in-memory coordination server used by keysync
// during development and tests. It registers devices, brokers pairing
// sessions and tracks the team's key epoch.
//
// HTTP API
//
//	POST /v1/devices/register
//	    Enroll a device, keyed by its opaque device nonce. The first
//	    registration against an uninitialized epoch answers mode=bootstrap
//	    and trusts the device at key version 1.
//
//	GET /v1/team
//	    Current epoch: initialized flag, key version, trusted-device count.
//
//	GET /v1/devices
//	GET /v1/devices/{id}
//	PATCH /v1/devices/{id}
//	POST /v1/devices/{id}/revoke
//	DELETE /v1/devices/{id}
//	    Device management. Revoking or deleting the last trusted device is
//	    rejected; reset the team instead.
//
//	POST /v1/pairings
//	GET /v1/pairings/{id}
//	POST /v1/pairings/claim
//	GET /v1/pairings/{id}/messages
//	POST /v1/pairings/{id}/approve
//	POST /v1/pairings/{id}/complete
//	POST /v1/pairings/{id}/confirm
//	POST /v1/pairings/{id}/cancel
//	    Pairing session lifecycle. The server stores the code hash, the
//	    ephemeral public keys and the sealed ciphertext; it can never read
//	    the transferred key material. Completion requires a proof signed by
//	    the issuer's registered device key.
//
//	POST /v1/team/reset
//	POST /v1/team/reinitialize
//	    Key-epoch rotation and orphaned-team recovery.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON; errors carry {error, kind} with kinds matching the
//     client-side taxonomy.
//   - Pairing sessions expire lazily after their TTL (default 10 minutes).
//   - With -token set, every request must carry the bearer token.
//
// The server is an untrusted middleman by design: it only ever sees hashes,
// public keys and ciphertext.
package main
