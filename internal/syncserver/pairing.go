package syncserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"keysync/internal/crypto"
	"keysync/internal/domain"
)

// hashCode mirrors the client-side code hashing so claims can be matched
// without the server ever storing the code itself.
func hashCode(code string) string { return crypto.HashPairingCode(code) }

func (s *Server) pairingLocked(w http.ResponseWriter, r *http.Request) (*pairingRec, bool) {
	p, ok := s.pairings[mux.Vars(r)["id"]]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindPairingEnded, "no such pairing")
		return nil, false
	}
	s.expireLocked(p)
	return p, true
}

func (s *Server) handleCreatePairing(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID string              `json:"device_id"`
		CodeHash string              `json:"code_hash"`
		EphPub   domain.X25519Public `json:"eph_pub"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[in.DeviceID]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "no such device")
		return
	}
	if d.TrustState != domain.TrustTrusted {
		writeErr(w, http.StatusForbidden, domain.KindDeviceRevoked, "only a trusted device may issue pairings")
		return
	}
	if in.CodeHash == "" {
		writeErr(w, http.StatusBadRequest, domain.KindInitFailed, "code hash required")
		return
	}

	p := &pairingRec{
		id:             uuid.NewString(),
		codeHash:       in.CodeHash,
		issuerDeviceID: in.DeviceID,
		issuerEphPub:   in.EphPub,
		keyVersion:     s.keyVersion,
		requireSAS:     s.requireSAS,
		expiresAt:      s.now().Add(s.pairingTTL),
		status:         domain.PairingOpen,
	}
	s.pairings[p.id] = p
	s.log.Info("pairing created",
		zap.String("pairing", p.id), zap.String("issuer", in.DeviceID))
	writeJSON(w, http.StatusOK, domain.PairingCreated{
		PairingID:  p.id,
		ExpiresAt:  p.expiresAt,
		KeyVersion: p.keyVersion,
		RequireSAS: p.requireSAS,
	})
}

func (s *Server) handleGetPairing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairingLocked(w, r)
	if !ok {
		return
	}
	out := domain.PairingInfo{Status: p.status, ClaimerDeviceID: p.claimerDeviceID}
	if p.claimerDeviceID != "" {
		pub := p.claimerEphPub
		out.ClaimerEphPub = &pub
	}
	writeJSON(w, http.StatusOK, out)
}

// handleClaimPairing matches a one-time code against open sessions. One
// claim per session; a second claimer is turned away.
func (s *Server) handleClaimPairing(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID string              `json:"device_id"`
		Code     string              `json:"code"`
		EphPub   domain.X25519Public `json:"eph_pub"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[in.DeviceID]; !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "register before claiming")
		return
	}

	hash := hashCode(in.Code)
	var match *pairingRec
	for _, p := range s.pairings {
		s.expireLocked(p)
		if p.codeHash == hash {
			match = p
			break
		}
	}
	switch {
	case match == nil:
		writeErr(w, http.StatusNotFound, domain.KindPairingEnded, "no pairing for this code")
		return
	case match.status == domain.PairingExpired:
		writeErr(w, http.StatusGone, domain.KindPairingExpired, "pairing expired")
		return
	case match.status != domain.PairingOpen:
		writeErr(w, http.StatusConflict, domain.KindPairingEnded, "pairing already claimed or ended")
		return
	}

	match.status = domain.PairingClaimed
	match.claimerDeviceID = in.DeviceID
	match.claimerEphPub = in.EphPub
	s.log.Info("pairing claimed",
		zap.String("pairing", match.id), zap.String("claimer", in.DeviceID))
	writeJSON(w, http.StatusOK, domain.ClaimResult{
		PairingID:    match.id,
		IssuerEphPub: match.issuerEphPub,
		KeyVersion:   match.keyVersion,
		RequireSAS:   match.requireSAS,
		ExpiresAt:    match.expiresAt,
	})
}

func (s *Server) handlePairingMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairingLocked(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domain.Mailbox{
		Status:   p.status,
		Messages: append([]domain.PairingMessage(nil), p.messages...),
	})
}

func (s *Server) handleApprovePairing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairingLocked(w, r)
	if !ok {
		return
	}
	switch p.status {
	case domain.PairingClaimed:
		p.status = domain.PairingApproved
		w.WriteHeader(http.StatusNoContent)
	case domain.PairingExpired:
		writeErr(w, http.StatusGone, domain.KindPairingExpired, "pairing expired")
	case domain.PairingOpen:
		writeErr(w, http.StatusConflict, domain.KindClaimerNotFound, "no claimer yet")
	default:
		writeErr(w, http.StatusConflict, domain.KindPairingEnded, "pairing already ended")
	}
}

// handleCompletePairing accepts the sealed key bundle from the issuer. The
// payload is opaque to the server, but the proof must carry a signature
// verifying against the issuer device's registered public key.
func (s *Server) handleCompletePairing(w http.ResponseWriter, r *http.Request) {
	var msg domain.PairingMessage
	if !decodeBody(w, r, &msg) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairingLocked(w, r)
	if !ok {
		return
	}
	switch {
	case p.status == domain.PairingExpired:
		writeErr(w, http.StatusGone, domain.KindPairingExpired, "pairing expired")
		return
	case p.status == domain.PairingCancelled:
		writeErr(w, http.StatusConflict, domain.KindPairingEnded, "pairing cancelled")
		return
	case p.status == domain.PairingOpen:
		writeErr(w, http.StatusConflict, domain.KindClaimerNotFound, "no claimer connected")
		return
	case p.requireSAS && p.status != domain.PairingApproved:
		writeErr(w, http.StatusConflict, domain.KindInvalidSession, "session requires approval before transfer")
		return
	case p.status == domain.PairingCompleted:
		writeErr(w, http.StatusConflict, domain.KindPairingEnded, "transfer already completed")
		return
	}
	if len(msg.Ciphertext) == 0 || msg.Proof == "" {
		writeErr(w, http.StatusBadRequest, domain.KindInvalidSession, "ciphertext and proof required")
		return
	}
	issuer, ok := s.devices[p.issuerDeviceID]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "issuer no longer registered")
		return
	}
	var signPub domain.Ed25519Public
	copy(signPub[:], issuer.PublicKey)
	if !crypto.Verify(signPub, []byte(msg.Proof), msg.Signature) {
		writeErr(w, http.StatusForbidden, domain.KindInvalidSession,
			"proof signature does not match the issuer's device key")
		return
	}
	p.messages = append(p.messages, msg)
	p.status = domain.PairingCompleted
	s.log.Info("pairing completed", zap.String("pairing", p.id))
	w.WriteHeader(http.StatusNoContent)
}

// handleConfirmPairing records the claimer's acceptance and grants it trust
// at the session's key version.
func (s *Server) handleConfirmPairing(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Proof string `json:"proof"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairingLocked(w, r)
	if !ok {
		return
	}
	switch p.status {
	case domain.PairingExpired:
		writeErr(w, http.StatusGone, domain.KindPairingExpired, "pairing expired")
		return
	case domain.PairingCancelled:
		writeErr(w, http.StatusConflict, domain.KindPairingEnded, "pairing cancelled")
		return
	case domain.PairingCompleted:
	default:
		writeErr(w, http.StatusConflict, domain.KindNoClaim, "no completed transfer to confirm")
		return
	}
	if in.Proof == "" {
		writeErr(w, http.StatusBadRequest, domain.KindInvalidSession, "proof required")
		return
	}
	d, ok := s.devices[p.claimerDeviceID]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "claimer no longer registered")
		return
	}
	if p.keyVersion != s.keyVersion {
		writeErr(w, http.StatusConflict, domain.KindKeyVersionMismatch,
			"key epoch advanced during pairing; re-pair")
		return
	}
	d.TrustState = domain.TrustTrusted
	d.TrustedKeyVersion = p.keyVersion
	d.UpdatedAt = s.now()
	s.log.Info("pairing confirmed",
		zap.String("pairing", p.id), zap.String("claimer", d.ID))
	writeJSON(w, http.StatusOK, domain.ConfirmResult{KeyVersion: p.keyVersion})
}

// handleCancelPairing is best-effort: cancelling an already-terminal session
// succeeds.
func (s *Server) handleCancelPairing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairings[mux.Vars(r)["id"]]
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.expireLocked(p)
	switch p.status {
	case domain.PairingExpired, domain.PairingCompleted:
	default:
		p.status = domain.PairingCancelled
	}
	w.WriteHeader(http.StatusNoContent)
}
