package syncserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"keysync/internal/domain"
)

// handleRegister enrolls a device, keyed by its (hashed-on-client, opaque
// here) device nonce so retries and concurrent calls stay idempotent. The
// first registration against an uninitialized epoch atomically initializes it
// and answers bootstrap; the loser of a bootstrap race simply receives pair.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DisplayName string               `json:"display_name"`
		Platform    string               `json:"platform"`
		DeviceNonce string               `json:"device_nonce"`
		SignPub     domain.Ed25519Public `json:"sign_pub"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.DeviceNonce == "" {
		writeErr(w, http.StatusBadRequest, domain.KindInitFailed, "device nonce required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.nonces[in.DeviceNonce]; ok {
		d := s.devices[id]
		out := domain.RegisterResult{DeviceID: d.ID, KeyVersion: s.keyVersion}
		switch d.TrustState {
		case domain.TrustTrusted:
			out.Mode = domain.ModeReady
		default:
			out.Mode = domain.ModePair
			out.TrustedDevices = s.trustedDevicesLocked()
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	now := s.now()
	d := &deviceRec{
		Device: domain.Device{
			ID:          uuid.NewString(),
			DisplayName: in.DisplayName,
			Platform:    in.Platform,
			TrustState:  domain.TrustUntrusted,
			PublicKey:   in.SignPub.Slice(),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		nonce: in.DeviceNonce,
	}
	s.devices[d.ID] = d
	s.nonces[in.DeviceNonce] = d.ID

	out := domain.RegisterResult{DeviceID: d.ID}
	if !s.initialized {
		s.initialized = true
		s.keyVersion++ // 1 on a fresh team; advances past a cleared epoch
		d.TrustState = domain.TrustTrusted
		d.TrustedKeyVersion = s.keyVersion
		out.Mode = domain.ModeBootstrap
		s.log.Info("epoch initialized",
			zap.String("device", d.ID), zap.Int("key_version", s.keyVersion))
	} else {
		out.Mode = domain.ModePair
		out.TrustedDevices = s.trustedDevicesLocked()
	}
	out.KeyVersion = s.keyVersion
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, domain.TeamInfo{
		Initialized:    s.initialized,
		KeyVersion:     s.keyVersion,
		TrustedDevices: s.trustedCountLocked(),
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.Device)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[mux.Vars(r)["id"]]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "no such device")
		return
	}
	writeJSON(w, http.StatusOK, d.Device)
}

func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DisplayName string `json:"display_name"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[mux.Vars(r)["id"]]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "no such device")
		return
	}
	d.DisplayName = in.DisplayName
	d.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, d.Device)
}

// handleRevokeDevice withdraws trust. The last trusted device cannot be
// revoked; the caller is redirected to a full team reset instead.
func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[mux.Vars(r)["id"]]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "no such device")
		return
	}
	if d.TrustState == domain.TrustTrusted && s.trustedCountLocked() == 1 {
		writeErr(w, http.StatusConflict, domain.KindLastTrustedDevice,
			"cannot revoke the last trusted device; reset team sync instead")
		return
	}
	d.TrustState = domain.TrustRevoked
	d.TrustedKeyVersion = 0
	d.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, d.Device)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	d, ok := s.devices[id]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "no such device")
		return
	}
	if d.TrustState == domain.TrustTrusted && s.trustedCountLocked() == 1 {
		writeErr(w, http.StatusConflict, domain.KindLastTrustedDevice,
			"cannot delete the last trusted device; reset team sync instead")
		return
	}
	delete(s.nonces, d.nonce)
	delete(s.devices, id)
	w.WriteHeader(http.StatusNoContent)
}

// handleReset rotates the key epoch: every other device drops back to
// untrusted, the version advances, and the caller is re-trusted at the new
// version. The caller generates the replacement root key locally. Peers are
// left untrusted rather than revoked so they detect STALE and re-pair;
// revoked is reserved for individually revoked devices, which must recover.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID string `json:"device_id"`
		Reason   string `json:"reason,omitempty"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	caller, ok := s.devices[in.DeviceID]
	if !ok {
		writeErr(w, http.StatusNotFound, domain.KindDeviceNotFound, "no such device")
		return
	}
	if caller.TrustState != domain.TrustTrusted {
		writeErr(w, http.StatusForbidden, domain.KindDeviceRevoked, "only a trusted device may reset")
		return
	}
	now := s.now()
	for _, d := range s.devices {
		if d.TrustState == domain.TrustTrusted {
			d.TrustState = domain.TrustUntrusted
			d.TrustedKeyVersion = 0
			d.UpdatedAt = now
		}
	}
	s.keyVersion++
	caller.TrustState = domain.TrustTrusted
	caller.TrustedKeyVersion = s.keyVersion
	caller.UpdatedAt = now
	s.log.Info("team sync reset",
		zap.String("device", caller.ID),
		zap.String("reason", in.Reason),
		zap.Int("key_version", s.keyVersion))
	writeJSON(w, http.StatusOK, domain.ResetResult{KeyVersion: s.keyVersion})
}

// handleReinitialize clears the epoch so a device can bootstrap again. Only
// valid while no trusted device remains (the orphaned team case).
func (s *Server) handleReinitialize(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trustedCountLocked() > 0 {
		writeErr(w, http.StatusConflict, domain.KindKeysAlreadyInitialized,
			"trusted devices exist; pair with one of them")
		return
	}
	s.initialized = false
	s.log.Info("epoch cleared", zap.Int("key_version", s.keyVersion))
	w.WriteHeader(http.StatusNoContent)
}
