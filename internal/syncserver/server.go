// Package syncserver implements the in-memory coordination server used in
// development and end-to-end tests. It stores code hashes, public keys and
// sealed ciphertexts only; plaintext key material never reaches it.
package syncserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"keysync/internal/domain"
)

const defaultPairingTTL = 10 * time.Minute

// Config carries the server's tunables. The zero value is usable.
type Config struct {
	Logger *zap.Logger
	// Now is the clock; overridable in tests to drive expiry.
	Now func() time.Time
	// PairingTTL bounds the life of a pairing session.
	PairingTTL time.Duration
	// AuthToken, when set, is required as a bearer token on every request.
	AuthToken string
	// RequireSAS makes issuers approve sessions before completing transfer.
	RequireSAS bool
}

type deviceRec struct {
	domain.Device
	nonce string
}

type pairingRec struct {
	id             string
	codeHash       string
	issuerDeviceID string
	issuerEphPub   domain.X25519Public
	keyVersion     int
	requireSAS     bool
	expiresAt      time.Time
	status         domain.PairingStatus

	claimerDeviceID string
	claimerEphPub   domain.X25519Public
	messages        []domain.PairingMessage
}

// Server holds one team's coordination state in memory. All state is lost on
// process exit, which is the point: it backs development and tests.
type Server struct {
	log        *zap.Logger
	now        func() time.Time
	pairingTTL time.Duration
	authToken  string
	requireSAS bool

	mu          sync.Mutex
	initialized bool
	keyVersion  int
	devices     map[string]*deviceRec
	nonces      map[string]string // device nonce -> device id
	pairings    map[string]*pairingRec
}

// New returns an empty Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PairingTTL <= 0 {
		cfg.PairingTTL = defaultPairingTTL
	}
	return &Server{
		log:        cfg.Logger,
		now:        cfg.Now,
		pairingTTL: cfg.PairingTTL,
		authToken:  cfg.AuthToken,
		requireSAS: cfg.RequireSAS,
		devices:    make(map[string]*deviceRec),
		nonces:     make(map[string]string),
		pairings:   make(map[string]*pairingRec),
	}
}

// Router mounts every endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.accessLog, s.auth)

	r.HandleFunc("/v1/devices/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/v1/team", s.handleTeam).Methods(http.MethodGet)
	r.HandleFunc("/v1/team/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/v1/team/reinitialize", s.handleReinitialize).Methods(http.MethodPost)

	r.HandleFunc("/v1/devices", s.handleListDevices).Methods(http.MethodGet)
	r.HandleFunc("/v1/devices/{id}", s.handleGetDevice).Methods(http.MethodGet)
	r.HandleFunc("/v1/devices/{id}", s.handleRenameDevice).Methods(http.MethodPatch)
	r.HandleFunc("/v1/devices/{id}/revoke", s.handleRevokeDevice).Methods(http.MethodPost)
	r.HandleFunc("/v1/devices/{id}", s.handleDeleteDevice).Methods(http.MethodDelete)

	r.HandleFunc("/v1/pairings", s.handleCreatePairing).Methods(http.MethodPost)
	r.HandleFunc("/v1/pairings/claim", s.handleClaimPairing).Methods(http.MethodPost)
	r.HandleFunc("/v1/pairings/{id}", s.handleGetPairing).Methods(http.MethodGet)
	r.HandleFunc("/v1/pairings/{id}/messages", s.handlePairingMessages).Methods(http.MethodGet)
	r.HandleFunc("/v1/pairings/{id}/approve", s.handleApprovePairing).Methods(http.MethodPost)
	r.HandleFunc("/v1/pairings/{id}/complete", s.handleCompletePairing).Methods(http.MethodPost)
	r.HandleFunc("/v1/pairings/{id}/confirm", s.handleConfirmPairing).Methods(http.MethodPost)
	r.HandleFunc("/v1/pairings/{id}/cancel", s.handleCancelPairing).Methods(http.MethodPost)

	return r
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.authToken {
				writeErr(w, http.StatusUnauthorized, domain.KindNoAccessToken, "missing or invalid token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := s.now()
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", s.now().Sub(start)),
		)
	})
}

// expireLocked advances a live session to expired once past its deadline.
func (s *Server) expireLocked(p *pairingRec) {
	switch p.status {
	case domain.PairingOpen, domain.PairingClaimed, domain.PairingApproved, domain.PairingCompleted:
		if s.now().After(p.expiresAt) {
			p.status = domain.PairingExpired
		}
	}
}

func (s *Server) trustedCountLocked() int {
	n := 0
	for _, d := range s.devices {
		if d.TrustState == domain.TrustTrusted {
			n++
		}
	}
	return n
}

func (s *Server) trustedDevicesLocked() []domain.Device {
	var out []domain.Device
	for _, d := range s.devices {
		if d.TrustState == domain.TrustTrusted {
			out = append(out, d.Device)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, kind domain.Kind, msg string) {
	writeJSON(w, status, struct {
		Error string      `json:"error"`
		Kind  domain.Kind `json:"kind"`
	}{msg, kind})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, domain.KindTransport, "malformed request body")
		return false
	}
	return true
}
