package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muscleupgym/gymgate/internal/devicelink"
	"github.com/muscleupgym/gymgate/internal/gymgate/service"
	"github.com/muscleupgym/gymgate/internal/gymgate/store"
	"github.com/muscleupgym/gymgate/internal/gymgate/types"
	"github.com/muscleupgym/gymgate/internal/metrics"
)

// DeviceLink is the slice of *devicelink.Link the API drives. Tests
// substitute a fake.
type DeviceLink interface {
	ConnectDevice(ctx context.Context) (types.DeviceInfo, error)
	DisconnectDevice(ctx context.Context) error
	GetDeviceInfo(ctx context.Context) (types.DeviceInfo, error)
	SyncTemplates(ctx context.Context, page, pageSize int) (types.SyncResult, error)
	EnrollUser(ctx context.Context, userID, userName string, fingerIndex int) (types.EnrollResult, error)
	State() devicelink.State
	IsDeviceConnected() bool
}

type Dependencies struct {
	Logger        *log.Logger
	Addr          string
	AccessService *service.AccessService
	Link          DeviceLink
	LogStore      store.AccessLogStore

	// AuthSecret enables bearer auth on management endpoints when set.
	AuthSecret string
	TokenTTL   time.Duration
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	access     *service.AccessService
	link       DeviceLink
	logStore   store.AccessLogStore
	issuer     *tokenIssuer
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:   d.Logger,
		mux:      mux,
		access:   d.AccessService,
		link:     d.Link,
		logStore: d.LogStore,
		issuer:   newTokenIssuer(d.AuthSecret, d.TokenTTL),
	}

	// Decision endpoint: open CORS, no auth, always 200 with an in-band
	// payload so the reader relay's retry logic stays simple.
	mux.HandleFunc("POST /v1/access/validate", corsOpen(s.handleValidate))
	mux.HandleFunc("OPTIONS /v1/access/validate", corsOpen(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Management API (enrollment console).
	mux.HandleFunc("GET /v1/access/logs", s.requireAuth(s.handleRecentLogs))
	mux.HandleFunc("POST /v1/device/connect", s.requireAuth(s.handleDeviceConnect))
	mux.HandleFunc("POST /v1/device/disconnect", s.requireAuth(s.handleDeviceDisconnect))
	mux.HandleFunc("GET /v1/device/info", s.requireAuth(s.handleDeviceInfo))
	mux.HandleFunc("GET /v1/device/status", s.requireAuth(s.handleDeviceStatus))
	mux.HandleFunc("POST /v1/device/sync", s.requireAuth(s.handleDeviceSync))
	mux.HandleFunc("POST /v1/device/enroll", s.requireAuth(s.handleDeviceEnroll))

	if s.issuer != nil {
		mux.HandleFunc("POST /v1/auth/token", s.handleToken)
	}

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Decision endpoint ────────────────────────────────────────────────────────

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req types.DecisionRequest
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(&req); err != nil {
		// Still HTTP 200: errors are modeled in-band for the relay.
		res := types.DecisionResult{
			UserName: "Error",
			Reason:   "invalid request body",
		}
		metrics.Decisions.WithLabelValues(metrics.DecisionResult(res.AccessGranted, res.SystemError)).Inc()
		metrics.ValidationSeconds.Observe(0)
		writeJSON(w, http.StatusOK, res)
		return
	}

	res := s.access.Decide(r.Context(), req)

	metrics.Decisions.WithLabelValues(metrics.DecisionResult(res.AccessGranted, res.SystemError)).Inc()
	metrics.ValidationSeconds.Observe(float64(res.ValidationTimeMs) / 1000)

	writeJSON(w, http.StatusOK, res)
}

// ── Management endpoints ─────────────────────────────────────────────────────

func (s *Server) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	info, err := s.link.ConnectDevice(r.Context())
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeviceDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.link.DisconnectDevice(r.Context()); err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.link.GetDeviceInfo(r.Context())
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"linkState":       s.link.State().String(),
		"deviceConnected": s.link.IsDeviceConnected(),
	})
}

type syncRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

func (s *Server) handleDeviceSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}

	res, err := s.link.SyncTemplates(r.Context(), req.Page, req.PageSize)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type enrollRequest struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	FingerIndex int    `json:"fingerIndex"`
}

func (s *Server) handleDeviceEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "userId is required")
		return
	}

	res, err := s.link.EnrollUser(r.Context(), req.UserID, req.UserName, req.FingerIndex)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type logEntry struct {
	ID              string `json:"id"`
	UserID          string `json:"userId,omitempty"`
	DeviceID        string `json:"deviceId"`
	AccessType      string `json:"accessType"`
	AccessMethod    string `json:"accessMethod"`
	Success         bool   `json:"success"`
	DenialReason    string `json:"denialReason,omitempty"`
	DeviceUserID    int    `json:"deviceUserId,omitempty"`
	DeviceTimestamp string `json:"deviceTimestamp,omitempty"`
	RecordedAt      string `json:"recordedAt"`
}

func (s *Server) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}

	recs, err := s.logStore.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Printf("recent logs error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	out := make([]logEntry, 0, len(recs))
	for _, rec := range recs {
		e := logEntry{
			ID:           rec.ID,
			UserID:       rec.UserID,
			DeviceID:     rec.DeviceID,
			AccessType:   rec.AccessType,
			AccessMethod: rec.AccessMethod,
			Success:      rec.Success,
			DenialReason: rec.DenialReason,
			DeviceUserID: rec.DeviceUserID,
			RecordedAt:   rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		}
		if rec.DeviceTimestamp != nil {
			e.DeviceTimestamp = rec.DeviceTimestamp.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, e)
	}

	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}

// ── Auth & health ────────────────────────────────────────────────────────────

type tokenRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	if !s.issuer.authorize(req.Secret) {
		writeError(w, http.StatusUnauthorized, "invalid_secret", "invalid operator secret")
		return
	}

	token, expiresAt, err := s.issuer.issue()
	if err != nil {
		s.logger.Printf("token issue error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"deviceConnected": s.link.IsDeviceConnected(),
	})
}
