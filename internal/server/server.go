// Package server is the thin HTTP layer over the gateway: the chat endpoint,
// health/stats reporting glue, the metrics scrape, and the admin surface.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate-ai/aegisgate/internal/auditlog"
	"github.com/aegisgate-ai/aegisgate/internal/config"
	"github.com/aegisgate-ai/aegisgate/internal/gateway"
	"github.com/aegisgate-ai/aegisgate/internal/keystore"
	"github.com/aegisgate-ai/aegisgate/internal/metrics"
	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

// Server wraps the HTTP components of AegisGate.
type Server struct {
	mux       *http.ServeMux
	cfg       *config.Config
	gw        *gateway.Gateway
	keys      *keystore.Store
	logs      *auditlog.Store
	audit     *auditlog.Emitter
	collector *metrics.Collector
	logger    *zap.Logger
}

// New creates a server with all routes registered.
func New(cfg *config.Config, gw *gateway.Gateway, keys *keystore.Store, logs *auditlog.Store, audit *auditlog.Emitter, collector *metrics.Collector, logger *zap.Logger) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		cfg:       cfg,
		gw:        gw,
		keys:      keys,
		logs:      logs,
		audit:     audit,
		collector: collector,
		logger:    logger,
	}

	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/api/v1/chat", s.handleChat)
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/stats", s.handleStats)

	if cfg.Metrics.Enabled {
		s.mux.Handle("/metrics", collector.Handler())
	}

	s.mux.HandleFunc("/api/admin/keys", s.requireAdmin(s.handleAdminKeys))
	s.mux.HandleFunc("/api/admin/keys/", s.requireAdmin(s.handleAdminKeyByID))
	s.mux.HandleFunc("/api/admin/logs", s.requireAdmin(s.handleAdminLogs))
	s.mux.HandleFunc("/api/admin/stats", s.requireAdmin(s.handleAdminStats))

	return s
}

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.logger.Info("AegisGate running", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.mux)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte("Commercial AI Safety API"))
}

// --- Chat endpoint ---

type chatRequest struct {
	Text           string `json:"text"`
	APIKey         string `json:"apiKey"`
	ClientID       string `json:"clientId"`
	ConversationID string `json:"conversationId"`
	Context        string `json:"context"`
}

type chatSuccessResponse struct {
	Success     bool   `json:"success"`
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	IsSafe      bool   `json:"is_safe"`
	SafetyScore int    `json:"safety_score"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Response    any    `json:"response"`
	Timestamp   string `json:"timestamp"`
}

type chatBlockedResponse struct {
	Success     bool   `json:"success"`
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	IsSafe      bool   `json:"is_safe"`
	SafetyScore int    `json:"safety_score"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Action      string `json:"action"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
}

type chatAuthErrorResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type simpleErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, simpleErrorResponse{
			Success:   false,
			Error:     "Invalid JSON body",
			Timestamp: now(),
		})
		return
	}

	if body.Text == "" || body.APIKey == "" || body.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, simpleErrorResponse{
			Success:   false,
			Error:     "Missing required fields: text, apiKey, clientId",
			Timestamp: now(),
		})
		return
	}

	out := s.gw.Process(r.Context(), gateway.Request{
		Text:           body.Text,
		APIKey:         body.APIKey,
		ClientID:       body.ClientID,
		ConversationID: body.ConversationID,
		Context:        body.Context,
		IPAddress:      remoteIP(r),
		UserAgent:      r.UserAgent(),
	})

	switch out.Status {
	case gateway.StatusSuccess:
		writeJSON(w, http.StatusOK, chatSuccessResponse{
			Success:     true,
			RequestID:   out.RequestID,
			Status:      out.Status,
			IsSafe:      true,
			SafetyScore: out.Detection.RiskScore,
			Category:    out.Detection.Category,
			Severity:    string(out.Detection.Severity),
			Response:    out.Reply,
			Timestamp:   now(),
		})

	case gateway.StatusBlocked:
		writeJSON(w, http.StatusOK, chatBlockedResponse{
			Success:     false,
			RequestID:   out.RequestID,
			Status:      out.Status,
			IsSafe:      false,
			SafetyScore: out.Detection.RiskScore,
			Category:    out.Detection.Category,
			Severity:    string(out.Detection.Severity),
			Action:      string(out.Action),
			Message:     out.Message,
			Timestamp:   now(),
		})

	default:
		if out.Err == gateway.ErrInvalidClient {
			writeJSON(w, http.StatusUnauthorized, chatAuthErrorResponse{
				Success:   false,
				RequestID: out.RequestID,
				Status:    "error",
				Error:     gateway.ErrInvalidClient,
				Timestamp: now(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, simpleErrorResponse{
			Success:   false,
			Error:     "Internal server error",
			Message:   out.Err,
			Timestamp: now(),
		})
	}
}

// --- Health & stats ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dbStatus := "connected"
	if err := s.logs.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": now(),
		"services": map[string]string{
			"database": dbStatus,
			"api":      "active",
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp":     now(),
		"system_status": "healthy",
		"api_version":   "v1",
		"rules_loaded":  len(rules.All()),
		"endpoints": map[string]string{
			"chat":    "/api/v1/chat",
			"health":  "/api/v1/health",
			"stats":   "/api/v1/stats",
			"metrics": "/metrics",
		},
		"features": map[string]bool{
			"safety_detection": true,
			"llm_response":     true,
			"request_logging":  true,
			"audit_trail":      true,
		},
		"detection_categories": rules.Categories(),
	})
}

// --- Admin surface ---

// requireAdmin gates a handler behind the static admin token. No token
// configured means the whole admin surface is off.
func (s *Server) requireAdmin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Admin.Token == "" {
			writeJSON(w, http.StatusForbidden, simpleErrorResponse{
				Success:   false,
				Error:     "Admin interface disabled",
				Timestamp: now(),
			})
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Admin.Token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, simpleErrorResponse{
				Success:   false,
				Error:     "Invalid admin token",
				Timestamp: now(),
			})
			return
		}
		h(w, r)
	}
}

type createKeyRequest struct {
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

func (s *Server) handleAdminKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body createKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, simpleErrorResponse{
				Success: false, Error: "Invalid JSON body", Timestamp: now(),
			})
			return
		}
		k, err := s.keys.Create(r.Context(), body.Name, body.OwnerID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, simpleErrorResponse{
				Success: false, Error: err.Error(), Timestamp: now(),
			})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"key":     k,
		})

	case http.MethodGet:
		owner := r.URL.Query().Get("owner_id")
		if owner == "" {
			writeJSON(w, http.StatusBadRequest, simpleErrorResponse{
				Success: false, Error: "Missing owner_id", Timestamp: now(),
			})
			return
		}
		keys, err := s.keys.ListByOwner(r.Context(), owner)
		if err != nil {
			s.logger.Error("list keys failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, simpleErrorResponse{
				Success: false, Error: "Internal server error", Timestamp: now(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"keys":    keys,
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAdminKeyByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/api/admin/keys/"):]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	var err error
	switch {
	case r.Method == http.MethodDelete:
		err = s.keys.Delete(r.Context(), id)
	case r.Method == http.MethodPost && r.URL.Query().Get("action") == "deactivate":
		err = s.keys.Deactivate(r.Context(), id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err == keystore.ErrNotFound {
		writeJSON(w, http.StatusNotFound, simpleErrorResponse{
			Success: false, Error: "Key not found", Timestamp: now(),
		})
		return
	}
	if err != nil {
		s.logger.Error("key update failed", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, simpleErrorResponse{
			Success: false, Error: "Internal server error", Timestamp: now(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAdminLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := auditlog.RecentQuery{
		ClientID: r.URL.Query().Get("client_id"),
		Action:   r.URL.Query().Get("action"),
		Limit:    intParam(r, "limit"),
		Offset:   intParam(r, "offset"),
	}

	entries, err := s.logs.Recent(r.Context(), q)
	if err != nil {
		s.logger.Error("query logs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, simpleErrorResponse{
			Success: false, Error: "Internal server error", Timestamp: now(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"logs":    entries,
	})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	byAction, err := s.logs.CountByAction(r.Context())
	if err != nil {
		s.logger.Error("count by action failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, simpleErrorResponse{
			Success: false, Error: "Internal server error", Timestamp: now(),
		})
		return
	}
	byCategory, err := s.logs.CountByCategory(r.Context())
	if err != nil {
		s.logger.Error("count by category failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, simpleErrorResponse{
			Success: false, Error: "Internal server error", Timestamp: now(),
		})
		return
	}

	snap := s.audit.MetricsSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"timestamp":   now(),
		"by_action":   byAction,
		"by_category": byCategory,
		"audit_queue": map[string]uint64{
			"enqueued": snap.Enqueued(),
			"dropped":  snap.Dropped(),
		},
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
