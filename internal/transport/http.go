// Package transport provides the operator HTTP API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/activitybot/internal/config"
	"github.com/gateway-fm/activitybot/internal/scheduler"
	"github.com/gateway-fm/activitybot/internal/storage"
	"github.com/gateway-fm/activitybot/pkg/types"
)

// Input validation constants
const (
	maxRepetitions = 1000      // Maximum repetitions per account and cycle
	maxAmount      = 1_000_000 // Maximum HLS per operation
	maxLogLimit    = 500       // Journal capacity
)

// validateConfigPatch checks the shape of a config edit. Range rules
// (positive values, min <= max) are enforced by the config store.
func validateConfigPatch(p *config.ActivityPatch) error {
	reps := []struct {
		key string
		v   *float64
	}{
		{"bridgeRepetitions", p.BridgeRepetitions},
		{"stakeRepetitions", p.StakeRepetitions},
	}
	amounts := []struct {
		key string
		v   *float64
	}{
		{"minHlsBridge", p.MinHlsBridge},
		{"maxHlsBridge", p.MaxHlsBridge},
		{"minHlsStake", p.MinHlsStake},
		{"maxHlsStake", p.MaxHlsStake},
	}

	set := 0
	for _, f := range reps {
		if f.v == nil {
			continue
		}
		set++
		if *f.v > maxRepetitions {
			return fmt.Errorf("%s exceeds maximum of %d", f.key, maxRepetitions)
		}
	}
	for _, f := range amounts {
		if f.v == nil {
			continue
		}
		set++
		if *f.v > maxAmount {
			return fmt.Errorf("%s exceeds maximum of %d", f.key, maxAmount)
		}
	}
	if set == 0 {
		return errors.New("at least one config field is required")
	}
	return nil
}

// ActivityAPI defines the interface for the activity bot that handlers need.
type ActivityAPI interface {
	Status() types.StatusSnapshot
	StartCycle() error
	StopCycle()

	GetConfig() types.ActivityConfig
	UpdateConfig(p config.ActivityPatch) (types.ActivityConfig, bool, error)

	Logs(limit int) []types.LogEvent
	ClearLogs()
	SubscribeLogs() (<-chan types.LogEvent, func())

	Wallets(ctx context.Context) []types.WalletInfo
	ClaimFaucet(ctx context.Context) ([]types.FaucetResult, error)

	// Persistent cycle history
	GetHistoryPaginated(limit, offset int) (*types.HistoryResponse, error)
	GetCycleRun(id string) (*types.CycleRun, error)
	GetCycleOperations(id string, limit, offset int) (*storage.PaginatedOperations, error)
	DeleteCycleRun(id string) error
}

// HealthChecker defines the interface for health checking.
type HealthChecker interface {
	CheckRPC() error
}

// Server handles HTTP requests for the activity bot.
type Server struct {
	api       ActivityAPI
	health    HealthChecker
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	// CORS configuration
	corsAllowedOrigins []string // Parsed list of allowed origins
	corsAllowAll       bool     // True if "*" or empty (allow all origins)
}

// NewServer creates a new HTTP server. Call Close to stop the status stream.
func NewServer(api ActivityAPI, health HealthChecker, logger *slog.Logger, corsAllowedOrigins string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	wsServer := NewWebSocketServer(api, logger)
	wsServer.Start()

	s := &Server{
		api:       api,
		health:    health,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  wsServer,
	}

	origins := strings.TrimSpace(corsAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}

	return s
}

// Close stops the WebSocket server and disconnects its clients.
func (s *Server) Close() {
	s.wsServer.Stop()
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/v1/cycle/start", s.corsMiddleware(s.handleStart))
	mux.HandleFunc("/v1/cycle/stop", s.corsMiddleware(s.handleStop))
	mux.HandleFunc("/v1/config", s.corsMiddleware(s.handleConfig))
	mux.HandleFunc("/v1/logs", s.corsMiddleware(s.handleLogs))
	mux.HandleFunc("/v1/wallets", s.corsMiddleware(s.handleWallets))
	mux.HandleFunc("/v1/faucet/claim", s.corsMiddleware(s.handleFaucet))
	mux.HandleFunc("/v1/history", s.corsMiddleware(s.handleHistory))
	mux.HandleFunc("/v1/history/", s.corsMiddleware(s.handleHistoryDetail))
	mux.HandleFunc("/v1/ws", s.wsServer.Handler())

	// Health endpoints (unversioned - standard Kubernetes checks)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes v as a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// pagination parses limit and offset query parameters.
func pagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

// handleStatus returns the current scheduler snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.api.Status())
}

// handleStart starts a cycle now.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.api.StartCycle(); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			s.writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, scheduler.ErrNoAccounts):
			s.writeJSONError(w, err.Error(), http.StatusPreconditionFailed)
		default:
			s.logger.Error("failed to start cycle", slog.String("error", err.Error()))
			s.writeJSONError(w, "Failed to start cycle: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, map[string]string{"status": "started"})
}

// handleStop requests a graceful stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.api.StopCycle()

	s.writeJSON(w, map[string]string{"status": string(s.api.Status().State)})
}

// handleConfig handles GET and PUT /v1/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, types.ConfigResponse{Config: s.api.GetConfig()})

	case http.MethodPut:
		var patch config.ActivityPatch
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&patch); err != nil {
			s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateConfigPatch(&patch); err != nil {
			s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
			return
		}

		cfg, changed, err := s.api.UpdateConfig(patch)
		if err != nil {
			if errors.Is(err, config.ErrInvalidConfig) {
				s.writeJSONError(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.writeJSONError(w, "Failed to save config: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, types.ConfigResponse{Config: cfg, Changed: changed})

	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLogs handles GET and DELETE /v1/logs.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := pagination(r, 100, maxLogLimit)
		s.writeJSON(w, map[string]any{"events": s.api.Logs(limit)})

	case http.MethodDelete:
		s.api.ClearLogs()
		s.writeJSON(w, map[string]bool{"cleared": true})

	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWallets refreshes and returns per-account balances.
func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]any{"wallets": s.api.Wallets(r.Context())})
}

// handleFaucet claims faucet funds for every loaded account.
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results, err := s.api.ClaimFaucet(r.Context())
	if err != nil {
		s.logger.Error("faucet claims interrupted", slog.String("error", err.Error()))
		// Still return the claims that ran
		s.writeJSON(w, map[string]any{
			"status":  "partial",
			"results": results,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, map[string]any{
		"status":  "done",
		"results": results,
	})
}

// handleHistory returns cycle history with optional pagination.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, offset := pagination(r, 50, 100)
	result, err := s.api.GetHistoryPaginated(limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to get history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, result)
}

// handleHistoryDetail handles /v1/history/{id} and /v1/history/{id}/operations.
func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/history/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		s.writeJSONError(w, "Missing cycle ID", http.StatusBadRequest)
		return
	}

	cycleID := parts[0]

	if len(parts) > 1 && parts[1] == "operations" {
		s.handleCycleOperations(w, r, cycleID)
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.api.DeleteCycleRun(cycleID); err != nil {
			s.writeJSONError(w, "Failed to delete cycle run: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, map[string]bool{"deleted": true})
		return
	}

	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	run, err := s.api.GetCycleRun(cycleID)
	if err != nil {
		s.writeJSONError(w, "Failed to get cycle run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		s.writeJSONError(w, "Cycle run not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, run)
}

// handleCycleOperations handles GET /v1/history/{id}/operations.
func (s *Server) handleCycleOperations(w http.ResponseWriter, r *http.Request, cycleID string) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, offset := pagination(r, 100, 1000)
	result, err := s.api.GetCycleOperations(cycleID, limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to get operations: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, result)
}

// handleHealth handles liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// ReadinessCheck represents a single readiness check result.
type ReadinessCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok", "failed"
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleReady handles readiness checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := []ReadinessCheck{}
	allHealthy := true

	if s.health != nil {
		start := time.Now()
		err := s.health.CheckRPC()

		check := ReadinessCheck{
			Name:      "rpc",
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
			allHealthy = false
		} else {
			check.Status = "ok"
		}
		checks = append(checks, check)
	}

	response := map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
