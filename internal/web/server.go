package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/crosschain"
	"github.com/beethovenx/vegov/internal/governor"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/metrics"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/utils"
	"github.com/beethovenx/vegov/internal/voting"
	"github.com/beethovenx/vegov/internal/votetx"
)

// SyncService is the part of the cross-chain service the API exposes.
type SyncService interface {
	Last() (crosschain.Snapshot, bool)
	Sync(ctx context.Context, chainID uint64) (*ethtypes.Transaction, error)
}

// TxLogReader lists an account's local transaction log.
type TxLogReader interface {
	List(ctx context.Context, account string) ([]types.TxLogEntry, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires a WebServer. Sync, TxLog, Metrics and Store may be nil.
type Options struct {
	Port     string
	Account  common.Address
	Networks []config.Network
	Governor *governor.Governor
	Sync     SyncService
	TxLog    TxLogReader
	Metrics  *metrics.Metrics
	Store    Pinger
}

// WebServer serves the voting session, sync state and metrics over HTTP.
type WebServer struct {
	router  *mux.Router
	port    string
	opts    Options
	started time.Time
	logger  zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) *WebServer {
	if opts.Port == "" {
		opts.Port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    opts.Port,
		opts:    opts,
		started: time.Now(),
		logger:  logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, e.g. for httptest.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.opts.Metrics != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(ws.opts.Metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api.HandleFunc("/voting/session", ws.handleGetSession).Methods("GET")
	api.HandleFunc("/voting/toggle/{gauge}", ws.handleToggle).Methods("POST")
	api.HandleFunc("/voting/weight/{gauge}", ws.handleSetWeight).Methods("PUT")
	api.HandleFunc("/voting/load", ws.handleLoad).Methods("POST")
	api.HandleFunc("/voting/reset", ws.handleReset).Methods("POST")
	api.HandleFunc("/voting/confirmed", ws.handleConfirmed).Methods("GET")
	api.HandleFunc("/voting/plan", ws.handlePlan).Methods("GET")
	api.HandleFunc("/voting/submit", ws.handleSubmit).Methods("POST")
	api.HandleFunc("/voting/cancel", ws.handleCancel).Methods("POST")

	api.HandleFunc("/sync", ws.handleGetSync).Methods("GET")
	api.HandleFunc("/sync/{network}", ws.handleSync).Methods("POST")
	api.HandleFunc("/txlog", ws.handleTxLog).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:        ":" + ws.port,
		Handler:     ws.router,
		ReadTimeout: 15 * time.Second,
		// Vote submission waits for confirmations.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ws.logger.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth returns server health; a failing store or degraded sync data
// reports 503.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	storeHealthy := true
	if ws.opts.Store != nil {
		if err := ws.opts.Store.Ping(r.Context()); err != nil {
			ws.logger.Warn().Err(err).Msg("Store health check failed")
			storeHealthy = false
			hasErrors = true
		}
	}

	syncInfo := map[string]interface{}{"available": false}
	if ws.opts.Sync != nil {
		if snap, ok := ws.opts.Sync.Last(); ok {
			syncInfo = map[string]interface{}{
				"available":  true,
				"has_error":  snap.HasError,
				"updated_at": snap.UpdatedAt,
			}
			hasErrors = hasErrors || snap.HasError
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "vegov",
			"account": ws.opts.Account.Hex(),
		},
		"status_detail": map[string]interface{}{
			"store_healthy": storeHealthy,
			"voting_phase":  ws.session().Phase(),
			"sync":          syncInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) session() *voting.Session { return ws.opts.Governor.Session() }

func (ws *WebServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.session().Snapshot())
}

func (ws *WebServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	gauge, ok := ws.gaugeVar(w, r)
	if !ok {
		return
	}
	pool, found := ws.session().PoolByGauge(gauge)
	if !found {
		ws.writeError(w, voting.ErrUnknownGauge)
		return
	}
	if err := ws.session().ToggleSelection(pool); err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.session().Snapshot())
}

type weightRequest struct {
	Weight string `json:"weight"`
}

func (ws *WebServer) handleSetWeight(w http.ResponseWriter, r *http.Request) {
	gauge, ok := ws.gaugeVar(w, r)
	if !ok {
		return
	}
	var body weightRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ws.session().SetWeight(gauge, body.Weight); err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.session().Snapshot())
}

func (ws *WebServer) handleLoad(w http.ResponseWriter, r *http.Request) {
	s := ws.session()
	if err := s.LoadRequestWithExistingVotes(s.Pools()); err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, s.Snapshot())
}

func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	ws.opts.Governor.ResetSession()
	ws.writeJSONResponse(w, http.StatusOK, ws.session().Snapshot())
}

func (ws *WebServer) handleConfirmed(w http.ResponseWriter, r *http.Request) {
	request := ws.session().ConfirmedVotingRequest()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"votes": request,
		"count": len(request),
	})
}

func (ws *WebServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	steps, err := ws.opts.Governor.PreviewPlan()
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"steps": steps})
}

func (ws *WebServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	plan, receipts, err := ws.opts.Governor.SubmitVotes(r.Context())
	if err != nil && plan == nil {
		ws.writeError(w, err)
		return
	}
	response := map[string]interface{}{
		"steps":     plan.View(),
		"confirmed": len(receipts),
		"completed": err == nil,
	}
	if err != nil {
		ws.logger.Error().Err(err).Msg("Vote submission failed")
		response["error"] = err.Error()
		ws.writeJSONResponse(w, http.StatusBadGateway, response)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	ws.opts.Governor.CancelSubmission()
	ws.writeJSONResponse(w, http.StatusOK, ws.session().Snapshot())
}

func (ws *WebServer) handleGetSync(w http.ResponseWriter, r *http.Request) {
	if ws.opts.Sync == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Sync service not configured")
		return
	}
	snap, ok := ws.opts.Sync.Last()
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Sync state not loaded yet")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snap)
}

func (ws *WebServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if ws.opts.Sync == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Sync service not configured")
		return
	}
	network, err := resolveNetwork(ws.opts.Networks, mux.Vars(r)["network"])
	if err != nil {
		ws.writeError(w, err)
		return
	}
	tx, err := ws.opts.Sync.Sync(r.Context(), network.ChainID)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"network": network.ChainID,
		"txHash":  tx.Hash().Hex(),
	})
}

func (ws *WebServer) handleTxLog(w http.ResponseWriter, r *http.Request) {
	if ws.opts.TxLog == nil {
		ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"entries": []types.TxLogEntry{}, "count": 0})
		return
	}
	entries, err := ws.opts.TxLog.List(r.Context(), ws.opts.Account.Hex())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to list transaction log")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve transaction log")
		return
	}

	limit := len(entries)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"entries": entries[:limit],
		"count":   limit,
	})
}

// resolveNetwork accepts a network key ("arbitrum") or a chain id ("42161").
func resolveNetwork(networks []config.Network, v string) (config.Network, error) {
	if id, err := strconv.ParseUint(v, 10, 64); err == nil {
		return config.NetworkByID(networks, id)
	}
	return config.NetworkByKey(networks, v)
}

func (ws *WebServer) gaugeVar(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := mux.Vars(r)["gauge"]
	if !common.IsHexAddress(v) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid gauge address")
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, voting.ErrUnknownGauge):
		return http.StatusNotFound
	case errors.Is(err, voting.ErrSubmissionInProgress), errors.Is(err, votetx.ErrStepInFlight):
		return http.StatusConflict
	case errors.Is(err, governor.ErrNoVoteDeps), errors.Is(err, crosschain.ErrReadOnly):
		return http.StatusServiceUnavailable
	case errors.Is(err, voting.ErrNotSelected),
		errors.Is(err, voting.ErrInputDisabled),
		errors.Is(err, voting.ErrTooManySelections),
		errors.Is(err, voting.ErrWeightOutOfRange),
		errors.Is(err, voting.ErrInvalidRequest),
		errors.Is(err, votetx.ErrEmptyRequest),
		errors.Is(err, votetx.ErrTooManyVotes),
		errors.Is(err, votetx.ErrInvalidWeight),
		errors.Is(err, utils.ErrConversionFailed),
		errors.Is(err, utils.ErrAmountNegative),
		errors.Is(err, utils.ErrOutOfRange),
		errors.Is(err, config.ErrUnknownNetwork),
		errors.Is(err, config.ErrMissingContract),
		errors.Is(err, crosschain.ErrSyncNotSupported):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		ws.logger.Error().Err(err).Msg("Request failed")
	}
	ws.writeErrorResponse(w, status, err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
