package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/poolboard/poolboard/internal/actions"
	"github.com/poolboard/poolboard/internal/dashboard"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/positions"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/poolboard/poolboard/internal/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var ErrInvalidRequest = errors.New("invalid request body")

// Board is the pool fetch-cycle owner.
type Board interface {
	Refresh(ctx context.Context, filterIDs []string) dashboard.State
	Snapshot() dashboard.State
	PoolIDs() []string
}

type PositionTracker interface {
	Sync(ctx context.Context, conn wallet.Connection, poolIDs []string) positions.Snapshot
}

// Session is the connected wallet. wallet.Bridge satisfies it.
type Session interface {
	wallet.Wallet
	Connect(addr string) error
	Disconnect()
}

type ActionRunner interface {
	Deposit(ctx context.Context, req actions.DepositRequest) (types.ActionResult, error)
	Withdraw(ctx context.Context, positionID string) (types.ActionResult, error)
	CollectRewards(ctx context.Context, positionID string) (types.ActionResult, error)
	Swap(ctx context.Context, req actions.SwapRequest) (types.ActionResult, error)
}

// Deps are the components the API serves.
type Deps struct {
	Board    Board
	Tracker  PositionTracker
	Session  Session
	Actions  ActionRunner
	Gatherer prometheus.Gatherer
}

// WebServer exposes the dashboard core as a JSON API.
type WebServer struct {
	router  *mux.Router
	port    string
	deps    Deps
	log     zerolog.Logger
	started time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, deps Deps) *WebServer {
	if port == "" {
		port = "8080"
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		deps:    deps,
		log:     logger.GetForComponent("web_server"),
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(ws.deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/latest", ws.handleGetLatestPools).Methods("GET")
	api.HandleFunc("/positions", ws.handleGetPositions).Methods("GET")

	api.HandleFunc("/wallet", ws.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallet/connect", ws.handleConnect).Methods("POST", "OPTIONS")
	api.HandleFunc("/wallet/disconnect", ws.handleDisconnect).Methods("POST", "OPTIONS")

	api.HandleFunc("/actions/deposit", ws.handleDeposit).Methods("POST", "OPTIONS")
	api.HandleFunc("/actions/withdraw", ws.handleWithdraw).Methods("POST", "OPTIONS")
	api.HandleFunc("/actions/collect", ws.handleCollect).Methods("POST", "OPTIONS")
	api.HandleFunc("/actions/swap", ws.handleSwap).Methods("POST", "OPTIONS")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the routed handler, for embedding and tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.log.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		ws.log.Info().Msg("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	state := ws.deps.Board.Snapshot()
	conn := ws.deps.Session.Connection()

	overallStatus := "OK"
	statusCode := http.StatusOK
	if state.Err != nil {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	var lastFetch *time.Time
	if !state.UpdatedAt.IsZero() {
		lastFetch = &state.UpdatedAt
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
			"name":    "poolboard",
			"version": "1.0.0",
		},
		"dashboard": map[string]interface{}{
			"pools":            len(state.Pools),
			"last_fetch":       lastFetch,
			"last_error":       state.Error,
			"wallet_connected": conn.Connected,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// parseIDs splits a comma separated id list, dropping blanks.
func parseIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// handleGetPools runs a fetch cycle. The body is the cycle state even on
// failure so a view can render its error line.
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	state := ws.deps.Board.Refresh(r.Context(), parseIDs(r.URL.Query().Get("ids")))
	statusCode := http.StatusOK
	if state.Err != nil {
		statusCode = statusFor(state.Err)
	}
	ws.writeJSONResponse(w, statusCode, state)
}

func (ws *WebServer) handleGetLatestPools(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.deps.Board.Snapshot())
}

// handleGetPositions syncs the tracker against the connected wallet and the
// pools of the last applied view.
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	snap := ws.deps.Tracker.Sync(r.Context(), ws.deps.Session.Connection(), ws.deps.Board.PoolIDs())
	statusCode := http.StatusOK
	if snap.Err != nil {
		statusCode = statusFor(snap.Err)
	}
	ws.writeJSONResponse(w, statusCode, snap)
}

func (ws *WebServer) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, connectionBody(ws.deps.Session.Connection()))
}

type connectRequest struct {
	Address string `json:"address"`
}

func connectionBody(conn wallet.Connection) map[string]interface{} {
	return map[string]interface{}{
		"connected": conn.Connected,
		"address":   conn.Address,
	}
}

func (ws *WebServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	if err := ws.deps.Session.Connect(req.Address); err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, connectionBody(ws.deps.Session.Connection()))
}

func (ws *WebServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ws.deps.Session.Disconnect()
	ws.writeJSONResponse(w, http.StatusOK, connectionBody(ws.deps.Session.Connection()))
}

type depositRequest struct {
	PoolID     string `json:"pool_id"`
	AmountA    string `json:"amount_a"`
	AmountB    string `json:"amount_b"`
	PositionID string `json:"position_id,omitempty"`
}

type positionRequest struct {
	PositionID string `json:"position_id"`
}

type swapRequest struct {
	AmountIn string `json:"amount_in"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// parseAmount reads a base-unit integer amount. An empty string is zero.
func parseAmount(field, raw string) (sdkmath.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, errors.Join(types.ErrInvalidAmount, errors.New(field+" must be an integer amount, got "+raw))
	}
	return v, nil
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	if req.PoolID == "" {
		ws.writeError(w, errors.Join(ErrInvalidRequest, errors.New("pool_id is required")))
		return
	}
	amountA, err := parseAmount("amount_a", req.AmountA)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	amountB, err := parseAmount("amount_b", req.AmountB)
	if err != nil {
		ws.writeError(w, err)
		return
	}

	res, err := ws.deps.Actions.Deposit(r.Context(), actions.DepositRequest{
		PoolID:     req.PoolID,
		AmountA:    amountA,
		AmountB:    amountB,
		PositionID: req.PositionID,
	})
	ws.writeActionResult(w, res, err)
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ws.handlePositionAction(w, r, ws.deps.Actions.Withdraw)
}

func (ws *WebServer) handleCollect(w http.ResponseWriter, r *http.Request) {
	ws.handlePositionAction(w, r, ws.deps.Actions.CollectRewards)
}

func (ws *WebServer) handlePositionAction(w http.ResponseWriter, r *http.Request, run func(context.Context, string) (types.ActionResult, error)) {
	var req positionRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	if req.PositionID == "" {
		ws.writeError(w, errors.Join(ErrInvalidRequest, errors.New("position_id is required")))
		return
	}
	res, err := run(r.Context(), req.PositionID)
	ws.writeActionResult(w, res, err)
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn)
	if err != nil {
		ws.writeError(w, err)
		return
	}

	res, err := ws.deps.Actions.Swap(r.Context(), actions.SwapRequest{
		AmountIn: amountIn,
		From:     req.From,
		To:       req.To,
	})
	ws.writeActionResult(w, res, err)
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

func (ws *WebServer) writeActionResult(w http.ResponseWriter, res types.ActionResult, err error) {
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrWalletRejected):
		return http.StatusConflict
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNoRouteFound),
		errors.Is(err, types.ErrNothingToCollect),
		errors.Is(err, types.ErrNothingToWithdraw):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrWalletDisconnected):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, wallet.ErrAddressInvalid):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrActionInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrNetwork),
		errors.Is(err, types.ErrMalformedData),
		errors.Is(err, wallet.ErrTxExecutionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes the error body. Action failures carry the action id and
// the phase that failed; a wallet rejection is flagged as cancelled.
func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	statusCode := statusFor(err)
	response := map[string]interface{}{
		"error":     true,
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	}

	var actionErr *types.ActionError
	if errors.As(err, &actionErr) {
		response["action_id"] = actionErr.ActionID
		response["kind"] = actionErr.Kind
		response["phase"] = actionErr.Phase
		response["target"] = actionErr.Target
	}
	if types.IsBenign(err) {
		response["cancelled"] = true
	}
	if statusCode == http.StatusInternalServerError {
		ws.log.Error().Err(err).Msg("Unclassified request failure")
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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

		ws.log.Info().
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
