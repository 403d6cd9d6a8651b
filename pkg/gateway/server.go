package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/hive/internal/observability"
	"github.com/harun/hive/internal/tracing"
	"github.com/harun/hive/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// SecretHeader carries the shared secret on plain HTTP requests
const SecretHeader = "X-Hive-Secret"

// AgentSource resolves the agents a gateway can run
type AgentSource interface {
	Entry() *agent.Agent
	Agent(name string) (*agent.Agent, bool)
	Names() []string
	Describe(name string) string
}

// Server exposes agent runs to WebSocket and HTTP clients
type Server struct {
	host           string
	port           int
	tickInterval   time.Duration
	server         *http.Server
	listener       net.Listener
	upgrader       websocket.Upgrader
	clients        *ClientRegistry
	router         *RPCRouter
	authHandler    *AuthHandler
	broadcaster    *EventBroadcaster
	runner         *agent.Runner
	agents         AgentSource
	runOptions     []agent.RunOption
	limits         [3]int
	logger         zerolog.Logger
	baseCtx        context.Context
	cancelBase     context.CancelFunc
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	tickCancel     context.CancelFunc
	tickWG         sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	TickInterval time.Duration
	Runner       *agent.Runner
	Agents       AgentSource

	// RunOptions apply to every run started through the gateway
	RunOptions []agent.RunOption

	RequestsPerMinute int
	Burst             int
	MaxConcurrent     int

	Logger zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.Agents == nil || cfg.Agents.Entry() == nil {
		return nil, fmt.Errorf("agent source with an entry agent is required")
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 30 * time.Second
	}

	clients := NewClientRegistry()
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		tickInterval: cfg.TickInterval,
		clients:      clients,
		router:       NewRPCRouter(),
		authHandler:  NewAuthHandler(cfg.SharedSecret),
		broadcaster:  NewEventBroadcaster(clients, cfg.Logger),
		runner:       cfg.Runner,
		agents:       cfg.Agents,
		runOptions:   cfg.RunOptions,
		limits:       [3]int{cfg.RequestsPerMinute, cfg.Burst, cfg.MaxConcurrent},
		logger:       cfg.Logger.With().Str("component", "gateway").Logger(),
		baseCtx:      baseCtx,
		cancelBase:   cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.registerBuiltinMethods()

	return s, nil
}

// Handler returns the HTTP handler serving /ws, /rpc, /metrics and /healthz
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Strs("methods", s.router.GetMethods()).
		Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	s.startTickEmitter()
	return nil
}

// Addr returns the bound address once Start has succeeded
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop rejects new clients, waits for in-flight requests until ctx is done,
// then cancels remaining runs and closes every connection.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")
	s.stopTickEmitter()

	s.broadcaster.Broadcast("server.shutdown", map[string]any{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, cancelling runs")
	}
	s.cancelBase()

	for _, client := range s.clients.GetAll() {
		_ = client.Close()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) startTickEmitter() {
	if s.tickInterval <= 0 {
		return
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.tickWG.Add(1)

	go func() {
		defer s.tickWG.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.broadcaster.Broadcast("tick", map[string]any{
					"status":  "alive",
					"clients": s.clients.Count(),
				})
			}
		}
	}()
}

func (s *Server) stopTickEmitter() {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	s.tickWG.Wait()
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// trackRequest counts a request as in flight unless shutdown has begun.
// Stop sets the flag under the write lock, so no request is added after its
// Wait starts.
func (s *Server) trackRequest() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

func (s *Server) newClient(ip string, conn *websocket.Conn) *Client {
	now := time.Now()
	return &Client{
		ID:           gonanoid.Must(),
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    ip,
		RateLimiter:  NewClientRateLimiter(s.limits[0], s.limits[1], s.limits[2]),
		State:        StateConnecting,
		Session:      NewSession(s.agents.Entry()),
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		observability.RecordGatewayReject("shutdown")
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := s.newClient(r.RemoteAddr, conn)
	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", client.ID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	if err := s.sendAuthChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth challenge")
		_ = conn.Close()
		s.clients.Remove(client.ID)
		return
	}

	go s.handleClient(client)
}

func (s *Server) sendAuthChallenge(client *Client) error {
	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}

	client.Challenge = challenge
	client.State = StateAuthenticating

	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

func (s *Server) handleClient(client *Client) {
	defer func() {
		_ = client.Close()
		client.State = StateDisconnected
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.UpdateActivity(client.ID)

		if !s.handleMessage(client, message) {
			return
		}
	}
}

// handleMessage processes one frame. It returns false when the connection
// must be dropped.
func (s *Server) handleMessage(client *Client, message []byte) bool {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		return s.handleAuthMessage(client, authResp)
	}

	if !client.Authenticated {
		observability.RecordGatewayReject("unauthenticated")
		s.sendError(client, "", AuthenticationRequired, "Authentication required")
		return true
	}

	req, err := s.router.ParseRequest(message)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			s.sendError(client, "", rpcErr.Code, rpcErr.Message)
		} else {
			s.sendError(client, "", ParseError, err.Error())
		}
		return true
	}

	if !s.trackRequest() {
		s.sendError(client, req.ID, ServerShuttingDown, "server is shutting down")
		return true
	}

	allowed, reason := client.RateLimiter.Acquire()
	if !allowed {
		s.inFlightReqs.Done()
		code := RateLimitExceeded
		rejectReason := "rate_limit"
		if reason == "too many concurrent requests" {
			code = TooManyConcurrent
			rejectReason = "concurrency"
		}
		observability.RecordGatewayReject(rejectReason)
		s.sendError(client, req.ID, code, reason)
		return true
	}

	go func() {
		defer s.inFlightReqs.Done()
		defer client.RateLimiter.Release()

		ctx := tracing.WithClientID(tracing.NewRequestContext(s.baseCtx), client.ID)
		response := s.router.RouteRequest(ctx, client, req)
		if err := client.WriteJSON(response); err != nil {
			s.logger.Error().
				Err(err).
				Str("clientId", client.ID).
				Str("requestId", req.ID).
				Msg("Failed to send response")
		}
	}()
	return true
}

func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) bool {
	// the result must reach the client before any broadcast that sees it
	// authenticated
	client.writeMu.Lock()
	client.authMu.Lock()
	result := s.authHandler.HandleAuthResponse(client, authResp.Signature)
	client.authMu.Unlock()
	err := client.Conn.WriteJSON(result)
	client.writeMu.Unlock()

	ctx := tracing.WithClientID(s.baseCtx, client.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return false
	}

	if result.Success {
		observability.RecordSecurityAudit(ctx, "gateway.auth", client.ID, "success", map[string]any{"ip": client.IPAddress})
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
		return true
	}

	observability.RecordGatewayReject("auth")
	observability.RecordSecurityAudit(ctx, "gateway.auth", client.ID, "failure", map[string]any{
		"ip":       client.IPAddress,
		"reason":   result.Message,
		"attempts": client.AuthAttempts,
	})
	s.logger.Warn().
		Str("clientId", client.ID).
		Str("reason", result.Message).
		Msg("Authentication failed")

	return client.AuthAttempts < MaxAuthAttempts
}

// handleRPC serves single-shot JSON-RPC requests over HTTP. Each request gets
// a fresh session and no event frames.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	if !s.authHandler.VerifySecret(r.Header.Get(SecretHeader)) {
		observability.RecordGatewayReject("auth")
		observability.RecordSecurityAudit(r.Context(), "gateway.rpc", r.RemoteAddr, "failure", nil)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	req, err := s.router.ParseRequest(body)
	if err != nil {
		resp := errorResponse("", ParseError, err.Error())
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			resp.Error = rpcErr
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	traceID := r.Header.Get("X-Trace-Id")
	if traceID == "" {
		traceID = tracing.NewTraceID()
	}
	client := s.newClient(r.RemoteAddr, nil)
	client.Authenticated = true
	client.State = StateAuthenticated

	ctx := tracing.WithClientID(tracing.WithTraceID(r.Context(), traceID), client.ID)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("request_id", req.ID).
		Str("method", req.Method).
		Msg("Gateway received HTTP RPC request")

	if !s.trackRequest() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	resp := s.router.RouteRequest(ctx, client, req)
	s.inFlightReqs.Done()

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode RPC response")
	}
}

func (s *Server) sendError(client *Client, requestID string, code int, message string) {
	if err := client.WriteJSON(errorResponse(requestID, code, message)); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error response")
	}
}

// Broadcast sends a lifecycle event to all authenticated clients
func (s *Server) Broadcast(event string, data any) {
	s.broadcaster.Broadcast(event, data)
}

// RegisterMethod adds an RPC method. Existing methods, built-ins included,
// must be unregistered first.
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	if s.router.HasMethod(name) {
		return fmt.Errorf("method %s is already registered", name)
	}
	return s.router.RegisterMethod(name, handler)
}

// UnregisterMethod unregisters an RPC method handler
func (s *Server) UnregisterMethod(name string) {
	s.router.UnregisterMethod(name)
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.GetConnectedClients()
}
