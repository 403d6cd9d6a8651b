package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamType identifies the kind of event frame delivered to clients.
type StreamType string

const (
	StreamTypeRun       StreamType = "run"
	StreamTypeLifecycle StreamType = "lifecycle"
)

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID             string         `json:"id"`
	Method         string         `json:"method"`
	Params         map[string]any `json:"params,omitempty"`
	JSONRPC        string         `json:"jsonrpc"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      string    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	JSONRPC string    `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// EventMessage is a server-initiated frame. Run frames carry the id of the
// request that started the run.
type EventMessage struct {
	Type      string     `json:"type,omitempty"`
	Event     string     `json:"event"`
	Stream    StreamType `json:"stream,omitempty"`
	Seq       int64      `json:"seq,omitempty"`
	Data      any        `json:"data"`
	Timestamp int64      `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
	TraceID   string     `json:"trace_id,omitempty"`
	RunID     string     `json:"run_id,omitempty"`
	Agent     string     `json:"agent,omitempty"`
}

// AuthChallenge represents an authentication challenge message
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
	Idle          bool      `json:"idle"`
	ActiveAgent   string    `json:"activeAgent,omitempty"`
	Messages      int       `json:"messages"`
	InFlight      int       `json:"inFlight"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// RequestHandler handles one routed RPC request on behalf of client
type RequestHandler func(ctx context.Context, client *Client, req *RPCRequest) (any, error)

// RPC error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
	RunInProgress          = -32002
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
	ServerShuttingDown     = -32007
)

// Client represents a connected WebSocket client. Conn is nil for clients
// served over plain HTTP.
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Authenticated bool
	Challenge     string
	ConnectedAt   time.Time
	LastActivity  time.Time
	IPAddress     string
	AuthAttempts  int
	RateLimiter   *ClientRateLimiter
	State         ClientState
	Session       *Session

	writeMu sync.Mutex
	authMu  sync.RWMutex
}

// IsAuthenticated reports whether the client passed the challenge
func (c *Client) IsAuthenticated() bool {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	return c.Authenticated
}

// WriteJSON writes v as one text frame. Writes are serialized because run
// frames and responses are produced by different goroutines.
func (c *Client) WriteJSON(v any) error {
	if c.Conn == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// WriteMessage writes a raw frame
func (c *Client) WriteMessage(messageType int, data []byte) error {
	if c.Conn == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the underlying connection
func (c *Client) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}
