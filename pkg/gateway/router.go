package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

const defaultReplayTTL = 5 * time.Minute

// RPCRouter maps method names to handlers. A successful response to a request
// carrying an idempotency key is replayed to later requests with the same
// method and key until it expires; failures are never replayed, so a retry
// after RunInProgress runs again.
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler
	replay  *replayCache
}

// NewRPCRouter creates a new RPC router
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		methods: make(map[string]RequestHandler),
		replay:  newReplayCache(defaultReplayTTL),
	}
}

// RegisterMethod registers an RPC method handler
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler) error {
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods[name] = handler
	return nil
}

// UnregisterMethod removes an RPC method handler
func (r *RPCRouter) UnregisterMethod(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.methods, name)
}

// ParseRequest decodes a JSON-RPC request. Both id and method are required;
// jsonrpc defaults to "2.0" and params to an empty object.
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	case req.Method == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}

	return &req, nil
}

// RouteRequest runs the handler registered for req.Method. A handler error
// that is an *RPCError keeps its code; any other error maps to InternalError.
func (r *RPCRouter) RouteRequest(ctx context.Context, client *Client, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", InvalidRequest, "invalid request")
	}

	replayKey := ""
	if req.IdempotencyKey != "" {
		replayKey = req.Method + ":" + req.IdempotencyKey
		if resp, ok := r.replay.get(replayKey); ok {
			resp.ID = req.ID
			return resp
		}
	}

	r.mu.RLock()
	handler, exists := r.methods[req.Method]
	r.mu.RUnlock()
	if !exists {
		return errorResponse(req.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}

	result, err := handler(ctx, client, req)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return &RPCResponse{ID: req.ID, JSONRPC: "2.0", Error: rpcErr}
		}
		return errorResponse(req.ID, InternalError, err.Error())
	}

	resp := &RPCResponse{ID: req.ID, JSONRPC: "2.0", Result: result}
	if replayKey != "" {
		r.replay.put(replayKey, *resp)
	}
	return resp
}

// HasMethod checks if a method is registered
func (r *RPCRouter) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.methods[name]
	return exists
}

// GetMethods returns all registered method names, sorted
func (r *RPCRouter) GetMethods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.methods))
	for name := range r.methods {
		methods = append(methods, name)
	}
	slices.Sort(methods)
	return methods
}

func errorResponse(id string, code int, message string) *RPCResponse {
	return &RPCResponse{
		ID:      id,
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
	}
}

// replayCache holds successful responses by method and idempotency key.
// Expired entries are swept on every put.
type replayCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]replayEntry
}

type replayEntry struct {
	response  RPCResponse
	expiresAt time.Time
}

func newReplayCache(ttl time.Duration) *replayCache {
	return &replayCache{
		ttl:     ttl,
		entries: make(map[string]replayEntry),
	}
}

func (c *replayCache) get(key string) (*RPCResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	resp := entry.response
	return &resp, true
}

func (c *replayCache) put(key string, resp RPCResponse) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = replayEntry{response: resp, expiresAt: now.Add(c.ttl)}
}
