package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCRouter_ParseRequest(t *testing.T) {
	router := NewRPCRouter()

	tests := []struct {
		name     string
		input    string
		wantCode int
	}{
		{"malformed json", `{"id":`, ParseError},
		{"missing id", `{"method":"run"}`, InvalidRequest},
		{"missing method", `{"id":"1"}`, InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := router.ParseRequest([]byte(tt.input))
			var rpcErr *RPCError
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, tt.wantCode, rpcErr.Code)
		})
	}

	t.Run("should fill defaults", func(t *testing.T) {
		req, err := router.ParseRequest([]byte(`{"id":"1","method":"run"}`))
		require.NoError(t, err)
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.NotNil(t, req.Params)
	})
}

func TestRPCRouter_RouteRequest(t *testing.T) {
	ctx := context.Background()
	router := NewRPCRouter()
	calls := 0

	require.NoError(t, router.RegisterMethod("echo", func(_ context.Context, _ *Client, req *RPCRequest) (any, error) {
		calls++
		return req.Params["value"], nil
	}))
	require.NoError(t, router.RegisterMethod("typed", func(context.Context, *Client, *RPCRequest) (any, error) {
		return nil, &RPCError{Code: InvalidParams, Message: "bad"}
	}))
	require.NoError(t, router.RegisterMethod("plain", func(context.Context, *Client, *RPCRequest) (any, error) {
		return nil, errors.New("boom")
	}))

	t.Run("should reject registration errors", func(t *testing.T) {
		assert.Error(t, router.RegisterMethod("", func(context.Context, *Client, *RPCRequest) (any, error) { return nil, nil }))
		assert.Error(t, router.RegisterMethod("x", nil))
	})

	t.Run("should route to the handler", func(t *testing.T) {
		resp := router.RouteRequest(ctx, nil, &RPCRequest{ID: "1", Method: "echo", Params: map[string]any{"value": "hi"}})
		assert.Equal(t, "1", resp.ID)
		assert.Equal(t, "hi", resp.Result)
		assert.Nil(t, resp.Error)
	})

	t.Run("should keep typed error codes", func(t *testing.T) {
		resp := router.RouteRequest(ctx, nil, &RPCRequest{ID: "2", Method: "typed"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)

		resp = router.RouteRequest(ctx, nil, &RPCRequest{ID: "3", Method: "plain"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InternalError, resp.Error.Code)
		assert.Equal(t, "boom", resp.Error.Message)
	})

	t.Run("should report unknown methods", func(t *testing.T) {
		resp := router.RouteRequest(ctx, nil, &RPCRequest{ID: "4", Method: "missing"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)

		resp = router.RouteRequest(ctx, nil, nil)
		assert.Equal(t, InvalidRequest, resp.Error.Code)
	})

	t.Run("should replay idempotent requests", func(t *testing.T) {
		before := calls
		first := router.RouteRequest(ctx, nil, &RPCRequest{ID: "5", Method: "echo", IdempotencyKey: "k", Params: map[string]any{"value": "a"}})
		second := router.RouteRequest(ctx, nil, &RPCRequest{ID: "6", Method: "echo", IdempotencyKey: "k", Params: map[string]any{"value": "b"}})

		assert.Equal(t, before+1, calls)
		assert.Equal(t, "a", first.Result)
		assert.Equal(t, "a", second.Result)
		assert.Equal(t, "6", second.ID)
	})

	t.Run("should not replay failures", func(t *testing.T) {
		first := router.RouteRequest(ctx, nil, &RPCRequest{ID: "9", Method: "plain", IdempotencyKey: "k"})
		second := router.RouteRequest(ctx, nil, &RPCRequest{ID: "10", Method: "plain", IdempotencyKey: "k"})

		require.NotNil(t, first.Error)
		require.NotNil(t, second.Error)
		assert.Equal(t, "10", second.ID)
		_, cached := router.replay.entries["plain:k"]
		assert.False(t, cached)
	})

	t.Run("should expire cached responses", func(t *testing.T) {
		router.replay.ttl = time.Nanosecond
		router.RouteRequest(ctx, nil, &RPCRequest{ID: "7", Method: "echo", IdempotencyKey: "short", Params: map[string]any{"value": "a"}})
		time.Sleep(time.Millisecond)
		resp := router.RouteRequest(ctx, nil, &RPCRequest{ID: "8", Method: "echo", IdempotencyKey: "short", Params: map[string]any{"value": "b"}})
		assert.Equal(t, "b", resp.Result)
	})

	assert.Equal(t, []string{"echo", "plain", "typed"}, router.GetMethods())
	assert.True(t, router.HasMethod("echo"))
	router.UnregisterMethod("echo")
	assert.False(t, router.HasMethod("echo"))
}
