package gateway

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventBroadcaster delivers event frames to one client or to every
// authenticated client. Frames share one sequence counter.
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     atomic.Int64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to all authenticated clients
func (b *EventBroadcaster) Broadcast(event string, data any) {
	msg := b.stamp(EventMessage{
		Event:  event,
		Stream: StreamTypeLifecycle,
		Data:   data,
	})

	raw, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", msg.Event).Msg("Failed to marshal event")
		return
	}

	clients := b.clients.GetAuthenticatedClients()
	failed := 0
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, raw); err != nil {
			b.logger.Warn().Err(err).Str("clientId", client.ID).Str("event", msg.Event).Msg("Failed to broadcast to client")
			failed++
		}
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Int64("seq", msg.Seq).
		Int("clients", len(clients)).
		Int("failed", failed).
		Msg("Event broadcast complete")
}

// SendToClient sends one event frame to client
func (b *EventBroadcaster) SendToClient(client *Client, msg EventMessage) error {
	msg = b.stamp(msg)
	if err := client.WriteJSON(msg); err != nil {
		b.logger.Warn().
			Err(err).
			Str("clientId", client.ID).
			Str("event", msg.Event).
			Int64("seq", msg.Seq).
			Msg("Failed to send event to client")
		return err
	}
	return nil
}

func (b *EventBroadcaster) stamp(msg EventMessage) EventMessage {
	msg.Type = "event"
	if msg.Seq == 0 {
		msg.Seq = b.seq.Add(1)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	return msg
}
