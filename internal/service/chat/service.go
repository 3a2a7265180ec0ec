package chat

import (
	"encoding/json"
	"strings"

	"log/slog"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/ws"
)

const defaultSender = "Anonymous"

// Service relays chat messages to room subscribers. Messages are not
// persisted; a disconnected subscriber simply stops receiving.
type Service struct {
	hub         *ws.Hub
	logger      *slog.Logger
	defaultRoom string
}

// New constructs a chat relay service.
func New(hub *ws.Hub, logger *slog.Logger, defaultRoom string) Service {
	if strings.TrimSpace(defaultRoom) == "" {
		defaultRoom = "lobby"
	}
	return Service{hub: hub, logger: logger, defaultRoom: defaultRoom}
}

// Join subscribes a client to a room.
func (s Service) Join(room string, client ws.Subscriber) string {
	room = s.roomOrDefault(room)
	s.hub.Register(room, client)
	return room
}

// Leave unsubscribes a client from a room.
func (s Service) Leave(room string, client ws.Subscriber) {
	s.hub.Unregister(s.roomOrDefault(room), client)
}

// Send normalizes and broadcasts a message to every subscriber in the
// room, the sender included.
func (s Service) Send(room string, msg domain.ChatMessage) {
	normalized := Normalize(msg)
	payload, err := json.Marshal(normalized)
	if err != nil {
		s.logger.Warn("failed to marshal chat payload", "error", err)
		return
	}
	s.hub.Broadcast(s.roomOrDefault(room), payload)
}

// Normalize trims the message fields and defaults the sender label.
func Normalize(msg domain.ChatMessage) domain.ChatMessage {
	msg.Text = strings.TrimSpace(msg.Text)
	msg.Sender = strings.TrimSpace(msg.Sender)
	if msg.Sender == "" {
		msg.Sender = defaultSender
	}
	return msg
}

func (s Service) roomOrDefault(room string) string {
	room = strings.TrimSpace(room)
	if room == "" {
		return s.defaultRoom
	}
	return room
}
