package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/edustream/groupchat-service/internal/services"
)

// Client-to-server event types.
const (
	EventJoinGroups    = "join-groups"
	EventLeaveGroup    = "leave-group"
	EventSendMessage   = "send-message"
	EventTypingStart   = "typing-start"
	EventTypingStop    = "typing-stop"
	EventMarkRead      = "mark-message-read"
	EventQuizSubmitted = "quiz-submitted"
	EventUserOnline    = "user-online"
)

// Server-to-client event types.
const (
	EventNewMessage           = "new-message"
	EventUserTyping           = "user-typing"
	EventUserStopTyping       = "user-stop-typing"
	EventMessageRead          = "message-read"
	EventGroupsJoined         = "groups-joined"
	EventStatusChange         = "user-status-change"
	EventQuizSubmissionUpdate = "quiz-submission-update"
	EventError                = "error"
)

// ClientMessage is the envelope clients send over the socket.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerMessage is the envelope pushed to clients.
type ServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and their group room membership, and
// fans server events out to the right connections. All map access is
// guarded by mu; register/unregister flow through Run so connection
// teardown happens in one place.
type Hub struct {
	clients       map[*Client]bool
	rooms         map[uint]map[*Client]bool
	clientsByUser map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	groups   services.GroupService
	messages services.MessageService
	presence services.PresenceService
	logger   *slog.Logger

	mu sync.RWMutex
}

func NewHub(sm services.ServiceManager, logger *slog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		rooms:         make(map[uint]map[*Client]bool),
		clientsByUser: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		groups:        sm.Group(),
		messages:      sm.Message(),
		presence:      sm.Presence(),
		logger:        logger.With(slog.String("component", "realtime_hub")),
	}
}

// Run processes client registration and teardown. It must be started
// once, before any connection is accepted.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	conns, ok := h.clientsByUser[client.userID]
	if !ok {
		conns = make(map[*Client]bool)
		h.clientsByUser[client.userID] = conns
	}
	firstConn := len(conns) == 0
	conns[client] = true
	h.mu.Unlock()

	if firstConn {
		if err := h.presence.SetOnline(context.Background(), client.userID); err != nil {
			h.logger.Warn("failed to mark user online", slog.String("user_id", client.userID), slog.String("error", err.Error()))
		}
	}

	h.logger.Info("client connected", slog.String("user_id", client.userID))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for groupID := range client.groups {
		if room, exists := h.rooms[groupID]; exists {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, groupID)
			}
		}
	}
	lastConn := false
	if conns, ok := h.clientsByUser[client.userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clientsByUser, client.userID)
			lastConn = true
		}
	}
	client.closed = true
	close(client.send)
	h.mu.Unlock()

	if lastConn {
		if err := h.presence.SetOffline(context.Background(), client.userID); err != nil {
			h.logger.Warn("failed to mark user offline", slog.String("user_id", client.userID), slog.String("error", err.Error()))
		}
		h.broadcastPresence(client.userID, "offline")
	}

	h.logger.Info("client disconnected", slog.String("user_id", client.userID))
}

// joinRoom subscribes an already-registered client to a group room.
// Membership must be verified by the caller.
func (h *Hub) joinRoom(client *Client, groupID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[groupID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[groupID] = room
	}
	room[client] = true
	client.groups[groupID] = true
}

func (h *Hub) leaveRoom(client *Client, groupID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[groupID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, groupID)
		}
	}
	delete(client.groups, groupID)
}

// BroadcastToGroup pushes an event to every connection subscribed to
// the group room. A nil exclude sends to everyone, including the
// originating client.
func (h *Hub) BroadcastToGroup(groupID uint, eventType string, data interface{}, exclude *Client) {
	payload, err := json.Marshal(ServerMessage{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal server event", slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[groupID]))
	for client := range h.rooms[groupID] {
		if client != exclude {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.enqueue(client, payload)
	}
}

// SendToUser pushes an event to every active connection of one user.
func (h *Hub) SendToUser(userID string, eventType string, data interface{}) {
	payload, err := json.Marshal(ServerMessage{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal server event", slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clientsByUser[userID]))
	for client := range h.clientsByUser[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.enqueue(client, payload)
	}
}

// enqueue hands the payload to the client's writer. A full send buffer
// means the reader has stalled, so the connection is torn down. The
// read lock is held across the send so teardown cannot close the
// channel mid-write; a concurrent disconnect is a silent drop.
func (h *Hub) enqueue(client *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client.closed {
		return
	}

	select {
	case client.send <- payload:
	default:
		h.logger.Warn("send buffer full, dropping client", slog.String("user_id", client.userID))
		go func() { h.unregister <- client }()
	}
}

// BroadcastToAll pushes an event to every live connection.
func (h *Hub) BroadcastToAll(eventType string, data interface{}) {
	payload, err := json.Marshal(ServerMessage{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal server event", slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.enqueue(client, payload)
	}
}

// broadcastPresence announces a presence transition to every
// connection. Presence is global, not room-scoped.
func (h *Hub) broadcastPresence(userID string, status string) {
	h.BroadcastToAll(EventStatusChange, map[string]interface{}{
		"user_id":   userID,
		"status":    status,
		"last_seen": time.Now().UTC(),
	})
}

// RoomSize reports the number of live connections in a group room.
func (h *Hub) RoomSize(groupID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[groupID])
}

// ConnectionCount reports the total number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
