package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edustream/groupchat-service/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024

	handlerTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection of an authenticated user. A user
// may hold several connections at once; each is a separate Client.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	userName string
	groups   map[uint]bool

	// Set by the hub under its lock when the connection is torn down,
	// so no broadcaster writes to the closed send channel.
	closed bool
}

type joinGroupsPayload struct {
	GroupIDs []uint `json:"group_ids"`
}

type leaveGroupPayload struct {
	GroupID uint `json:"group_id"`
}

type sendMessagePayload struct {
	GroupID uint                        `json:"group_id"`
	Message services.SendMessageRequest `json:"message"`
}

type typingPayload struct {
	GroupID uint `json:"group_id"`
}

type markReadPayload struct {
	MessageID uint `json:"message_id"`
}

type quizSubmittedPayload struct {
	GroupID uint `json:"group_id"`
	QuizID  uint `json:"quiz_id"`
}

// ServeWS upgrades the request and registers the connection. The
// caller must have authenticated the user already.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, userName string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		userName: userName,
		groups:   make(map[uint]bool),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected websocket close", slog.String("user_id", c.userID), slog.String("error", err.Error()))
			}
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch msg.Type {
	case EventJoinGroups:
		c.handleJoinGroups(ctx, msg.Data)
	case EventLeaveGroup:
		c.handleLeaveGroup(msg.Data)
	case EventSendMessage:
		c.handleSendMessage(ctx, msg.Data)
	case EventTypingStart:
		c.handleTyping(msg.Data, EventUserTyping)
	case EventTypingStop:
		c.handleTyping(msg.Data, EventUserStopTyping)
	case EventMarkRead:
		c.handleMarkRead(ctx, msg.Data)
	case EventQuizSubmitted:
		c.handleQuizSubmitted(msg.Data)
	case EventUserOnline:
		c.hub.broadcastPresence(c.userID, "online")
	default:
		c.sendError("unknown event type: " + msg.Type)
	}
}

// handleJoinGroups subscribes the connection to the rooms of the
// groups the user actually belongs to. Non-member group IDs are
// silently skipped.
func (c *Client) handleJoinGroups(ctx context.Context, data json.RawMessage) {
	var payload joinGroupsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("invalid join-groups payload")
		return
	}

	joined := make([]uint, 0, len(payload.GroupIDs))
	for _, groupID := range payload.GroupIDs {
		if c.groups[groupID] {
			joined = append(joined, groupID)
			continue
		}
		isMember, err := c.hub.groups.IsMember(ctx, groupID, c.userID)
		if err != nil {
			c.hub.logger.Warn("membership check failed",
				slog.String("user_id", c.userID),
				slog.Uint64("group_id", uint64(groupID)),
				slog.String("error", err.Error()))
			continue
		}
		if !isMember {
			continue
		}
		c.hub.joinRoom(c, groupID)
		joined = append(joined, groupID)
	}

	c.sendEvent(EventGroupsJoined, map[string]interface{}{"group_ids": joined})
}

func (c *Client) handleLeaveGroup(data json.RawMessage) {
	var payload leaveGroupPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("invalid leave-group payload")
		return
	}
	c.hub.leaveRoom(c, payload.GroupID)
}

// handleSendMessage persists the message first, then broadcasts the
// stored representation to the room. Clients never see a message that
// did not make it to the database.
func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("invalid send-message payload")
		return
	}

	response, err := c.hub.messages.Send(ctx, payload.GroupID, &payload.Message, c.userID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.hub.BroadcastToGroup(payload.GroupID, EventNewMessage, response, nil)
}

// handleTyping relays typing indicators to the room without touching
// storage. The sender is excluded from the broadcast.
func (c *Client) handleTyping(data json.RawMessage, eventType string) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("invalid typing payload")
		return
	}
	if !c.groups[payload.GroupID] {
		return
	}

	c.hub.BroadcastToGroup(payload.GroupID, eventType, map[string]interface{}{
		"group_id":  payload.GroupID,
		"user_id":   c.userID,
		"user_name": c.userName,
	}, c)
}

func (c *Client) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var payload markReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("invalid mark-message-read payload")
		return
	}

	result, err := c.hub.messages.MarkRead(ctx, payload.MessageID, c.userID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if result.AlreadyRead {
		return
	}

	// Read receipts go to the sender's private channel, not the room.
	c.hub.SendToUser(result.SenderID, EventMessageRead, result)
}

// handleQuizSubmitted relays a submission notice to the quiz's group.
// The submission itself is recorded over the REST surface.
func (c *Client) handleQuizSubmitted(data json.RawMessage) {
	var payload quizSubmittedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("invalid quiz-submitted payload")
		return
	}
	if !c.groups[payload.GroupID] {
		return
	}

	c.hub.BroadcastToGroup(payload.GroupID, EventQuizSubmissionUpdate, map[string]interface{}{
		"quiz_id":      payload.QuizID,
		"user_id":      c.userID,
		"submitted_at": time.Now().UTC(),
	}, nil)
}

func (c *Client) sendEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(ServerMessage{Type: eventType, Data: data})
	if err != nil {
		return
	}
	c.hub.enqueue(c, payload)
}

func (c *Client) sendError(message string) {
	c.sendEvent(EventError, map[string]interface{}{"message": message})
}
