package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type stubPresenceService struct {
	mu       sync.Mutex
	online   []string
	offline  []string
	setErr   error
	isOnline bool
}

func (s *stubPresenceService) SetOnline(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = append(s.online, userID)
	return s.setErr
}

func (s *stubPresenceService) SetOffline(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = append(s.offline, userID)
	return s.setErr
}

func (s *stubPresenceService) IsOnline(ctx context.Context, userID string) (bool, error) {
	return s.isOnline, nil
}

func (s *stubPresenceService) LastSeen(ctx context.Context, userID string) (*time.Time, error) {
	return nil, nil
}

func (s *stubPresenceService) onlineCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.online...)
}

func (s *stubPresenceService) offlineCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.offline...)
}

func newTestHub(presence *stubPresenceService) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		rooms:         make(map[uint]map[*Client]bool),
		clientsByUser: make(map[string]map[*Client]bool),
		register:      make(chan *Client, 8),
		unregister:    make(chan *Client, 8),
		presence:      presence,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, 8),
		userID: userID,
		groups: make(map[uint]bool),
	}
}

func receiveEvent(t *testing.T, client *Client) ServerMessage {
	t.Helper()
	select {
	case payload := <-client.send:
		var msg ServerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("Failed to decode server message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("Expected server message, got none")
		return ServerMessage{}
	}
}

func assertNoEvent(t *testing.T, client *Client) {
	t.Helper()
	select {
	case payload := <-client.send:
		t.Errorf("Expected no server message, got %s", payload)
	default:
	}
}

func TestHubJoinLeaveRoom(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")

	hub.joinRoom(alice, 7)
	hub.joinRoom(bob, 7)

	if size := hub.RoomSize(7); size != 2 {
		t.Errorf("Expected room size 2, got %d", size)
	}
	if !alice.groups[7] {
		t.Error("Expected client to track joined group")
	}

	hub.leaveRoom(alice, 7)

	if size := hub.RoomSize(7); size != 1 {
		t.Errorf("Expected room size 1 after leave, got %d", size)
	}
	if alice.groups[7] {
		t.Error("Expected client group tracking to be cleared on leave")
	}

	hub.leaveRoom(bob, 7)

	if size := hub.RoomSize(7); size != 0 {
		t.Errorf("Expected empty room to be dropped, got size %d", size)
	}
}

func TestHubBroadcastToGroup(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	carol := newTestClient(hub, "carol")

	hub.joinRoom(alice, 3)
	hub.joinRoom(bob, 3)
	hub.joinRoom(carol, 9)

	t.Run("Delivers_To_Room_Members_Only", func(t *testing.T) {
		hub.BroadcastToGroup(3, EventNewMessage, map[string]interface{}{"content": "hello"}, nil)

		for _, client := range []*Client{alice, bob} {
			msg := receiveEvent(t, client)
			if msg.Type != EventNewMessage {
				t.Errorf("Expected event type %q, got %q", EventNewMessage, msg.Type)
			}
			data, ok := msg.Data.(map[string]interface{})
			if !ok {
				t.Fatalf("Expected map payload, got %T", msg.Data)
			}
			if data["content"] != "hello" {
				t.Errorf("Expected content 'hello', got %v", data["content"])
			}
		}
		assertNoEvent(t, carol)
	})

	t.Run("Excludes_Originating_Client", func(t *testing.T) {
		hub.BroadcastToGroup(3, EventUserTyping, map[string]interface{}{"user_id": "alice"}, alice)

		msg := receiveEvent(t, bob)
		if msg.Type != EventUserTyping {
			t.Errorf("Expected event type %q, got %q", EventUserTyping, msg.Type)
		}
		assertNoEvent(t, alice)
	})

	t.Run("Unknown_Room_Is_Noop", func(t *testing.T) {
		hub.BroadcastToGroup(999, EventNewMessage, nil, nil)
		assertNoEvent(t, alice)
		assertNoEvent(t, bob)
	})
}

func TestHubSendToUser(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	first := newTestClient(hub, "alice")
	second := newTestClient(hub, "alice")
	other := newTestClient(hub, "bob")

	hub.addClient(first)
	hub.addClient(second)
	hub.addClient(other)

	hub.SendToUser("alice", EventMessageRead, map[string]interface{}{"message_id": float64(12)})

	for _, client := range []*Client{first, second} {
		msg := receiveEvent(t, client)
		if msg.Type != EventMessageRead {
			t.Errorf("Expected event type %q, got %q", EventMessageRead, msg.Type)
		}
	}
	assertNoEvent(t, other)
}

func TestHubPresenceLifecycle(t *testing.T) {
	presence := &stubPresenceService{}
	hub := newTestHub(presence)

	first := newTestClient(hub, "alice")
	second := newTestClient(hub, "alice")

	hub.addClient(first)
	hub.addClient(second)

	if calls := presence.onlineCalls(); len(calls) != 1 || calls[0] != "alice" {
		t.Errorf("Expected single SetOnline call for first connection, got %v", calls)
	}
	if count := hub.ConnectionCount(); count != 2 {
		t.Errorf("Expected 2 connections, got %d", count)
	}

	hub.removeClient(first)

	if calls := presence.offlineCalls(); len(calls) != 0 {
		t.Errorf("Expected no SetOffline while connections remain, got %v", calls)
	}

	hub.removeClient(second)

	if calls := presence.offlineCalls(); len(calls) != 1 || calls[0] != "alice" {
		t.Errorf("Expected single SetOffline call for last connection, got %v", calls)
	}
	if count := hub.ConnectionCount(); count != 0 {
		t.Errorf("Expected 0 connections, got %d", count)
	}
}

func TestHubRemoveClientBroadcastsOffline(t *testing.T) {
	presence := &stubPresenceService{}
	hub := newTestHub(presence)

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")

	hub.addClient(alice)
	hub.addClient(bob)
	hub.joinRoom(alice, 4)
	hub.joinRoom(bob, 4)

	hub.removeClient(alice)

	msg := receiveEvent(t, bob)
	if msg.Type != EventStatusChange {
		t.Fatalf("Expected event type %q, got %q", EventStatusChange, msg.Type)
	}
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map payload, got %T", msg.Data)
	}
	if data["user_id"] != "alice" {
		t.Errorf("Expected user_id 'alice', got %v", data["user_id"])
	}
	if data["status"] != "offline" {
		t.Errorf("Expected status 'offline', got %v", data["status"])
	}
	if data["last_seen"] == nil {
		t.Error("Expected last_seen timestamp in presence broadcast")
	}

	if size := hub.RoomSize(4); size != 1 {
		t.Errorf("Expected removed client out of room, got size %d", size)
	}
}

func TestHubBroadcastPresenceIsGlobal(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")

	hub.addClient(alice)
	hub.addClient(bob)

	// Neither client joined a room; presence still reaches everyone.
	hub.broadcastPresence("alice", "online")

	for _, client := range []*Client{alice, bob} {
		msg := receiveEvent(t, client)
		if msg.Type != EventStatusChange {
			t.Errorf("Expected event type %q, got %q", EventStatusChange, msg.Type)
		}
		data, ok := msg.Data.(map[string]interface{})
		if !ok {
			t.Fatalf("Expected map payload, got %T", msg.Data)
		}
		if data["status"] != "online" {
			t.Errorf("Expected status 'online', got %v", data["status"])
		}
	}
}

func TestHubRemoveClientClosesSend(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	client := newTestClient(hub, "alice")

	hub.addClient(client)
	hub.removeClient(client)

	if _, open := <-client.send; open {
		t.Error("Expected send channel to be closed on removal")
	}

	// A second removal of the same client must not panic or double-close.
	hub.removeClient(client)
}

func TestHubEnqueueFullBuffer(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	client := &Client{
		hub:    hub,
		send:   make(chan []byte, 1),
		userID: "alice",
		groups: make(map[uint]bool),
	}
	hub.addClient(client)
	hub.joinRoom(client, 2)
	client.send <- []byte("stalled")

	hub.BroadcastToGroup(2, EventNewMessage, map[string]interface{}{"content": "dropped"}, nil)

	select {
	case dropped := <-hub.unregister:
		if dropped != client {
			t.Error("Expected the stalled client to be unregistered")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected stalled client to be queued for unregistration")
	}
}

func TestHubEnqueueAfterRemoval(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	client := newTestClient(hub, "alice")
	hub.addClient(client)
	hub.joinRoom(client, 2)

	// A broadcaster can snapshot its targets, lose the race against
	// teardown, and only then deliver. Delivery after removal must be a
	// silent no-op, not a write to the closed send channel.
	hub.removeClient(client)
	hub.enqueue(client, []byte(`{"type":"new-message"}`))

	select {
	case dropped := <-hub.unregister:
		t.Errorf("enqueue to a removed client must not re-queue it, got %v", dropped.userID)
	default:
	}
}

func TestHubConcurrentBroadcastAndRemoval(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		client := newTestClient(hub, "alice")
		hub.addClient(client)
		hub.joinRoom(client, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.BroadcastToGroup(2, EventNewMessage, map[string]interface{}{"content": "hi"}, nil)
		}()
		go func(c *Client) {
			defer wg.Done()
			hub.removeClient(c)
		}(client)
	}
	wg.Wait()
}

func TestClientTypingCarriesUserName(t *testing.T) {
	hub := newTestHub(&stubPresenceService{})
	alice := newTestClient(hub, "alice")
	alice.userName = "Alice Liddell"
	bob := newTestClient(hub, "bob")

	hub.addClient(alice)
	hub.addClient(bob)
	hub.joinRoom(alice, 3)
	hub.joinRoom(bob, 3)

	alice.handleTyping(json.RawMessage(`{"group_id":3}`), EventUserTyping)

	msg := receiveEvent(t, bob)
	if msg.Type != EventUserTyping {
		t.Errorf("Expected event type %q, got %q", EventUserTyping, msg.Type)
	}
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map payload, got %T", msg.Data)
	}
	if data["user_id"] != "alice" {
		t.Errorf("Expected user_id 'alice', got %v", data["user_id"])
	}
	if data["user_name"] != "Alice Liddell" {
		t.Errorf("Expected user_name 'Alice Liddell', got %v", data["user_name"])
	}
	assertNoEvent(t, alice)
}
