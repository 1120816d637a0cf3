package events

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func TestNewEvent_Structure(t *testing.T) {
	event := NewEvent(EventMessageSent, MessageEventData{
		MessageID: 1,
		GroupID:   2,
		SenderID:  "user-1",
		Type:      "text",
	})

	if event.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if event.Type != EventMessageSent {
		t.Errorf("Expected event type %q, got %q", EventMessageSent, event.Type)
	}
	if event.Source != "groupchat-service" {
		t.Errorf("Expected source 'groupchat-service', got %q", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("Expected version '1.0', got %q", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("Event timestamp should not be zero")
	}
}

func TestMockEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	publisher := NewMockEventPublisher(logger)
	ctx := context.Background()

	if err := publisher.Publish(ctx, NewEvent(EventGroupCreated, MembershipEventData{GroupID: 1, UserID: "u1", Role: "admin"})); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := publisher.Publish(ctx, NewEvent(EventMemberJoined, MembershipEventData{GroupID: 1, UserID: "u2", Role: "member"})); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(published))
	}
	if published[0].Type != EventGroupCreated {
		t.Errorf("Expected first event %q, got %q", EventGroupCreated, published[0].Type)
	}
	if published[0].ID == published[1].ID {
		t.Error("Events must have distinct IDs")
	}

	publisher.ClearEvents()
	if remaining := publisher.GetPublishedEvents(); len(remaining) != 0 {
		t.Errorf("Expected no events after ClearEvents, got %d", len(remaining))
	}
}
