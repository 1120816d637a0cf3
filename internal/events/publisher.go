package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	eventSource  = "groupchat-service"
	eventVersion = "1.0"
)

// Domain event types
const (
	EventMessageSent      = "message.sent"
	EventMessageEdited    = "message.edited"
	EventMessageDeleted   = "message.deleted"
	EventMessageRead      = "message.read"
	EventGroupCreated     = "group.created"
	EventMemberJoined     = "group.member_joined"
	EventMemberLeft       = "group.member_left"
	EventQuizCreated      = "quiz.created"
	EventQuizSubmitted    = "quiz.submitted"
	EventSubmissionGraded = "quiz.submission_graded"
)

// Event is the envelope published to the message broker.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent creates a fully stamped event envelope.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher publishes domain events for downstream consumers
// (notification service, activity feeds, audit).
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// ===== EVENT PAYLOADS =====

type MessageEventData struct {
	MessageID uint   `json:"message_id"`
	GroupID   uint   `json:"group_id"`
	SenderID  string `json:"sender_id"`
	Type      string `json:"type"`
}

type MessageReadEventData struct {
	MessageID uint      `json:"message_id"`
	GroupID   uint      `json:"group_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type MembershipEventData struct {
	GroupID uint   `json:"group_id"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
}

type QuizEventData struct {
	QuizID  uint   `json:"quiz_id"`
	GroupID uint   `json:"group_id"`
	UserID  string `json:"user_id"`
}

type SubmissionEventData struct {
	SubmissionID  uint    `json:"submission_id"`
	QuizID        uint    `json:"quiz_id"`
	GroupID       uint    `json:"group_id"`
	UserID        string  `json:"user_id"`
	AttemptNumber int     `json:"attempt_number"`
	TotalScore    float64 `json:"total_score"`
	Percentage    float64 `json:"percentage"`
	Status        string  `json:"status"`
}
