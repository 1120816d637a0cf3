package models

import (
	"time"

	"gorm.io/datatypes"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageQuiz   MessageType = "quiz"
	MessageSystem MessageType = "system"
)

// DeletedContentPlaceholder replaces the payload of soft-deleted messages in
// every read path. The stored content is untouched.
const DeletedContentPlaceholder = "This message was deleted"

type Message struct {
	ID       uint        `json:"id" gorm:"primaryKey"`
	GroupID  uint        `json:"group_id" gorm:"not null;index:idx_messages_group_created"`
	SenderID string      `json:"sender_id" gorm:"not null;index;size:255"`
	Type     MessageType `json:"type" gorm:"not null;default:text;index"`

	// Content stored as JSONB; schema depends on Type.
	Content datatypes.JSON `json:"content" gorm:"type:jsonb"`

	// Reply linkage; target must belong to the same group.
	ReplyToID *uint `json:"reply_to_id" gorm:"index"`

	// Edit tracking. PreviousContent keeps only the pre-first-edit payload.
	IsEdited        bool           `json:"is_edited" gorm:"not null;default:false"`
	EditedAt        *time.Time     `json:"edited_at"`
	PreviousContent datatypes.JSON `json:"-" gorm:"type:jsonb"`

	// Soft delete; redaction happens at presentation time.
	IsDeleted bool       `json:"is_deleted" gorm:"not null;default:false;index"`
	DeletedAt *time.Time `json:"deleted_at"`

	// Set only when Type == MessageSystem.
	SystemAction *string `json:"system_action" gorm:"size:50"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_messages_group_created"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Sender  User          `json:"sender" gorm:"foreignKey:SenderID"`
	ReplyTo *Message      `json:"reply_to" gorm:"foreignKey:ReplyToID"`
	Reads   []MessageRead `json:"read_by" gorm:"foreignKey:MessageID"`
}

// MessageRead records one user's read receipt for one message. The unique
// index guarantees at most one receipt per (message, user) pair, which makes
// mark-read idempotent at the storage level.
type MessageRead struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	MessageID uint      `json:"message_id" gorm:"not null;uniqueIndex:idx_message_read"`
	UserID    string    `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_message_read;index"`
	ReadAt    time.Time `json:"read_at" gorm:"not null"`
}

func (Message) TableName() string {
	return "messages"
}

func (MessageRead) TableName() string {
	return "message_reads"
}

// CanBeEdited reports whether the message type/state admits editing at all.
// Sender-only enforcement lives in the service layer.
func (m *Message) CanBeEdited() bool {
	return m.Type != MessageSystem && !m.IsDeleted
}

// CanBeDeleted reports whether the message type admits soft deletion.
func (m *Message) CanBeDeleted() bool {
	return m.Type != MessageSystem
}

// ===== MESSAGE CONTENT SCHEMAS =====

type TextMessageContent struct {
	Text string `json:"text" validate:"required,max=5000"`
}

// FileMessageContent is the descriptor produced by the upload service; the
// messaging core only stores and renders it.
type FileMessageContent struct {
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

type QuizMessageContent struct {
	QuizID uint   `json:"quiz_id"`
	Title  string `json:"title"`
}

type SystemMessageContent struct {
	Text string `json:"text"`
}
