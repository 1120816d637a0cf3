package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type GroupFilters struct {
	IsActive  *bool   `json:"is_active"`
	CreatedBy *string `json:"created_by"`
	Search    *string `json:"search"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`    // "created_at", "name"
	SortOrder string  `json:"sort_order"` // "asc", "desc"
}

type MessageFilters struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type MessageSearchFilters struct {
	Query    string              `json:"query"`
	Type     *models.MessageType `json:"type"`
	SenderID *string             `json:"sender_id"`
	DateFrom *time.Time          `json:"date_from"`
	DateTo   *time.Time          `json:"date_to"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

type QuizFilters struct {
	IsActive  *bool   `json:"is_active"`
	CreatedBy *string `json:"created_by"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}

type SubmissionFilters struct {
	Status    *models.SubmissionStatus `json:"status"`
	UserID    *string                  `json:"user_id"`
	DateFrom  *time.Time               `json:"date_from"`
	DateTo    *time.Time               `json:"date_to"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`
	SortOrder string                   `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

type GroupStats struct {
	MemberCount    int        `json:"member_count"`
	MessageCount   int64      `json:"message_count"`
	QuizCount      int64      `json:"quiz_count"`
	LastActivityAt *time.Time `json:"last_activity_at"`
}

// ===== REPOSITORY INTERFACES =====

// GroupRepository handles group documents, membership rows and settings.
type GroupRepository interface {
	Create(ctx context.Context, tx *gorm.DB, group *models.Group) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error)
	GetByIDWithMembers(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error)
	Update(ctx context.Context, tx *gorm.DB, group *models.Group) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters GroupFilters) ([]*models.Group, int64, error)
	GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters GroupFilters) ([]*models.Group, int64, error)
	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*GroupStats, error)

	// Membership
	AddMember(ctx context.Context, tx *gorm.DB, member *models.GroupMember) error
	RemoveMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) error
	GetMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (*models.GroupMember, error)
	UpdateMemberRole(ctx context.Context, tx *gorm.DB, groupID uint, userID string, role models.MemberRole) error
	ListMembers(ctx context.Context, tx *gorm.DB, groupID uint) ([]*models.GroupMember, error)
	CountMembers(ctx context.Context, tx *gorm.DB, groupID uint) (int64, error)
	IsMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (bool, error)

	// Settings
	GetSettings(ctx context.Context, tx *gorm.DB, groupID uint) (*models.GroupSettings, error)
	UpdateSettings(ctx context.Context, tx *gorm.DB, settings *models.GroupSettings) error
}

// MessageRepository handles the per-group message log and read receipts.
type MessageRepository interface {
	Create(ctx context.Context, tx *gorm.DB, message *models.Message) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Message, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Message, error)
	Update(ctx context.Context, tx *gorm.DB, message *models.Message) error

	// List returns one page of a group's messages ordered newest-first,
	// plus the total message count for the group.
	List(ctx context.Context, tx *gorm.DB, groupID uint, filters MessageFilters) ([]*models.Message, int64, error)
	Search(ctx context.Context, tx *gorm.DB, groupID uint, filters MessageSearchFilters) ([]*models.Message, int64, error)

	// MarkRead records a read receipt. Returns false when the receipt
	// already existed.
	MarkRead(ctx context.Context, tx *gorm.DB, messageID uint, userID string, readAt time.Time) (bool, error)
	MarkAllRead(ctx context.Context, tx *gorm.DB, groupID uint, userID string, readAt time.Time) (int64, error)
	UnreadCount(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (int64, error)
	GetReads(ctx context.Context, tx *gorm.DB, messageID uint) ([]*models.MessageRead, error)
}

// QuizRepository handles quiz definitions and their analytics rows.
type QuizRepository interface {
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, groupID uint, filters QuizFilters) ([]*models.Quiz, int64, error)

	// LockForSubmit takes a row lock on the quiz so concurrent submissions
	// against it serialize. Must run inside a transaction.
	LockForSubmit(ctx context.Context, tx *gorm.DB, id uint) error

	GetAnalytics(ctx context.Context, tx *gorm.DB, quizID uint) (*models.QuizAnalytics, error)
	UpsertAnalytics(ctx context.Context, tx *gorm.DB, analytics *models.QuizAnalytics) error
}

// SubmissionRepository handles quiz attempts and their answers.
type SubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error)
	Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error
	UpdateAnswer(ctx context.Context, tx *gorm.DB, answer *models.SubmissionAnswer) error

	// GetActive returns the user's in-progress submission for the quiz,
	// or a not-found error when none exists.
	GetActive(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.Submission, error)
	CountCompleted(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error)
	MaxAttemptNumber(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int, error)

	ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters SubmissionFilters) ([]*models.Submission, int64, error)
	ListByUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.Submission, error)

	// ListGradedByQuiz returns every submitted or graded submission with
	// its answers, for analytics recomputation and result export.
	ListGradedByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Submission, error)
}

// UserRepository mirrors identity-provider accounts into the local users table.
type UserRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.User, error)
	Upsert(ctx context.Context, tx *gorm.DB, user *models.User) error
	Exists(ctx context.Context, tx *gorm.DB, id string) (bool, error)
}
