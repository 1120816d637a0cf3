package services

import (
	"context"
	"time"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateGroupRequest = validator.GroupCreateRequest
type UpdateGroupRequest = validator.GroupUpdateRequest
type GroupSettingsRequest = validator.GroupSettingsRequest
type SendMessageRequest = validator.SendMessageRequest
type EditMessageRequest = validator.EditMessageRequest
type CreateQuizRequest = validator.QuizCreateRequest
type UpdateQuizRequest = validator.QuizUpdateRequest

type GroupResponse struct {
	*models.Group
	MemberCount int   `json:"member_count"`
	UnreadCount int64 `json:"unread_count"`
	CanManage   bool  `json:"can_manage"`
}

type GroupListResponse struct {
	Groups []*GroupResponse `json:"groups"`
	Total  int64            `json:"total"`
	Page   int              `json:"page"`
	Size   int              `json:"size"`
}

type GroupMemberResponse struct {
	*models.GroupMember
	IsOnline bool `json:"is_online"`
}

// MessageResponse is the presentation form of a message. Deleted messages
// carry placeholder content here; the stored row keeps the original.
type MessageResponse struct {
	*models.Message
	CanEdit   bool     `json:"can_edit"`
	CanDelete bool     `json:"can_delete"`
	ReadBy    []string `json:"read_by,omitempty"`
}

type MessageListResponse struct {
	Messages []*MessageResponse `json:"messages"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

type MarkReadResult struct {
	MessageID   uint      `json:"message_id"`
	GroupID     uint      `json:"group_id"`
	SenderID    string    `json:"sender_id"`
	UserID      string    `json:"user_id"`
	ReadAt      time.Time `json:"read_at"`
	AlreadyRead bool      `json:"already_read"`
}

type QuizResponse struct {
	*models.Quiz
	CanEdit         bool  `json:"can_edit"`
	CanSubmit       bool  `json:"can_submit"`
	SubmissionCount int64 `json:"submission_count"`
}

type QuizListResponse struct {
	Quizzes []*QuizResponse `json:"quizzes"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Size    int             `json:"size"`
}

// QuestionForAttempt is the taker-facing question view. Correct answers and
// explanations never leave the server while an attempt is open.
type QuestionForAttempt struct {
	Index     int                 `json:"index"`
	Text      string              `json:"text"`
	Type      models.QuestionType `json:"type"`
	Options   []string            `json:"options,omitempty"`
	Marks     int                 `json:"marks"`
	TimeLimit *int                `json:"time_limit,omitempty"`
}

type AttemptResponse struct {
	*models.Submission
	Questions []QuestionForAttempt `json:"questions"`
	Resumed   bool                 `json:"resumed"`
}

type SubmitAnswerRequest struct {
	QuestionIndex int         `json:"question_index" validate:"min=0"`
	Answer        interface{} `json:"answer"`
	TimeSpent     *int        `json:"time_spent" validate:"omitempty,min=0"`
}

type SubmitAttemptRequest struct {
	AttemptID uint                  `json:"attempt_id" validate:"required"`
	Answers   []SubmitAnswerRequest `json:"answers" validate:"required,dive"`
	TimeSpent *int                  `json:"time_spent" validate:"omitempty,min=0"`
}

type SubmissionResultResponse struct {
	*models.Submission
	PendingManualGrading bool `json:"pending_manual_grading"`
	ShowResults          bool `json:"show_results"`
}

type GradeEssayRequest struct {
	QuestionIndex int     `json:"question_index" validate:"min=0"`
	Marks         float64 `json:"marks" validate:"min=0"`
}

type AnalyticsResponse struct {
	*models.QuizAnalytics
	QuestionBreakdown []models.QuestionStat `json:"question_breakdown"`
}

// ===== SERVICE INTERFACES =====

type GroupService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateGroupRequest, creatorID string) (*GroupResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*GroupResponse, error)
	GetByIDWithMembers(ctx context.Context, id uint, userID string) (*GroupResponse, error)
	Update(ctx context.Context, id uint, req *UpdateGroupRequest, userID string) (*GroupResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	// List operations
	GetUserGroups(ctx context.Context, userID string, filters repositories.GroupFilters) (*GroupListResponse, error)
	List(ctx context.Context, filters repositories.GroupFilters, userID string) (*GroupListResponse, error)

	// Membership management
	Join(ctx context.Context, groupID uint, userID string) (*GroupMemberResponse, error)
	Leave(ctx context.Context, groupID uint, userID string) error
	AddMember(ctx context.Context, groupID uint, targetUserID string, role models.MemberRole, actorID string) (*GroupMemberResponse, error)
	RemoveMember(ctx context.Context, groupID uint, targetUserID string, actorID string) error
	UpdateMemberRole(ctx context.Context, groupID uint, targetUserID string, role models.MemberRole, actorID string) error
	GetMembers(ctx context.Context, groupID uint, userID string) ([]*GroupMemberResponse, error)

	// Settings
	UpdateSettings(ctx context.Context, groupID uint, req *GroupSettingsRequest, userID string) (*models.GroupSettings, error)

	// Statistics
	GetStats(ctx context.Context, groupID uint, userID string) (*repositories.GroupStats, error)

	// Authorization checks
	IsMember(ctx context.Context, groupID uint, userID string) (bool, error)
	CanModerate(ctx context.Context, groupID uint, userID string) (bool, error)
}

type MessageService interface {
	// Core operations
	Send(ctx context.Context, groupID uint, req *SendMessageRequest, senderID string) (*MessageResponse, error)
	SendSystemMessage(ctx context.Context, groupID uint, action, text string) (*MessageResponse, error)
	GetByID(ctx context.Context, messageID uint, userID string) (*MessageResponse, error)
	Edit(ctx context.Context, messageID uint, req *EditMessageRequest, userID string) (*MessageResponse, error)
	Delete(ctx context.Context, messageID uint, userID string) (*MessageResponse, error)

	// History
	List(ctx context.Context, groupID uint, filters repositories.MessageFilters, userID string) (*MessageListResponse, error)
	Search(ctx context.Context, groupID uint, filters repositories.MessageSearchFilters, userID string) (*MessageListResponse, error)

	// Read receipts
	MarkRead(ctx context.Context, messageID uint, userID string) (*MarkReadResult, error)
	MarkAllRead(ctx context.Context, groupID uint, userID string) (int64, error)
	UnreadCount(ctx context.Context, groupID uint, userID string) (int64, error)
}

type QuizService interface {
	// Core CRUD operations
	Create(ctx context.Context, groupID uint, req *CreateQuizRequest, creatorID string) (*QuizResponse, error)
	GetByID(ctx context.Context, quizID uint, userID string) (*QuizResponse, error)
	GetByIDWithDetails(ctx context.Context, quizID uint, userID string) (*QuizResponse, error)
	Update(ctx context.Context, quizID uint, req *UpdateQuizRequest, userID string) (*QuizResponse, error)
	Delete(ctx context.Context, quizID uint, userID string) error
	List(ctx context.Context, groupID uint, filters repositories.QuizFilters, userID string) (*QuizListResponse, error)

	// Analytics
	GetAnalytics(ctx context.Context, quizID uint, userID string) (*AnalyticsResponse, error)
	GetSubmissions(ctx context.Context, quizID uint, filters repositories.SubmissionFilters, userID string) ([]*models.Submission, int64, error)
}

type AttemptService interface {
	// Attempt lifecycle
	Start(ctx context.Context, quizID uint, userID string) (*AttemptResponse, error)
	Submit(ctx context.Context, quizID uint, req *SubmitAttemptRequest, userID string) (*SubmissionResultResponse, error)

	// Get operations
	GetSubmission(ctx context.Context, submissionID uint, userID string) (*SubmissionResultResponse, error)
	GetUserSubmissions(ctx context.Context, quizID uint, userID string) ([]*models.Submission, error)

	// Validation
	CanStart(ctx context.Context, quizID uint, userID string) (bool, error)
	GetAttemptCount(ctx context.Context, quizID uint, userID string) (int, error)
}

type GradingService interface {
	// Manual grading for essay questions
	GradeEssayAnswer(ctx context.Context, submissionID uint, req *GradeEssayRequest, graderID string) (*SubmissionResultResponse, error)
	GetPendingManualGrading(ctx context.Context, quizID uint, userID string) ([]*models.Submission, error)
}

type PresenceService interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	LastSeen(ctx context.Context, userID string) (*time.Time, error)
}

type ExportService interface {
	// ExportQuizResults renders every completed submission as an xlsx workbook.
	ExportQuizResults(ctx context.Context, quizID uint, userID string) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Group() GroupService
	Message() MessageService
	Quiz() QuizService
	Attempt() AttemptService
	Grading() GradingService
	Presence() PresenceService
	Export() ExportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
