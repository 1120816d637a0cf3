package validator

import (
	"time"

	"github.com/edustream/groupchat-service/internal/models"
)

// GroupCreateRequest is the request structure for creating groups.
type GroupCreateRequest struct {
	Name        string                `json:"name" validate:"required,min=1,max=100"`
	Description *string               `json:"description" validate:"omitempty,max=1000"`
	MaxMembers  int                   `json:"max_members" validate:"required,max_members_range"`
	Settings    *GroupSettingsRequest `json:"settings"`
}

type GroupSettingsRequest struct {
	AllowStudentMessages *bool `json:"allow_student_messages"`
	AllowFileUploads     *bool `json:"allow_file_uploads"`
	AllowQuizCreation    *bool `json:"allow_quiz_creation"`
}

type GroupUpdateRequest struct {
	Name        *string               `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string               `json:"description" validate:"omitempty,max=1000"`
	MaxMembers  *int                  `json:"max_members" validate:"omitempty,max_members_range"`
	IsActive    *bool                 `json:"is_active"`
	Settings    *GroupSettingsRequest `json:"settings"`
}

// SendMessageRequest carries one outbound message, REST or realtime. Content
// shape depends on Type; ValidateMessageContent checks the pairing.
type SendMessageRequest struct {
	Type      models.MessageType `json:"type" validate:"required,message_type"`
	Content   interface{}        `json:"content" validate:"required"`
	ReplyToID *uint              `json:"reply_to_id"`
}

type EditMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=5000"`
}

// QuizCreateRequest is the request structure for creating quizzes.
type QuizCreateRequest struct {
	Title       string                `json:"title" validate:"required,min=1,max=200"`
	Description *string               `json:"description" validate:"omitempty,max=1000"`
	Deadline    *time.Time            `json:"deadline"`
	Questions   []QuizQuestionRequest `json:"questions" validate:"required,min=1,dive"`
	Settings    *QuizSettingsRequest  `json:"settings"`
}

type QuizQuestionRequest struct {
	Question      string              `json:"question" validate:"required,min=1,max=2000"`
	Type          models.QuestionType `json:"type" validate:"required,question_type"`
	Options       []string            `json:"options" validate:"omitempty,max=10,dive,max=500"`
	CorrectAnswer interface{}         `json:"correct_answer"`
	Explanation   *string             `json:"explanation" validate:"omitempty,max=1000"`
	Marks         int                 `json:"marks" validate:"marks_range"`
	TimeLimit     *int                `json:"time_limit" validate:"omitempty,min=5,max=3600"`
}

type QuizSettingsRequest struct {
	ShuffleQuestions *bool `json:"shuffle_questions"`
	ShuffleOptions   *bool `json:"shuffle_options"`
	ShowResults      *bool `json:"show_results"`
	AllowRetakes     *bool `json:"allow_retakes"`
	TimeLimit        *int  `json:"time_limit" validate:"omitempty,min=1,max=300"`
	MaxAttempts      *int  `json:"max_attempts" validate:"omitempty,min=1,max=10"`
}

type QuizUpdateRequest struct {
	Title       *string               `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string               `json:"description" validate:"omitempty,max=1000"`
	Deadline    *time.Time            `json:"deadline"`
	IsActive    *bool                 `json:"is_active"`
	Questions   []QuizQuestionRequest `json:"questions" validate:"omitempty,min=1,dive"`
	Settings    *QuizSettingsRequest  `json:"settings"`
}
