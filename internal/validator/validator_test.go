package validator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/edustream/groupchat-service/internal/models"
)

func fieldFailed(t *testing.T, err error, field string) bool {
	t.Helper()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Expected ValidationErrors, got %T: %v", err, err)
	}
	for _, ve := range verrs {
		if ve.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_GroupCreateRequest(t *testing.T) {
	v := New()

	tests := []struct {
		name      string
		req       GroupCreateRequest
		wantErr   bool
		wantField string
	}{
		{
			name: "Valid request",
			req:  GroupCreateRequest{Name: "Physics 101", MaxMembers: 30},
		},
		{
			name:      "Missing name",
			req:       GroupCreateRequest{MaxMembers: 30},
			wantErr:   true,
			wantField: "Name",
		},
		{
			name:      "Capacity above limit",
			req:       GroupCreateRequest{Name: "Physics 101", MaxMembers: models.MaxGroupMembers + 1},
			wantErr:   true,
			wantField: "MaxMembers",
		},
		{
			name:      "Capacity missing",
			req:       GroupCreateRequest{Name: "Physics 101"},
			wantErr:   true,
			wantField: "MaxMembers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !fieldFailed(t, err, tt.wantField) {
				t.Errorf("Expected failure on field %q, got %v", tt.wantField, err)
			}
		})
	}
}

func TestValidate_SendMessageRequest(t *testing.T) {
	v := New()

	err := v.Validate(&SendMessageRequest{
		Type:    models.MessageText,
		Content: map[string]interface{}{"text": "hi"},
	})
	if err != nil {
		t.Errorf("Expected no error for text message, got %v", err)
	}

	err = v.Validate(&SendMessageRequest{
		Type:    models.MessageSystem,
		Content: map[string]interface{}{"text": "hi"},
	})
	if err == nil {
		t.Fatal("Expected system message type to be rejected")
	}
	if !fieldFailed(t, err, "Type") {
		t.Errorf("Expected failure on Type, got %v", err)
	}
}

func TestValidateQuizCreate(t *testing.T) {
	v := New()

	validQuestion := func(qType models.QuestionType) QuizQuestionRequest {
		q := QuizQuestionRequest{Question: "What is 2+2?", Type: qType, Marks: 2}
		switch qType {
		case models.MultipleChoice:
			q.Options = []string{"3", "4", "5"}
			q.CorrectAnswer = "4"
		case models.TrueFalse:
			q.CorrectAnswer = true
		case models.ShortAnswer:
			q.CorrectAnswer = "four"
		}
		return q
	}

	t.Run("Valid quiz with every question type", func(t *testing.T) {
		req := &QuizCreateRequest{
			Title: "Arithmetic",
			Questions: []QuizQuestionRequest{
				validQuestion(models.MultipleChoice),
				validQuestion(models.TrueFalse),
				validQuestion(models.ShortAnswer),
				validQuestion(models.Essay),
			},
		}
		if err := v.ValidateQuizCreate(req); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("No questions", func(t *testing.T) {
		req := &QuizCreateRequest{Title: "Empty"}
		err := v.ValidateQuizCreate(req)
		if err == nil {
			t.Fatal("Expected validation error, got nil")
		}
		if !fieldFailed(t, err, "Questions") {
			t.Errorf("Expected failure on Questions, got %v", err)
		}
	})

	t.Run("Multiple choice with one option", func(t *testing.T) {
		q := validQuestion(models.MultipleChoice)
		q.Options = []string{"4"}
		req := &QuizCreateRequest{Title: "Arithmetic", Questions: []QuizQuestionRequest{q}}

		err := v.ValidateQuizCreate(req)
		if err == nil {
			t.Fatal("Expected validation error, got nil")
		}
		if !fieldFailed(t, err, "questions[0].options") {
			t.Errorf("Expected failure on questions[0].options, got %v", err)
		}
	})

	t.Run("Multiple choice without correct answer", func(t *testing.T) {
		q := validQuestion(models.MultipleChoice)
		q.CorrectAnswer = nil
		req := &QuizCreateRequest{Title: "Arithmetic", Questions: []QuizQuestionRequest{q}}

		err := v.ValidateQuizCreate(req)
		if err == nil {
			t.Fatal("Expected validation error, got nil")
		}
		if !fieldFailed(t, err, "questions[0].correct_answer") {
			t.Errorf("Expected failure on questions[0].correct_answer, got %v", err)
		}
	})

	t.Run("True-false with string answer", func(t *testing.T) {
		q := validQuestion(models.TrueFalse)
		q.CorrectAnswer = "true"
		req := &QuizCreateRequest{Title: "Arithmetic", Questions: []QuizQuestionRequest{q}}

		if err := v.ValidateQuizCreate(req); err == nil {
			t.Error("Expected non-boolean true-false answer to be rejected")
		}
	})

	t.Run("Short answer with empty string", func(t *testing.T) {
		q := validQuestion(models.ShortAnswer)
		q.CorrectAnswer = ""
		req := &QuizCreateRequest{Title: "Arithmetic", Questions: []QuizQuestionRequest{q}}

		if err := v.ValidateQuizCreate(req); err == nil {
			t.Error("Expected empty short-answer key to be rejected")
		}
	})

	t.Run("Essay with correct answer set", func(t *testing.T) {
		q := validQuestion(models.Essay)
		q.CorrectAnswer = "anything"
		req := &QuizCreateRequest{Title: "Arithmetic", Questions: []QuizQuestionRequest{q}}

		if err := v.ValidateQuizCreate(req); err == nil {
			t.Error("Expected essay question with answer key to be rejected")
		}
	})

	t.Run("Past deadline", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		req := &QuizCreateRequest{
			Title:     "Arithmetic",
			Deadline:  &past,
			Questions: []QuizQuestionRequest{validQuestion(models.TrueFalse)},
		}

		err := v.ValidateQuizCreate(req)
		if err == nil {
			t.Fatal("Expected validation error, got nil")
		}
		if !fieldFailed(t, err, "deadline") {
			t.Errorf("Expected failure on deadline, got %v", err)
		}
	})

	t.Run("Marks out of range", func(t *testing.T) {
		q := validQuestion(models.TrueFalse)
		q.Marks = 101
		req := &QuizCreateRequest{Title: "Arithmetic", Questions: []QuizQuestionRequest{q}}

		err := v.ValidateQuizCreate(req)
		if err == nil {
			t.Fatal("Expected validation error, got nil")
		}
		if !fieldFailed(t, err, "Marks") {
			t.Errorf("Expected failure on Marks, got %v", err)
		}
	})

	t.Run("Unsupported question type", func(t *testing.T) {
		q := validQuestion(models.TrueFalse)
		q.Type = models.QuestionType("matching")
		req := &QuizCreateRequest{Title: "Arithmetic", Questions: []QuizQuestionRequest{q}}

		err := v.ValidateQuizCreate(req)
		if err == nil {
			t.Fatal("Expected validation error, got nil")
		}
		if !strings.Contains(err.Error(), "not a supported question type") {
			t.Errorf("Expected question type message, got %v", err)
		}
	})
}

func TestValidateMessageContent(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		msgType models.MessageType
		content interface{}
		wantErr bool
	}{
		{
			name:    "Valid text",
			msgType: models.MessageText,
			content: map[string]interface{}{"text": "hello"},
		},
		{
			name:    "Text missing body",
			msgType: models.MessageText,
			content: map[string]interface{}{},
			wantErr: true,
		},
		{
			name:    "Text too long",
			msgType: models.MessageText,
			content: map[string]interface{}{"text": strings.Repeat("a", 5001)},
			wantErr: true,
		},
		{
			name:    "Valid file",
			msgType: models.MessageFile,
			content: map[string]interface{}{"url": "https://cdn/x.pdf", "original_name": "x.pdf", "size": 120},
		},
		{
			name:    "File missing url",
			msgType: models.MessageFile,
			content: map[string]interface{}{"original_name": "x.pdf"},
			wantErr: true,
		},
		{
			name:    "Valid quiz reference",
			msgType: models.MessageQuiz,
			content: map[string]interface{}{"quiz_id": 9, "title": "Arithmetic"},
		},
		{
			name:    "Quiz reference without id",
			msgType: models.MessageQuiz,
			content: map[string]interface{}{"title": "Arithmetic"},
			wantErr: true,
		},
		{
			name:    "System type rejected",
			msgType: models.MessageSystem,
			content: map[string]interface{}{"text": "user joined"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateMessageContent(tt.msgType, tt.content)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "Name", Message: "is required", Rule: "required"},
		{Field: "MaxMembers", Message: "must be between 1 and 500", Rule: "max_members_range"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "Name: is required") {
		t.Errorf("Expected joined message to contain field errors, got %q", msg)
	}
	if !strings.Contains(msg, "MaxMembers") {
		t.Errorf("Expected joined message to contain all fields, got %q", msg)
	}

	if got := (ValidationErrors{}).Error(); got != "validation failed" {
		t.Errorf("Expected bare message for empty errors, got %q", got)
	}
}
