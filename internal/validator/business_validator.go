package validator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edustream/groupchat-service/internal/models"
)

func (v *Validator) registerBusinessRules() {
	// question_type validates quiz question type enum
	_ = v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.MultipleChoice, models.ShortAnswer, models.TrueFalse, models.Essay:
			return true
		}
		return false
	})

	// message_type validates outbound message type enum; system messages are
	// only minted server-side and are rejected here.
	_ = v.validate.RegisterValidation("message_type", func(fl validator.FieldLevel) bool {
		switch models.MessageType(fl.Field().String()) {
		case models.MessageText, models.MessageFile, models.MessageQuiz:
			return true
		}
		return false
	})

	// marks_range validates question marks
	_ = v.validate.RegisterValidation("marks_range", func(fl validator.FieldLevel) bool {
		marks := fl.Field().Int()
		return marks >= 0 && marks <= 100
	})

	// max_members_range validates group capacity
	_ = v.validate.RegisterValidation("max_members_range", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n >= models.MinGroupMembers && n <= models.MaxGroupMembers
	})
}

// ValidateQuizCreate applies cross-field rules that struct tags cannot
// express: option/answer requirements per question type.
func (v *Validator) ValidateQuizCreate(req *QuizCreateRequest) error {
	if err := v.Validate(req); err != nil {
		return err
	}

	var errs ValidationErrors
	for i, q := range req.Questions {
		errs = append(errs, validateQuestionShape(i, &q)...)
	}

	if req.Deadline != nil && req.Deadline.Before(time.Now()) {
		errs = append(errs, ValidationError{
			Field:   "deadline",
			Message: "must be in the future",
			Value:   req.Deadline,
			Rule:    "business_logic",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateQuestionShape(index int, q *QuizQuestionRequest) ValidationErrors {
	var errs ValidationErrors
	field := func(name string) string {
		return fmt.Sprintf("questions[%d].%s", index, name)
	}

	switch q.Type {
	case models.MultipleChoice:
		if len(q.Options) < 2 {
			errs = append(errs, ValidationError{
				Field:   field("options"),
				Message: "multiple-choice questions need at least 2 options",
				Rule:    "business_logic",
			})
		}
		if q.CorrectAnswer == nil {
			errs = append(errs, ValidationError{
				Field:   field("correct_answer"),
				Message: "is required for multiple-choice questions",
				Rule:    "business_logic",
			})
		}
	case models.TrueFalse:
		if _, ok := q.CorrectAnswer.(bool); !ok {
			errs = append(errs, ValidationError{
				Field:   field("correct_answer"),
				Message: "must be a boolean for true-false questions",
				Value:   q.CorrectAnswer,
				Rule:    "business_logic",
			})
		}
	case models.ShortAnswer:
		if s, ok := q.CorrectAnswer.(string); !ok || s == "" {
			errs = append(errs, ValidationError{
				Field:   field("correct_answer"),
				Message: "must be a non-empty string for short-answer questions",
				Rule:    "business_logic",
			})
		}
	case models.Essay:
		if q.CorrectAnswer != nil {
			errs = append(errs, ValidationError{
				Field:   field("correct_answer"),
				Message: "must be absent for essay questions",
				Rule:    "business_logic",
			})
		}
	}

	return errs
}

// ValidateMessageContent checks that the content payload decodes into the
// schema demanded by the declared message type, before any store mutation.
func (v *Validator) ValidateMessageContent(msgType models.MessageType, content interface{}) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return ValidationErrors{{Field: "content", Message: "is not valid JSON", Rule: "shape"}}
	}

	switch msgType {
	case models.MessageText:
		var tc models.TextMessageContent
		if err := json.Unmarshal(raw, &tc); err != nil || tc.Text == "" {
			return ValidationErrors{{Field: "content.text", Message: "is required for text messages", Rule: "shape"}}
		}
		if len(tc.Text) > 5000 {
			return ValidationErrors{{Field: "content.text", Message: "must be at most 5000 characters", Rule: "shape"}}
		}
	case models.MessageFile:
		var fc models.FileMessageContent
		if err := json.Unmarshal(raw, &fc); err != nil || fc.URL == "" || fc.OriginalName == "" {
			return ValidationErrors{{Field: "content", Message: "file messages need a file descriptor with url and original_name", Rule: "shape"}}
		}
	case models.MessageQuiz:
		var qc models.QuizMessageContent
		if err := json.Unmarshal(raw, &qc); err != nil || qc.QuizID == 0 {
			return ValidationErrors{{Field: "content.quiz_id", Message: "is required for quiz messages", Rule: "shape"}}
		}
	default:
		return ValidationErrors{{Field: "type", Message: "is not a supported message type", Rule: "shape"}}
	}

	return nil
}
