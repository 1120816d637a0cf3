package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/events"
	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/validator"
)

type gradingService struct {
	repo           repositories.Repository
	groupService   GroupService
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewGradingService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) GradingService {
	return &gradingService{
		repo:           repo,
		groupService:   NewGroupService(repo, db, logger, validator, publisher),
		db:             db,
		logger:         logger,
		validator:      validator,
		eventPublisher: publisher,
	}
}

// GradeEssayAnswer assigns marks to one essay answer. Once every essay
// answer in the submission carries a grade, the submission flips to graded
// and analytics are rebuilt.
func (s *gradingService) GradeEssayAnswer(ctx context.Context, submissionID uint, req *GradeEssayRequest, graderID string) (*SubmissionResultResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	submission, err := s.repo.Submission().GetByIDWithAnswers(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	quiz, err := s.repo.Quiz().GetByIDWithDetails(ctx, nil, submission.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}

	if err := s.requireGrader(ctx, quiz, graderID); err != nil {
		return nil, err
	}
	if submission.Status == models.SubmissionInProgress {
		return nil, NewConflictError("submission", "cannot grade an in-progress attempt")
	}

	if req.QuestionIndex < 0 || req.QuestionIndex >= len(quiz.Questions) {
		return nil, NewConflictError("submission", fmt.Sprintf("question index %d out of range", req.QuestionIndex))
	}
	question := quiz.Questions[req.QuestionIndex]
	if question.Type.IsAutoGradeable() {
		return nil, ErrNotEssayQuestion
	}
	if req.Marks > float64(question.Marks) {
		return nil, NewConflictError("submission", fmt.Sprintf("marks exceed question maximum of %d", question.Marks))
	}

	var answer *models.SubmissionAnswer
	for i := range submission.Answers {
		if submission.Answers[i].QuestionIndex == req.QuestionIndex {
			answer = &submission.Answers[i]
			break
		}
	}
	if answer == nil {
		return nil, NewConflictError("submission", "no answer was given for that question")
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		now := time.Now().UTC()
		answer.MarksObtained = req.Marks
		answer.IsCorrect = req.Marks >= float64(question.Marks)
		answer.GradedBy = &graderID
		answer.GradedAt = &now

		if err := txRepo.Submission().UpdateAnswer(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to store grade: %w", err)
		}

		total := 0.0
		for _, a := range submission.Answers {
			total += a.MarksObtained
		}
		submission.TotalScore = total
		submission.Percentage = percentage(total, quiz.TotalMarks)

		if allEssaysGraded(quiz, submission) {
			submission.Status = models.SubmissionGraded
		}

		if err := txRepo.Submission().Update(ctx, nil, submission); err != nil {
			return fmt.Errorf("failed to update submission: %w", err)
		}

		if submission.Status == models.SubmissionGraded {
			if err := recomputeAnalytics(ctx, txRepo, quiz); err != nil {
				return fmt.Errorf("failed to recompute analytics: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if submission.Status == models.SubmissionGraded {
		s.publishEvent(ctx, events.EventSubmissionGraded, events.SubmissionEventData{
			SubmissionID:  submission.ID,
			QuizID:        quiz.ID,
			GroupID:       quiz.GroupID,
			UserID:        submission.UserID,
			AttemptNumber: submission.AttemptNumber,
			TotalScore:    submission.TotalScore,
			Percentage:    submission.Percentage,
			Status:        string(submission.Status),
		})
	}

	s.logger.Info("Essay answer graded", "submission_id", submissionID,
		"question_index", req.QuestionIndex, "marks", req.Marks, "grader_id", graderID)

	return &SubmissionResultResponse{
		Submission:           submission,
		PendingManualGrading: submission.Status == models.SubmissionSubmitted,
		ShowResults:          quiz.Settings.ShowResults,
	}, nil
}

// GetPendingManualGrading lists submissions waiting on an essay grade.
func (s *gradingService) GetPendingManualGrading(ctx context.Context, quizID uint, userID string) ([]*models.Submission, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}
	if err := s.requireGrader(ctx, quiz, userID); err != nil {
		return nil, err
	}

	status := models.SubmissionSubmitted
	submissions, _, err := s.repo.Submission().ListByQuiz(ctx, nil, quizID, repositories.SubmissionFilters{
		Status:    &status,
		SortBy:    "submitted_at",
		SortOrder: "asc",
	})
	return submissions, err
}

func (s *gradingService) requireGrader(ctx context.Context, quiz *models.Quiz, userID string) error {
	if quiz.CreatedBy == userID {
		return nil
	}
	can, err := s.groupService.CanModerate(ctx, quiz.GroupID, userID)
	if err != nil {
		return err
	}
	if !can {
		return NewPermissionError(userID, quiz.ID, "submission", "grade", "requires quiz creator or group admin")
	}
	return nil
}

// allEssaysGraded reports whether every answered essay question has a manual
// grade recorded.
func allEssaysGraded(quiz *models.Quiz, submission *models.Submission) bool {
	for _, a := range submission.Answers {
		if a.QuestionIndex < 0 || a.QuestionIndex >= len(quiz.Questions) {
			continue
		}
		if quiz.Questions[a.QuestionIndex].Type.IsAutoGradeable() {
			continue
		}
		if a.GradedAt == nil {
			return false
		}
	}
	return true
}

func (s *gradingService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.Warn("Failed to publish event", "event_type", eventType, "error", err)
	}
}
