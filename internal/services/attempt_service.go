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

type attemptService struct {
	repo           repositories.Repository
	groupService   GroupService
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:           repo,
		groupService:   NewGroupService(repo, db, logger, validator, publisher),
		db:             db,
		logger:         logger,
		validator:      validator,
		eventPublisher: publisher,
	}
}

// ===== ATTEMPT LIFECYCLE =====

// Start opens a new attempt or resumes the user's in-progress one. Attempt
// creation serializes on the quiz row so two racing starts cannot both pass
// the attempt cap.
func (s *attemptService) Start(ctx context.Context, quizID uint, userID string) (*AttemptResponse, error) {
	quiz, err := s.getQuizWithDetails(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, quiz.GroupID, userID); err != nil {
		return nil, err
	}

	// The deadline gates the start of an attempt, resumed or fresh. A
	// running attempt is not cut off; it just cannot be reopened.
	if !quiz.IsOpen(time.Now().UTC()) {
		return nil, s.closedError(quiz)
	}

	// An open attempt is resumed, never duplicated.
	active, err := s.repo.Submission().GetActive(ctx, nil, quizID, userID)
	if err == nil {
		s.logger.Info("Resuming attempt", "quiz_id", quizID, "user_id", userID, "attempt", active.AttemptNumber)
		return &AttemptResponse{
			Submission: active,
			Questions:  questionsForAttempt(quiz),
			Resumed:    true,
		}, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, err
	}

	var submission *models.Submission
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Quiz().LockForSubmit(ctx, nil, quizID); err != nil {
			return err
		}

		completed, err := txRepo.Submission().CountCompleted(ctx, nil, quizID, userID)
		if err != nil {
			return err
		}
		if completed >= int64(effectiveMaxAttempts(quiz)) {
			return ErrAttemptsExhausted
		}

		prev, err := txRepo.Submission().MaxAttemptNumber(ctx, nil, quizID, userID)
		if err != nil {
			return err
		}

		submission = &models.Submission{
			QuizID:        quizID,
			UserID:        userID,
			AttemptNumber: prev + 1,
			Status:        models.SubmissionInProgress,
			StartedAt:     time.Now().UTC(),
		}
		return txRepo.Submission().Create(ctx, nil, submission)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attempt started", "quiz_id", quizID, "user_id", userID, "attempt", submission.AttemptNumber)
	return &AttemptResponse{
		Submission: submission,
		Questions:  questionsForAttempt(quiz),
	}, nil
}

// Submit grades and finalizes the in-progress attempt named by the request.
// The deadline is not re-checked here: an attempt started in time may be
// handed in after it passes. Grading is deterministic: the same answers
// against the same questions always produce the same score.
func (s *attemptService) Submit(ctx context.Context, quizID uint, req *SubmitAttemptRequest, userID string) (*SubmissionResultResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	quiz, err := s.getQuizWithDetails(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, quiz.GroupID, userID); err != nil {
		return nil, err
	}
	if len(req.Answers) > len(quiz.Questions) {
		return nil, ErrAnswerCountMismatch
	}

	var submission *models.Submission
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Quiz().LockForSubmit(ctx, nil, quizID); err != nil {
			return err
		}

		submission, err = txRepo.Submission().GetByID(ctx, nil, req.AttemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if submission.QuizID != quizID || submission.UserID != userID {
			return ErrSubmissionNotFound
		}
		if submission.Status != models.SubmissionInProgress {
			return ErrAttemptAlreadySubmitted
		}

		answers, totalScore, pendingManual, err := gradeAnswers(quiz, submission.ID, req.Answers)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		submission.SubmittedAt = &now
		submission.TotalScore = totalScore
		submission.Percentage = percentage(totalScore, quiz.TotalMarks)
		if req.TimeSpent != nil {
			submission.TimeSpent = *req.TimeSpent
		} else {
			submission.TimeSpent = int(now.Sub(submission.StartedAt).Seconds())
		}
		if pendingManual {
			submission.Status = models.SubmissionSubmitted
		} else {
			submission.Status = models.SubmissionGraded
		}
		submission.Answers = answers

		if err := txRepo.Submission().Update(ctx, nil, submission); err != nil {
			return fmt.Errorf("failed to store submission: %w", err)
		}

		// Fully auto-graded attempts feed analytics immediately.
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

	s.publishEvent(ctx, events.EventQuizSubmitted, events.SubmissionEventData{
		SubmissionID:  submission.ID,
		QuizID:        quizID,
		GroupID:       quiz.GroupID,
		UserID:        userID,
		AttemptNumber: submission.AttemptNumber,
		TotalScore:    submission.TotalScore,
		Percentage:    submission.Percentage,
		Status:        string(submission.Status),
	})

	s.logger.Info("Attempt submitted", "quiz_id", quizID, "user_id", userID,
		"attempt", submission.AttemptNumber, "score", submission.TotalScore, "status", submission.Status)

	return &SubmissionResultResponse{
		Submission:           submission,
		PendingManualGrading: submission.Status == models.SubmissionSubmitted,
		ShowResults:          quiz.Settings.ShowResults,
	}, nil
}

// ===== GET OPERATIONS =====

func (s *attemptService) GetSubmission(ctx context.Context, submissionID uint, userID string) (*SubmissionResultResponse, error) {
	submission, err := s.repo.Submission().GetByIDWithAnswers(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	quiz, err := s.getQuizWithDetails(ctx, submission.QuizID)
	if err != nil {
		return nil, err
	}

	if submission.UserID != userID {
		can, err := s.groupService.CanModerate(ctx, quiz.GroupID, userID)
		if err != nil {
			return nil, err
		}
		if quiz.CreatedBy != userID && !can {
			return nil, NewPermissionError(userID, submissionID, "submission", "read", "not owner, quiz creator, or group admin")
		}
	}

	return &SubmissionResultResponse{
		Submission:           submission,
		PendingManualGrading: submission.Status == models.SubmissionSubmitted,
		ShowResults:          quiz.Settings.ShowResults,
	}, nil
}

func (s *attemptService) GetUserSubmissions(ctx context.Context, quizID uint, userID string) ([]*models.Submission, error) {
	quiz, err := s.getQuizWithDetails(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, quiz.GroupID, userID); err != nil {
		return nil, err
	}
	return s.repo.Submission().ListByUser(ctx, nil, quizID, userID)
}

// ===== VALIDATION =====

func (s *attemptService) CanStart(ctx context.Context, quizID uint, userID string) (bool, error) {
	quiz, err := s.getQuizWithDetails(ctx, quizID)
	if err != nil {
		return false, err
	}
	if !quiz.IsOpen(time.Now().UTC()) {
		return false, nil
	}
	completed, err := s.repo.Submission().CountCompleted(ctx, nil, quizID, userID)
	if err != nil {
		return false, err
	}
	return completed < int64(effectiveMaxAttempts(quiz)), nil
}

func (s *attemptService) GetAttemptCount(ctx context.Context, quizID uint, userID string) (int, error) {
	completed, err := s.repo.Submission().CountCompleted(ctx, nil, quizID, userID)
	return int(completed), err
}

// ===== HELPERS =====

func (s *attemptService) getQuizWithDetails(ctx context.Context, quizID uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithDetails(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *attemptService) requireMember(ctx context.Context, groupID uint, userID string) (*models.GroupMember, error) {
	member, err := s.repo.Group().GetMember(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return member, nil
}

func (s *attemptService) closedError(quiz *models.Quiz) error {
	if quiz.Deadline != nil && time.Now().UTC().After(*quiz.Deadline) {
		return ErrQuizDeadlinePassed
	}
	return ErrQuizNotActive
}

func (s *attemptService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.Warn("Failed to publish event", "event_type", eventType, "error", err)
	}
}
