package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/events"
	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/validator"
)

type quizService struct {
	repo           repositories.Repository
	groupService   GroupService
	messageService MessageService
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewQuizService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) QuizService {
	return &quizService{
		repo:           repo,
		groupService:   NewGroupService(repo, db, logger, validator, publisher),
		messageService: NewMessageService(repo, db, logger, validator, publisher),
		db:             db,
		logger:         logger,
		validator:      validator,
		eventPublisher: publisher,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *quizService) Create(ctx context.Context, groupID uint, req *CreateQuizRequest, creatorID string) (*QuizResponse, error) {
	s.logger.Info("Creating quiz", "group_id", groupID, "creator_id", creatorID, "title", req.Title)

	if err := s.validator.ValidateQuizCreate(req); err != nil {
		return nil, err
	}

	member, err := s.repo.Group().GetMember(ctx, nil, groupID, creatorID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}

	if !member.IsGroupAdmin() {
		settings, err := s.repo.Group().GetSettings(ctx, nil, groupID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return nil, err
		}
		if err == nil && !settings.AllowQuizCreation {
			return nil, ErrQuizCreationDisabled
		}
	}

	var quiz *models.Quiz
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		questions, totalMarks, err := buildQuestions(req.Questions)
		if err != nil {
			return err
		}

		quiz = &models.Quiz{
			GroupID:     groupID,
			CreatedBy:   creatorID,
			Title:       req.Title,
			Description: req.Description,
			Deadline:    req.Deadline,
			IsActive:    true,
			TotalMarks:  totalMarks,
			Questions:   questions,
			Settings:    buildQuizSettings(0, req.Settings),
		}
		if err := txRepo.Quiz().Create(ctx, nil, quiz); err != nil {
			return fmt.Errorf("failed to create quiz: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Announce the quiz in the group's message log.
	if _, err := s.messageService.SendSystemMessage(ctx, groupID, "quiz_created",
		fmt.Sprintf("New quiz available: %s", req.Title)); err != nil {
		s.logger.Warn("Failed to announce quiz", "quiz_id", quiz.ID, "error", err)
	}

	s.publishEvent(ctx, events.EventQuizCreated, events.QuizEventData{
		QuizID:  quiz.ID,
		GroupID: groupID,
		UserID:  creatorID,
	})

	s.logger.Info("Quiz created", "quiz_id", quiz.ID)
	return s.GetByIDWithDetails(ctx, quiz.ID, creatorID)
}

// GetByID returns the quiz without question payloads.
func (s *quizService) GetByID(ctx context.Context, quizID uint, userID string) (*QuizResponse, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, quiz.GroupID, userID); err != nil {
		return nil, err
	}
	return s.toResponse(ctx, quiz, userID)
}

// GetByIDWithDetails returns the full quiz. Non-creators get questions with
// correct answers and explanations stripped.
func (s *quizService) GetByIDWithDetails(ctx context.Context, quizID uint, userID string) (*QuizResponse, error) {
	quiz, err := s.repo.Quiz().GetByIDWithDetails(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}
	if _, err := s.requireMember(ctx, quiz.GroupID, userID); err != nil {
		return nil, err
	}

	canModerate, err := s.groupService.CanModerate(ctx, quiz.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if quiz.CreatedBy != userID && !canModerate {
		sanitizeQuestions(quiz.Questions)
	}

	return s.toResponse(ctx, quiz, userID)
}

func (s *quizService) Update(ctx context.Context, quizID uint, req *UpdateQuizRequest, userID string) (*QuizResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrModerator(ctx, quiz, userID, "update"); err != nil {
		return nil, err
	}

	// Question edits after the first submission would corrupt existing scores.
	if len(req.Questions) > 0 {
		count, err := s.countSubmissions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrQuizHasSubmissions
		}
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		current, err := txRepo.Quiz().GetByIDWithDetails(ctx, nil, quizID)
		if err != nil {
			return err
		}

		if req.Title != nil {
			current.Title = *req.Title
		}
		if req.Description != nil {
			current.Description = req.Description
		}
		if req.Deadline != nil {
			current.Deadline = req.Deadline
		}
		if req.IsActive != nil {
			current.IsActive = *req.IsActive
		}
		if len(req.Questions) > 0 {
			questions, totalMarks, err := buildQuestions(req.Questions)
			if err != nil {
				return err
			}
			current.Questions = questions
			current.TotalMarks = totalMarks
		}
		if req.Settings != nil {
			current.Settings = buildQuizSettings(quizID, req.Settings)
		}

		return txRepo.Quiz().Update(ctx, nil, current)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quiz updated", "quiz_id", quizID, "user_id", userID)
	return s.GetByIDWithDetails(ctx, quizID, userID)
}

func (s *quizService) Delete(ctx context.Context, quizID uint, userID string) error {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.requireOwnerOrModerator(ctx, quiz, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.Quiz().Delete(ctx, nil, quizID); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}

	s.logger.Info("Quiz deleted", "quiz_id", quizID, "user_id", userID)
	return nil
}

func (s *quizService) List(ctx context.Context, groupID uint, filters repositories.QuizFilters, userID string) (*QuizListResponse, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	quizzes, total, err := s.repo.Quiz().List(ctx, nil, groupID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}

	responses := make([]*QuizResponse, 0, len(quizzes))
	for _, q := range quizzes {
		resp, err := s.toResponse(ctx, q, userID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}
	return &QuizListResponse{
		Quizzes: responses,
		Total:   total,
		Page:    page,
		Size:    len(responses),
	}, nil
}

// ===== ANALYTICS =====

func (s *quizService) GetAnalytics(ctx context.Context, quizID uint, userID string) (*AnalyticsResponse, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrModerator(ctx, quiz, userID, "view_analytics"); err != nil {
		return nil, err
	}

	analytics, err := s.repo.Quiz().GetAnalytics(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// No graded submissions yet.
			analytics = &models.QuizAnalytics{QuizID: quizID}
		} else {
			return nil, err
		}
	}

	var breakdown []models.QuestionStat
	if len(analytics.QuestionStats) > 0 {
		if err := json.Unmarshal(analytics.QuestionStats, &breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode question stats: %w", err)
		}
	}

	return &AnalyticsResponse{
		QuizAnalytics:     analytics,
		QuestionBreakdown: breakdown,
	}, nil
}

func (s *quizService) GetSubmissions(ctx context.Context, quizID uint, filters repositories.SubmissionFilters, userID string) ([]*models.Submission, int64, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, 0, err
	}

	// Non-moderators see only their own submissions.
	canModerate, err := s.groupService.CanModerate(ctx, quiz.GroupID, userID)
	if err != nil {
		return nil, 0, err
	}
	if quiz.CreatedBy != userID && !canModerate {
		filters.UserID = &userID
	}

	return s.repo.Submission().ListByQuiz(ctx, nil, quizID, filters)
}

// ===== HELPERS =====

func (s *quizService) getQuiz(ctx context.Context, id uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *quizService) requireMember(ctx context.Context, groupID uint, userID string) (*models.GroupMember, error) {
	member, err := s.repo.Group().GetMember(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return member, nil
}

func (s *quizService) requireOwnerOrModerator(ctx context.Context, quiz *models.Quiz, userID, action string) error {
	if quiz.CreatedBy == userID {
		return nil
	}
	can, err := s.groupService.CanModerate(ctx, quiz.GroupID, userID)
	if err != nil {
		return err
	}
	if !can {
		return NewPermissionError(userID, quiz.ID, "quiz", action, "requires quiz creator or group admin")
	}
	return nil
}

func (s *quizService) countSubmissions(ctx context.Context, quizID uint) (int64, error) {
	_, total, err := s.repo.Submission().ListByQuiz(ctx, nil, quizID, repositories.SubmissionFilters{Limit: 1})
	return total, err
}

func (s *quizService) toResponse(ctx context.Context, quiz *models.Quiz, userID string) (*QuizResponse, error) {
	_, total, err := s.repo.Submission().ListByQuiz(ctx, nil, quiz.ID, repositories.SubmissionFilters{Limit: 1})
	if err != nil {
		return nil, err
	}

	completed, err := s.repo.Submission().CountCompleted(ctx, nil, quiz.ID, userID)
	if err != nil {
		return nil, err
	}

	canSubmit := quiz.IsOpen(time.Now().UTC()) && completed < int64(effectiveMaxAttempts(quiz))

	return &QuizResponse{
		Quiz:            quiz,
		CanEdit:         quiz.CreatedBy == userID,
		CanSubmit:       canSubmit,
		SubmissionCount: total,
	}, nil
}

// buildQuestions converts request questions into model rows and computes the
// quiz's total marks.
func buildQuestions(reqs []validator.QuizQuestionRequest) ([]models.QuizQuestion, int, error) {
	questions := make([]models.QuizQuestion, 0, len(reqs))
	totalMarks := 0

	for i, qr := range reqs {
		question := models.QuizQuestion{
			Order:       i,
			Text:        qr.Question,
			Type:        qr.Type,
			Explanation: qr.Explanation,
			Marks:       qr.Marks,
			TimeLimit:   qr.TimeLimit,
		}

		if len(qr.Options) > 0 {
			options, err := json.Marshal(qr.Options)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to marshal options for question %d: %w", i, err)
			}
			question.Options = datatypes.JSON(options)
		}

		if qr.Type.IsAutoGradeable() {
			answer, err := json.Marshal(qr.CorrectAnswer)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to marshal answer for question %d: %w", i, err)
			}
			question.CorrectAnswer = datatypes.JSON(answer)
		}

		totalMarks += qr.Marks
		questions = append(questions, question)
	}

	return questions, totalMarks, nil
}

func buildQuizSettings(quizID uint, req *validator.QuizSettingsRequest) models.QuizSettings {
	settings := models.QuizSettings{
		QuizID:      quizID,
		ShowResults: true,
		MaxAttempts: 1,
	}
	if req == nil {
		return settings
	}
	if req.ShuffleQuestions != nil {
		settings.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		settings.ShuffleOptions = *req.ShuffleOptions
	}
	if req.ShowResults != nil {
		settings.ShowResults = *req.ShowResults
	}
	if req.AllowRetakes != nil {
		settings.AllowRetakes = *req.AllowRetakes
	}
	if req.TimeLimit != nil {
		settings.TimeLimit = req.TimeLimit
	}
	if req.MaxAttempts != nil {
		settings.MaxAttempts = *req.MaxAttempts
	}
	return settings
}

// sanitizeQuestions strips grading secrets from taker-facing payloads.
func sanitizeQuestions(questions []models.QuizQuestion) {
	for i := range questions {
		questions[i].CorrectAnswer = nil
		questions[i].Explanation = nil
	}
}

func (s *quizService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.Warn("Failed to publish event", "event_type", eventType, "error", err)
	}
}
