package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/cache"
	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
)

type SubmissionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewSubmissionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (s *SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(submission).Error
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	db := s.getDB(tx)
	var submission models.Submission
	if err := db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	db := s.getDB(tx)
	var submission models.Submission
	if err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_submission_answers.question_index ASC")
		}).
		Preload("User").
		First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Save(submission).Error
}

func (s *SubmissionPostgreSQL) UpdateAnswer(ctx context.Context, tx *gorm.DB, answer *models.SubmissionAnswer) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Save(answer).Error
}

func (s *SubmissionPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.Submission, error) {
	db := s.getDB(tx)
	var submission models.Submission
	if err := db.WithContext(ctx).
		Preload("Answers").
		Where("quiz_id = ? AND user_id = ? AND status = ?", quizID, userID, models.SubmissionInProgress).
		Order("attempt_number DESC").
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

// CountCompleted counts attempts that consumed the user's allowance.
// Abandoned in-progress rows do not count.
func (s *SubmissionPostgreSQL) CountCompleted(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error) {
	db := s.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("quiz_id = ? AND user_id = ? AND status IN ?", quizID, userID,
			[]models.SubmissionStatus{models.SubmissionSubmitted, models.SubmissionGraded}).
		Count(&count).Error
	return count, err
}

func (s *SubmissionPostgreSQL) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int, error) {
	db := s.getDB(tx)
	var max int
	err := db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	return max, err
}

func (s *SubmissionPostgreSQL) ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	db := s.getDB(tx)
	var submissions []*models.Submission
	var total int64

	query := db.WithContext(ctx).Model(&models.Submission{}).Where("quiz_id = ?", quizID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := sanitizeSortColumn(filters.SortBy, map[string]bool{
		"created_at":   true,
		"submitted_at": true,
		"total_score":  true,
		"percentage":   true,
	}, "created_at")
	query = query.Order(fmt.Sprintf("%s %s", sortBy, sanitizeSortOrder(filters.SortOrder)))

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Preload("User").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) ([]*models.Submission, error) {
	db := s.getDB(tx)
	var submissions []*models.Submission
	if err := db.WithContext(ctx).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Order("attempt_number ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) ListGradedByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Submission, error) {
	db := s.getDB(tx)
	var submissions []*models.Submission
	if err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_submission_answers.question_index ASC")
		}).
		Preload("User").
		Where("quiz_id = ? AND status IN ?", quizID,
			[]models.SubmissionStatus{models.SubmissionSubmitted, models.SubmissionGraded}).
		Order("submitted_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
