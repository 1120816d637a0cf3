package postgres

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/models"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// CountGroupMessages counts non-deleted rows in a group's message log.
// Deleted messages stay in the log, so they still count toward paging totals;
// this helper exists for activity stats only.
func (h *SharedHelpers) CountGroupMessages(ctx context.Context, groupID uint) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("group_id = ? AND is_deleted = ?", groupID, false).
		Count(&count).Error
	return count, err
}

// CountGroupQuizzes counts quizzes attached to a group.
func (h *SharedHelpers) CountGroupQuizzes(ctx context.Context, groupID uint) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	return count, err
}

// CountSubmissionsByStatus counts a user's submissions in the given statuses.
func (h *SharedHelpers) CountSubmissionsByStatus(ctx context.Context, quizID uint, userID string, statuses ...models.SubmissionStatus) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("quiz_id = ? AND user_id = ? AND status IN ?", quizID, userID, statuses).
		Count(&count).Error
	return count, err
}

// sanitizeSortOrder keeps ORDER BY direction to the two legal values.
func sanitizeSortOrder(order string) string {
	if strings.EqualFold(order, "asc") {
		return "asc"
	}
	return "desc"
}

// sanitizeSortColumn allows only known column names into ORDER BY.
func sanitizeSortColumn(column string, allowed map[string]bool, fallback string) string {
	if allowed[column] {
		return column
	}
	return fallback
}
