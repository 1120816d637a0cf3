package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edustream/groupchat-service/internal/cache"
	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
)

type MessagePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewMessagePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.MessageRepository {
	return &MessagePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (m *MessagePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return m.db
}

func (m *MessagePostgreSQL) Create(ctx context.Context, tx *gorm.DB, message *models.Message) error {
	db := m.getDB(tx)
	if err := db.WithContext(ctx).Create(message).Error; err != nil {
		return err
	}
	cache.SafeInvalidatePattern(ctx, m.cacheManager.Stats, fmt.Sprintf("group:%d:*", message.GroupID))
	return nil
}

func (m *MessagePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Message, error) {
	db := m.getDB(tx)
	var message models.Message
	if err := db.WithContext(ctx).First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (m *MessagePostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Message, error) {
	db := m.getDB(tx)
	var message models.Message
	if err := db.WithContext(ctx).
		Preload("Sender").
		Preload("ReplyTo").
		Preload("ReplyTo.Sender").
		Preload("Reads").
		First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (m *MessagePostgreSQL) Update(ctx context.Context, tx *gorm.DB, message *models.Message) error {
	db := m.getDB(tx)
	return db.WithContext(ctx).Save(message).Error
}

// List pages a group's log newest-first. Soft-deleted messages stay in the
// page so history keeps its shape; callers redact them before presentation.
func (m *MessagePostgreSQL) List(ctx context.Context, tx *gorm.DB, groupID uint, filters repositories.MessageFilters) ([]*models.Message, int64, error) {
	db := m.getDB(tx)
	var messages []*models.Message
	var total int64

	query := db.WithContext(ctx).Model(&models.Message{}).Where("group_id = ?", groupID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 {
		limit = 50
	}

	if err := query.
		Preload("Sender").
		Preload("ReplyTo").
		Preload("ReplyTo.Sender").
		Preload("Reads").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (m *MessagePostgreSQL) Search(ctx context.Context, tx *gorm.DB, groupID uint, filters repositories.MessageSearchFilters) ([]*models.Message, int64, error) {
	db := m.getDB(tx)
	var messages []*models.Message
	var total int64

	query := db.WithContext(ctx).Model(&models.Message{}).
		Where("group_id = ? AND is_deleted = ?", groupID, false)
	query = m.applySearchFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit < 1 {
		limit = 50
	}

	if err := query.
		Preload("Sender").
		Order("created_at DESC, id DESC").
		Offset(filters.Offset).
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// MarkRead inserts a read receipt if one does not exist. Receipts are
// append-only, so a second call for the same pair is a no-op.
func (m *MessagePostgreSQL) MarkRead(ctx context.Context, tx *gorm.DB, messageID uint, userID string, readAt time.Time) (bool, error) {
	db := m.getDB(tx)
	read := models.MessageRead{
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    readAt,
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&read)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkAllRead receipts every message in the group the user has not read,
// excluding the user's own messages.
func (m *MessagePostgreSQL) MarkAllRead(ctx context.Context, tx *gorm.DB, groupID uint, userID string, readAt time.Time) (int64, error) {
	db := m.getDB(tx)
	result := db.WithContext(ctx).Exec(`
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.group_id = ? AND m.sender_id <> ?
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		userID, readAt, groupID, userID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (m *MessagePostgreSQL) UnreadCount(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (int64, error) {
	db := m.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Message{}).
		Where("messages.group_id = ? AND messages.sender_id <> ?", groupID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.user_id = ?)", userID).
		Count(&count).Error
	return count, err
}

func (m *MessagePostgreSQL) GetReads(ctx context.Context, tx *gorm.DB, messageID uint) ([]*models.MessageRead, error) {
	db := m.getDB(tx)
	var reads []*models.MessageRead
	if err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("read_at ASC").
		Find(&reads).Error; err != nil {
		return nil, err
	}
	return reads, nil
}

// applySearchFilters matches the query against the content field that
// carries human-readable text for each message type.
func (m *MessagePostgreSQL) applySearchFilters(query *gorm.DB, filters repositories.MessageSearchFilters) *gorm.DB {
	if filters.Query != "" {
		pattern := "%" + filters.Query + "%"
		query = query.Where(
			"(type = ? AND content->>'text' ILIKE ?) OR (type = ? AND content->>'original_name' ILIKE ?) OR (type = ? AND content->>'title' ILIKE ?)",
			models.MessageText, pattern,
			models.MessageFile, pattern,
			models.MessageQuiz, pattern,
		)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.SenderID != nil {
		query = query.Where("sender_id = ?", *filters.SenderID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}
