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

type GroupPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewGroupPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.GroupRepository {
	return &GroupPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (g *GroupPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return g.db
}

func (g *GroupPostgreSQL) Create(ctx context.Context, tx *gorm.DB, group *models.Group) error {
	db := g.getDB(tx)
	return db.WithContext(ctx).Create(group).Error
}

func (g *GroupPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error) {
	db := g.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var group models.Group

	err := g.cacheManager.Group.CacheOrExecute(ctx, cacheKey, &group, cache.GroupCacheConfig.TTL, func() (interface{}, error) {
		var dbGroup models.Group
		if err := db.WithContext(ctx).Preload("Settings").First(&dbGroup, id).Error; err != nil {
			return nil, err
		}
		return &dbGroup, nil
	})

	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (g *GroupPostgreSQL) GetByIDWithMembers(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error) {
	db := g.getDB(tx)
	var group models.Group
	if err := db.WithContext(ctx).
		Preload("Settings").
		Preload("Members").
		Preload("Members.User").
		Preload("Creator").
		First(&group, id).Error; err != nil {
		return nil, err
	}
	group.MemberCount = len(group.Members)
	return &group, nil
}

func (g *GroupPostgreSQL) Update(ctx context.Context, tx *gorm.DB, group *models.Group) error {
	db := g.getDB(tx)
	if err := db.WithContext(ctx).Save(group).Error; err != nil {
		return err
	}
	g.cacheManager.InvalidateGroup(ctx, group.ID)
	return nil
}

func (g *GroupPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := g.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Group{}, id).Error; err != nil {
		return err
	}
	g.cacheManager.InvalidateGroup(ctx, id)
	return nil
}

func (g *GroupPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.GroupFilters) ([]*models.Group, int64, error) {
	db := g.getDB(tx)
	var groups []*models.Group
	var total int64

	query := db.WithContext(ctx).Model(&models.Group{})
	query = g.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = g.applyPaginationAndSort(query, filters)
	if err := query.Preload("Settings").Find(&groups).Error; err != nil {
		return nil, 0, err
	}

	return groups, total, nil
}

func (g *GroupPostgreSQL) GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.GroupFilters) ([]*models.Group, int64, error) {
	db := g.getDB(tx)
	var groups []*models.Group
	var total int64

	query := db.WithContext(ctx).Model(&models.Group{}).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID)
	query = g.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = g.applyPaginationAndSort(query, filters)
	if err := query.Preload("Settings").Find(&groups).Error; err != nil {
		return nil, 0, err
	}

	return groups, total, nil
}

func (g *GroupPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.GroupStats, error) {
	db := g.getDB(tx)

	memberCount, err := g.CountMembers(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	messageCount, err := g.helpers.CountGroupMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	quizCount, err := g.helpers.CountGroupQuizzes(ctx, id)
	if err != nil {
		return nil, err
	}

	var lastActivity *time.Time
	var lastMessage models.Message
	err = db.WithContext(ctx).
		Where("group_id = ?", id).
		Order("created_at DESC").
		First(&lastMessage).Error
	if err == nil {
		lastActivity = &lastMessage.CreatedAt
	} else if !repositories.IsNotFoundError(err) {
		return nil, err
	}

	return &repositories.GroupStats{
		MemberCount:    int(memberCount),
		MessageCount:   messageCount,
		QuizCount:      quizCount,
		LastActivityAt: lastActivity,
	}, nil
}

// ===== MEMBERSHIP =====

func (g *GroupPostgreSQL) AddMember(ctx context.Context, tx *gorm.DB, member *models.GroupMember) error {
	db := g.getDB(tx)
	if err := db.WithContext(ctx).Create(member).Error; err != nil {
		return err
	}
	g.cacheManager.InvalidateGroup(ctx, member.GroupID)
	return nil
}

func (g *GroupPostgreSQL) RemoveMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) error {
	db := g.getDB(tx)
	result := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	g.cacheManager.InvalidateGroup(ctx, groupID)
	return nil
}

func (g *GroupPostgreSQL) GetMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (*models.GroupMember, error) {
	db := g.getDB(tx)
	cacheKey := fmt.Sprintf("%d:%s", groupID, userID)
	var member models.GroupMember

	err := g.cacheManager.Member.CacheOrExecute(ctx, cacheKey, &member, cache.MemberCacheConfig.TTL, func() (interface{}, error) {
		var dbMember models.GroupMember
		if err := db.WithContext(ctx).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			First(&dbMember).Error; err != nil {
			return nil, err
		}
		return &dbMember, nil
	})

	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (g *GroupPostgreSQL) UpdateMemberRole(ctx context.Context, tx *gorm.DB, groupID uint, userID string, role models.MemberRole) error {
	db := g.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, g.cacheManager.Member, fmt.Sprintf("%d:%s", groupID, userID))
	return nil
}

func (g *GroupPostgreSQL) ListMembers(ctx context.Context, tx *gorm.DB, groupID uint) ([]*models.GroupMember, error) {
	db := g.getDB(tx)
	var members []*models.GroupMember
	if err := db.WithContext(ctx).
		Preload("User").
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (g *GroupPostgreSQL) CountMembers(ctx context.Context, tx *gorm.DB, groupID uint) (int64, error) {
	db := g.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	return count, err
}

func (g *GroupPostgreSQL) IsMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (bool, error) {
	_, err := g.GetMember(ctx, tx, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ===== SETTINGS =====

func (g *GroupPostgreSQL) GetSettings(ctx context.Context, tx *gorm.DB, groupID uint) (*models.GroupSettings, error) {
	db := g.getDB(tx)
	cacheKey := fmt.Sprintf("settings:%d", groupID)
	var settings models.GroupSettings

	err := g.cacheManager.Group.CacheOrExecute(ctx, cacheKey, &settings, cache.GroupCacheConfig.TTL, func() (interface{}, error) {
		var dbSettings models.GroupSettings
		if err := db.WithContext(ctx).
			Where("group_id = ?", groupID).
			First(&dbSettings).Error; err != nil {
			return nil, err
		}
		return &dbSettings, nil
	})

	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (g *GroupPostgreSQL) UpdateSettings(ctx context.Context, tx *gorm.DB, settings *models.GroupSettings) error {
	db := g.getDB(tx)
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}},
			UpdateAll: true,
		}).
		Create(settings).Error; err != nil {
		return err
	}
	cache.SafeDelete(ctx, g.cacheManager.Group, fmt.Sprintf("settings:%d", settings.GroupID), fmt.Sprintf("id:%d", settings.GroupID))
	return nil
}

// ===== FILTER HELPERS =====

func (g *GroupPostgreSQL) applyFilters(query *gorm.DB, filters repositories.GroupFilters) *gorm.DB {
	if filters.IsActive != nil {
		query = query.Where("groups.is_active = ?", *filters.IsActive)
	}
	if filters.CreatedBy != nil {
		query = query.Where("groups.created_by = ?", *filters.CreatedBy)
	}
	if filters.Search != nil && *filters.Search != "" {
		query = query.Where("groups.name ILIKE ?", "%"+*filters.Search+"%")
	}
	return query
}

func (g *GroupPostgreSQL) applyPaginationAndSort(query *gorm.DB, filters repositories.GroupFilters) *gorm.DB {
	sortBy := sanitizeSortColumn(filters.SortBy, map[string]bool{
		"created_at": true,
		"name":       true,
	}, "created_at")
	query = query.Order(fmt.Sprintf("groups.%s %s", sortBy, sanitizeSortOrder(filters.SortOrder)))

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	return query
}
