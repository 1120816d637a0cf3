package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edustream/groupchat-service/internal/config"
	"github.com/edustream/groupchat-service/internal/models"
)

// SystemUserID is the sender recorded on system-generated messages.
const SystemUserID = "system"

// InitDatabase opens the PostgreSQL connection, runs migrations and
// seeds the system user every message FK can rely on.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.Environment == "development" {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := seedSystemUser(db); err != nil {
		return nil, fmt.Errorf("failed to seed system user: %w", err)
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupSettings{},
		&models.Message{},
		&models.MessageRead{},
		&models.Quiz{},
		&models.QuizQuestion{},
		&models.QuizSettings{},
		&models.Submission{},
		&models.SubmissionAnswer{},
		&models.QuizAnalytics{},
	)
}

func seedSystemUser(db *gorm.DB) error {
	system := models.User{
		ID:       SystemUserID,
		FullName: "System",
		Email:    "system@groupchat.local",
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&system).Error
}
