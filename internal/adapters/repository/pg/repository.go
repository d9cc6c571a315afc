package pg

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"agenthud.router/internal/core/domain"
)

const writeBatchSize = 100

// Repository stores the action audit trail.
type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.AutoMigrate(&domain.ActionLog{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Repository{db: db}, nil
}

// WriteBatch implements ports.ActionLogRepository.
func (r *Repository) WriteBatch(ctx context.Context, entries []domain.ActionLog) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(entries, writeBatchSize).Error
}

// ListRecent returns the newest entries first, optionally for one agent.
func (r *Repository) ListRecent(ctx context.Context, agentID string, limit int) ([]domain.ActionLog, error) {
	var entries []domain.ActionLog
	q := r.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if agentID != "" {
		q = q.Where("agent_id = ?", agentID)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// DB returns the underlying gorm DB instance
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
