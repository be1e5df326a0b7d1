package persistence

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
)

const insertBatchSize = 100

// PostgresGateway stores tasks through gorm
type PostgresGateway struct {
	db  *gorm.DB
	log *logger.Logger
}

// OpenPostgres connects to dsn and migrates the task table
func OpenPostgres(dsn string, log *logger.Logger) (*PostgresGateway, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", ErrInvalidConfig)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewGormGateway(db, log)
}

// NewGormGateway wraps an open gorm connection and runs the migration
func NewGormGateway(db *gorm.DB, log *logger.Logger) (*PostgresGateway, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := db.AutoMigrate(&TaskRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Infow("postgres_migrated", "table", TaskRecord{}.TableName())
	return &PostgresGateway{db: db, log: log}, nil
}

// SaveAll replaces the stored table with tasks in one transaction
func (g *PostgresGateway) SaveAll(ctx context.Context, tasks []model.DownloadTask) error {
	records := make([]TaskRecord, 0, len(tasks))
	for i, task := range tasks {
		records = append(records, toRecord(task, i))
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TaskRecord{}).Error; err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		g.log.Errorw("postgres_save_failed", "tasks", len(tasks), "error", err)
		return err
	}
	return nil
}

// LoadAll returns stored tasks in insertion order
func (g *PostgresGateway) LoadAll(ctx context.Context) ([]model.DownloadTask, error) {
	var records []TaskRecord
	if err := g.db.WithContext(ctx).Order("position").Find(&records).Error; err != nil {
		g.log.Errorw("postgres_load_failed", "error", err)
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	tasks := make([]model.DownloadTask, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, r.Task())
	}
	return tasks, nil
}

func (g *PostgresGateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
