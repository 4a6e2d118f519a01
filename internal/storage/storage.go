// Package storage persists shared code snippets through gorm.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codecollab/backend/internal/config"
	"codecollab/backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrSnippetNotFound is returned for unknown share ids.
var ErrSnippetNotFound = errors.New("snippet not found")

type Storage interface {
	SaveSnippet(ctx context.Context, snippet *models.SharedSnippet) error
	GetSnippet(ctx context.Context, id string) (*models.SharedSnippet, error)
	Ping(ctx context.Context) error
}

type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case config.DriverSQLite, "":
		if dsn == "" {
			dsn = config.DefaultSQLiteDSN
		}
		dialector = sqlite.Open(dsn)
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if err := db.AutoMigrate(&models.SharedSnippet{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// SaveSnippet stores a new snippet; the id is assigned by the model hook.
func (s *Service) SaveSnippet(ctx context.Context, snippet *models.SharedSnippet) error {
	if snippet.Title == "" {
		snippet.Title = config.DefaultSnippetTitle
	}
	if err := s.DB.WithContext(ctx).Create(snippet).Error; err != nil {
		return fmt.Errorf("save snippet: %w", err)
	}
	return nil
}

// GetSnippet returns ErrSnippetNotFound when id is unknown.
func (s *Service) GetSnippet(ctx context.Context, id string) (*models.SharedSnippet, error) {
	var snippet models.SharedSnippet
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&snippet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnippetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snippet %s: %w", id, err)
	}
	return &snippet, nil
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
