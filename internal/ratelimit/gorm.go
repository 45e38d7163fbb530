package ratelimit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Migrate() error {
	return s.DB.AutoMigrate(&models.RateLimitEntry{})
}

func (s *GormStore) FindActive(ctx context.Context, identifier, endpoint string, since time.Time) (*models.RateLimitEntry, error) {
	var e models.RateLimitEntry
	err := s.DB.WithContext(ctx).
		Where("identifier = ? AND endpoint = ? AND window_start >= ?", identifier, endpoint, since).
		Order("window_start DESC").
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (s *GormStore) Create(ctx context.Context, e *models.RateLimitEntry) error {
	return s.DB.WithContext(ctx).Create(e).Error
}

func (s *GormStore) Increment(ctx context.Context, e *models.RateLimitEntry, at time.Time, max int) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.RateLimitEntry{}).
		Where("id = ? AND request_count < ?", e.ID, max).
		Updates(map[string]any{
			"request_count": gorm.Expr("request_count + ?", 1),
			"last_request":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) Purge(ctx context.Context, endpoint string, before time.Time) error {
	return s.DB.WithContext(ctx).
		Where("endpoint = ? AND last_request < ?", endpoint, before).
		Delete(&models.RateLimitEntry{}).Error
}

func (s *GormStore) Reset(ctx context.Context, identifier, endpoint string) error {
	return s.DB.WithContext(ctx).
		Where("identifier = ? AND endpoint = ?", identifier, endpoint).
		Delete(&models.RateLimitEntry{}).Error
}
