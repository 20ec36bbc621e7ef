// internal/repository/video_repository.go
package repository

import (
	"context"
	"errors"

	"learn_track/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VideoRepository interface {
	FindByID(ctx context.Context, db *gorm.DB, videoID uuid.UUID) (*model.Video, error)
	ListByCourse(ctx context.Context, db *gorm.DB, courseID uuid.UUID) ([]*model.Video, error)
}

type gormVideoRepository struct{}

func NewGormVideoRepository() VideoRepository {
	return &gormVideoRepository{}
}

func (r *gormVideoRepository) FindByID(ctx context.Context, db *gorm.DB, videoID uuid.UUID) (*model.Video, error) {
	var video model.Video
	result := db.WithContext(ctx).Where("video_id = ?", videoID).First(&video)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &video, nil
}

// ListByCourse はコース内の動画を再生順で返します。
func (r *gormVideoRepository) ListByCourse(ctx context.Context, db *gorm.DB, courseID uuid.UUID) ([]*model.Video, error) {
	var videos []*model.Video
	result := db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position ASC").
		Find(&videos)
	if result.Error != nil {
		return nil, result.Error
	}
	return videos, nil
}
