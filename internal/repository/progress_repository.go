// internal/repository/progress_repository.go
package repository

import (
	"context"
	"errors"

	"learn_track/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProgressRepository interface {
	Find(ctx context.Context, db *gorm.DB, userID, videoID uuid.UUID) (*model.VideoProgress, error)
	FindByUserAndVideos(ctx context.Context, db *gorm.DB, userID uuid.UUID, videoIDs []uuid.UUID) ([]*model.VideoProgress, error)
	Save(ctx context.Context, tx *gorm.DB, progress *model.VideoProgress) error // 新規はService層でUUID設定済み想定
}

type gormProgressRepository struct{}

func NewGormProgressRepository() ProgressRepository {
	return &gormProgressRepository{}
}

func (r *gormProgressRepository) Find(ctx context.Context, db *gorm.DB, userID, videoID uuid.UUID) (*model.VideoProgress, error) {
	var progress model.VideoProgress
	result := db.WithContext(ctx).Where("user_id = ? AND video_id = ?", userID, videoID).First(&progress)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &progress, nil
}

func (r *gormProgressRepository) FindByUserAndVideos(ctx context.Context, db *gorm.DB, userID uuid.UUID, videoIDs []uuid.UUID) ([]*model.VideoProgress, error) {
	var progresses []*model.VideoProgress
	if len(videoIDs) == 0 {
		return progresses, nil
	}
	result := db.WithContext(ctx).
		Where("user_id = ? AND video_id IN ?", userID, videoIDs).
		Find(&progresses)
	if result.Error != nil {
		return nil, result.Error
	}
	return progresses, nil
}

// Save は主キーに基づいて作成または更新します。
// (user_id, video_id) の一意性はService層のfind-then-saveとDBの複合ユニーク制約で守ります。
func (r *gormProgressRepository) Save(ctx context.Context, tx *gorm.DB, progress *model.VideoProgress) error {
	result := tx.WithContext(ctx).Save(progress)
	return result.Error
}
