// internal/repository/attempt_repository.go
package repository

import (
	"context"
	"errors"

	"learn_track/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *model.AssessmentAttempt) error
	FindByID(ctx context.Context, db *gorm.DB, attemptID uuid.UUID) (*model.AssessmentAttempt, error)
	// MaxAttemptNumber は (user, assessment) の既存最大試行番号を返します。試行が無ければ0。
	MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID, assessmentID uuid.UUID) (int, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *model.AssessmentAttempt) error
	FindLatestCompleted(ctx context.Context, db *gorm.DB, userID, assessmentID uuid.UUID) (*model.AssessmentAttempt, error)
}

type gormAttemptRepository struct{}

func NewGormAttemptRepository() AttemptRepository {
	return &gormAttemptRepository{}
}

func (r *gormAttemptRepository) Create(ctx context.Context, tx *gorm.DB, attempt *model.AssessmentAttempt) error {
	result := tx.WithContext(ctx).Create(attempt)
	return result.Error
}

func (r *gormAttemptRepository) FindByID(ctx context.Context, db *gorm.DB, attemptID uuid.UUID) (*model.AssessmentAttempt, error) {
	var attempt model.AssessmentAttempt
	result := db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&attempt)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &attempt, nil
}

func (r *gormAttemptRepository) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID, assessmentID uuid.UUID) (int, error) {
	var maxNumber int
	// 試行が1件も無い場合はCOALESCEで0を返す
	result := tx.WithContext(ctx).
		Model(&model.AssessmentAttempt{}).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&maxNumber)
	if result.Error != nil {
		return 0, result.Error
	}
	return maxNumber, nil
}

func (r *gormAttemptRepository) Update(ctx context.Context, tx *gorm.DB, attempt *model.AssessmentAttempt) error {
	result := tx.WithContext(ctx).Save(attempt)
	return result.Error
}

func (r *gormAttemptRepository) FindLatestCompleted(ctx context.Context, db *gorm.DB, userID, assessmentID uuid.UUID) (*model.AssessmentAttempt, error) {
	var attempt model.AssessmentAttempt
	result := db.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ? AND status = ?", userID, assessmentID, model.AttemptStatusCompleted).
		Order("attempt_number DESC").
		First(&attempt)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &attempt, nil
}
