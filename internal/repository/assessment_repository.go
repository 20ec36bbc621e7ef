// internal/repository/assessment_repository.go
package repository

import (
	"context"
	"errors"

	"learn_track/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssessmentRepository interface {
	// FindByID は設問と選択肢 (正解フラグ込み) をPreloadして返します。
	FindByID(ctx context.Context, db *gorm.DB, assessmentID uuid.UUID) (*model.Assessment, error)
	FindByCourse(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (*model.Assessment, error)
}

type gormAssessmentRepository struct{}

func NewGormAssessmentRepository() AssessmentRepository {
	return &gormAssessmentRepository{}
}

func (r *gormAssessmentRepository) FindByID(ctx context.Context, db *gorm.DB, assessmentID uuid.UUID) (*model.Assessment, error) {
	var assessment model.Assessment
	result := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.position ASC")
		}).
		Where("assessment_id = ?", assessmentID).
		First(&assessment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &assessment, nil
}

func (r *gormAssessmentRepository) FindByCourse(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (*model.Assessment, error) {
	var assessment model.Assessment
	result := db.WithContext(ctx).Where("course_id = ?", courseID).First(&assessment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &assessment, nil
}
