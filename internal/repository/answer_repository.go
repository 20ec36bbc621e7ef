// internal/repository/answer_repository.go
package repository

import (
	"context"
	"errors"

	"learn_track/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnswerRepository interface {
	// Upsert は (attempt_id, question_id, user_id) をキーに作成または更新します。
	// 同じ問題への回答変更は行の更新であり、重複行は作りません。
	Upsert(ctx context.Context, tx *gorm.DB, answer *model.Answer) error
	ListByAttempt(ctx context.Context, db *gorm.DB, attemptID, userID uuid.UUID) ([]*model.Answer, error)
}

type gormAnswerRepository struct{}

func NewGormAnswerRepository() AnswerRepository {
	return &gormAnswerRepository{}
}

func (r *gormAnswerRepository) Upsert(ctx context.Context, tx *gorm.DB, answer *model.Answer) error {
	var existing model.Answer
	result := tx.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ? AND user_id = ?", answer.AttemptID, answer.QuestionID, answer.UserID).
		First(&existing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			if answer.AnswerID == uuid.Nil {
				answer.AnswerID = uuid.New()
			}
			return tx.WithContext(ctx).Create(answer).Error
		}
		return result.Error
	}

	// 既存行の値だけ差し替える。selected_option_id / essay_text は排他なので両方上書き。
	existing.SelectedOptionID = answer.SelectedOptionID
	existing.EssayText = answer.EssayText
	if err := tx.WithContext(ctx).Save(&existing).Error; err != nil {
		return err
	}
	*answer = existing
	return nil
}

func (r *gormAnswerRepository) ListByAttempt(ctx context.Context, db *gorm.DB, attemptID, userID uuid.UUID) ([]*model.Answer, error) {
	var answers []*model.Answer
	result := db.WithContext(ctx).
		Where("attempt_id = ? AND user_id = ?", attemptID, userID).
		Find(&answers)
	if result.Error != nil {
		return nil, result.Error
	}
	return answers, nil
}
