// internal/repository/certificate_repository.go
package repository

import (
	"context"
	"errors"

	"learn_track/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CertificateRepository interface {
	FindByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Certificate, error)
	Create(ctx context.Context, tx *gorm.DB, cert *model.Certificate) error
	ListByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]*model.Certificate, error)
}

type gormCertificateRepository struct{}

func NewGormCertificateRepository() CertificateRepository {
	return &gormCertificateRepository{}
}

func (r *gormCertificateRepository) FindByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Certificate, error) {
	var cert model.Certificate
	result := db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&cert)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &cert, nil
}

func (r *gormCertificateRepository) Create(ctx context.Context, tx *gorm.DB, cert *model.Certificate) error {
	result := tx.WithContext(ctx).Create(cert)
	return result.Error
}

func (r *gormCertificateRepository) ListByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]*model.Certificate, error) {
	var certs []*model.Certificate
	result := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&certs)
	if result.Error != nil {
		return nil, result.Error
	}
	return certs, nil
}
