// internal/service/certificate_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"learn_track/internal/middleware"
	"learn_track/internal/model"
	"learn_track/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CertificateService interface {
	Issue(ctx context.Context, user model.UserContext, courseID uuid.UUID) (*model.Certificate, error)
	List(ctx context.Context, userID uuid.UUID) ([]*model.Certificate, error)
}

type certificateService struct {
	db             *gorm.DB
	certRepo       repository.CertificateRepository
	assessmentRepo repository.AssessmentRepository
	attemptRepo    repository.AttemptRepository
	mailer         Mailer
	logger         *slog.Logger
}

func NewCertificateService(
	db *gorm.DB,
	certRepo repository.CertificateRepository,
	assessmentRepo repository.AssessmentRepository,
	attemptRepo repository.AttemptRepository,
	mailer Mailer,
	logger *slog.Logger,
) CertificateService {
	return &certificateService{
		db:             db,
		certRepo:       certRepo,
		assessmentRepo: assessmentRepo,
		attemptRepo:    attemptRepo,
		mailer:         mailer,
		logger:         logger,
	}
}

// Issue はコースの修了証を発行します。
//
// 条件はコースのテストで合格済みの提出があること。発行は冪等で、
// 既に発行済みなら既存の修了証をそのまま返す ((user, course) ごとに1枚)。
// メール送信はベストエフォートで、失敗しても発行は成立する。
func (s *certificateService) Issue(ctx context.Context, user model.UserContext, courseID uuid.UUID) (*model.Certificate, error) {
	logger := middleware.GetLogger(ctx).With("user_id", user.ID, "course_id", courseID)

	// 既存チェック (冪等性)
	existing, err := s.certRepo.FindByUserAndCourse(ctx, s.db, user.ID, courseID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		logger.Error("Failed to check existing certificate", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to check certificate.", "", model.ErrInternalServer)
	}

	assessment, err := s.assessmentRepo.FindByCourse(ctx, s.db, courseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "Course has no assessment.", "", model.ErrNotFound)
		}
		logger.Error("Failed to find course assessment", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load assessment.", "", model.ErrInternalServer)
	}

	attempt, err := s.attemptRepo.FindLatestCompleted(ctx, s.db, user.ID, assessment.AssessmentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_ELIGIBLE", "No completed attempt found for this course.", "", model.ErrForbidden)
		}
		logger.Error("Failed to find completed attempt", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load attempts.", "", model.ErrInternalServer)
	}
	if !attempt.Passed {
		return nil, model.NewAppError("NOT_ELIGIBLE", "The latest completed attempt did not reach the passing score.", "", model.ErrForbidden)
	}

	cert := &model.Certificate{
		CertificateID: uuid.New(),
		UserID:        user.ID,
		CourseID:      courseID,
		AssessmentID:  assessment.AssessmentID,
		AttemptID:     attempt.AttemptID,
		Score:         attempt.Score,
		IssuedAt:      time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.certRepo.Create(ctx, tx, cert)
	})
	if err != nil {
		// 同時リクエストとの競合: 一意制約に負けたら既存を返す
		if fallback, findErr := s.certRepo.FindByUserAndCourse(ctx, s.db, user.ID, courseID); findErr == nil {
			return fallback, nil
		}
		logger.Error("Failed to create certificate", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to issue certificate.", "", model.ErrInternalServer)
	}
	logger.Info("Certificate issued", "certificate_id", cert.CertificateID, "score", cert.Score)

	if user.Email != "" {
		go s.sendCertificateMail(user, cert)
	}
	return cert, nil
}

// List はユーザーの修了証一覧を返します。
func (s *certificateService) List(ctx context.Context, userID uuid.UUID) ([]*model.Certificate, error) {
	certs, err := s.certRepo.ListByUser(ctx, s.db, userID)
	if err != nil {
		middleware.GetLogger(ctx).Error("Failed to list certificates", "user_id", userID, "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to list certificates.", "", model.ErrInternalServer)
	}
	return certs, nil
}

func (s *certificateService) sendCertificateMail(user model.UserContext, cert *model.Certificate) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	subject := "Your course certificate is ready"
	body := fmt.Sprintf(
		"Hello %s,\n\nCongratulations! You passed the course assessment with a score of %d.\nCertificate ID: %s\nIssued at: %s\n",
		user.FullName, cert.Score, cert.CertificateID, cert.IssuedAt.Format(time.RFC3339),
	)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		s.logger.Error("Failed to send certificate mail",
			"certificate_id", cert.CertificateID, "error", err)
	}
}
