// internal/model/certificate.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Certificate は合格した試行から派生する修了証。
// (user_id, course_id) ごとに最大1枚。発行は冪等で、既存があればそれを返す。
type Certificate struct {
	CertificateID uuid.UUID `gorm:"type:uuid;primaryKey" json:"certificate_id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"user_id"`
	CourseID      uuid.UUID `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"course_id"`
	AssessmentID  uuid.UUID `gorm:"type:uuid;not null" json:"assessment_id"`
	AttemptID     uuid.UUID `gorm:"type:uuid;not null" json:"attempt_id"`
	Score         int       `gorm:"not null" json:"score"`
	IssuedAt      time.Time `gorm:"not null" json:"issued_at"`
	CreatedAt     time.Time `json:"-"`
}

func (Certificate) TableName() string {
	return "certificate_user"
}
