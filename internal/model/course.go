// internal/model/course.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Course はコースの基本情報。管理画面側サブシステムが所有し、ここでは読み取りのみ。
type Course struct {
	CourseID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"course_id"`
	Title     string    `gorm:"not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Videos []Video `gorm:"foreignKey:CourseID" json:"-"`
}

func (Course) TableName() string {
	return "courses"
}

// Video はコース内の1本の動画。Positionでコース内の順序が決まる。
type Video struct {
	VideoID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"video_id"`
	CourseID        uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Title           string    `gorm:"not null" json:"title"`
	Position        int       `gorm:"not null;default:0" json:"position"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Video) TableName() string {
	return "videos"
}
