// internal/model/progress.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// VideoProgress は1ユーザー・1動画の視聴状態を表します。
// (user_id, video_id) ごとに1行で、更新はすべてupsert。
// completed は一度 true になったら戻らない (粘着性)。
type VideoProgress struct {
	ProgressID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	UserID              uuid.UUID `gorm:"type:uuid;not null;index:idx_user_video,unique" json:"user_id"`
	VideoID             uuid.UUID `gorm:"type:uuid;not null;index:idx_user_video,unique" json:"video_id"`
	ProgressPercentage  int       `gorm:"not null;default:0" json:"progress_percentage"`
	LastPositionSeconds float64   `gorm:"not null;default:0" json:"last_position_seconds"`
	Completed           bool      `gorm:"not null;default:false" json:"completed"`
	WatchedAt           time.Time `json:"watched_at"`
	CreatedAt           time.Time `json:"-"`
	UpdatedAt           time.Time `json:"-"`
}

func (VideoProgress) TableName() string {
	return "video_watched"
}

// 進捗報告リクエストDTO
type ReportProgressRequest struct {
	CurrentTimeSeconds *float64 `json:"current_time_seconds" validate:"required,gte=0"`
	DurationSeconds    *float64 `json:"duration_seconds" validate:"required,gt=0"`
}

// 再開位置レスポンスDTO
type ResumePositionResponse struct {
	LastPositionSeconds float64 `json:"last_position_seconds"`
	ProgressPercentage  int     `json:"progress_percentage"`
}

// コース再開レスポンスDTO
type ResumeVideoResponse struct {
	VideoID uuid.UUID `json:"video_id"`
	Index   int       `json:"index"`
}

// コース全体の進捗レスポンスDTO
type CourseProgressResponse struct {
	CourseID        uuid.UUID        `json:"course_id"`
	TotalVideos     int              `json:"total_videos"`
	CompletedVideos int              `json:"completed_videos"`
	Videos          []*VideoProgress `json:"videos"`
}
