// internal/model/attempt.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
)

// AssessmentAttempt は1ユーザーの1回の受験を表します。
// attempt_number は (user_id, assessment_id) ごとに1始まりで単調増加。
// status は in_progress -> completed の一方向のみ。completed は終端状態で、
// 以降の回答書き込み・状態遷移は一切行われない。
type AssessmentAttempt struct {
	AttemptID     uuid.UUID     `gorm:"type:uuid;primaryKey" json:"attempt_id"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;index:idx_user_assessment" json:"user_id"`
	AssessmentID  uuid.UUID     `gorm:"type:uuid;not null;index:idx_user_assessment" json:"assessment_id"`
	AttemptNumber int           `gorm:"not null" json:"attempt_number"`
	Status        AttemptStatus `gorm:"type:varchar(32);not null;default:in_progress" json:"status"`
	StartedAt     time.Time     `gorm:"not null" json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Score         int           `gorm:"not null;default:0" json:"score"`
	Passed        bool          `gorm:"not null;default:false" json:"passed"`
	CreatedAt     time.Time     `json:"-"`
	UpdatedAt     time.Time     `json:"-"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}

// Answer は1試行内の1問への回答。
// (attempt_id, question_id, user_id) ごとに1行で、回答変更は更新 (重複insertしない)。
// selected_option_id と essay_text はどちらか一方のみ非NULL。
type Answer struct {
	AnswerID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"-"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index:idx_attempt_question,unique" json:"user_id"`
	AttemptID        uuid.UUID  `gorm:"type:uuid;not null;index:idx_attempt_question,unique" json:"attempt_id"`
	QuestionID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_attempt_question,unique" json:"question_id"`
	SelectedOptionID *uuid.UUID `gorm:"type:uuid" json:"selected_option_id,omitempty"`
	EssayText        *string    `json:"essay_text,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"-"`
}

func (Answer) TableName() string {
	return "user_answers"
}

// AnswerValue はセッション内で保持する回答の値。
type AnswerValue struct {
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	EssayText        *string    `json:"essay_text,omitempty"`
}

// IsEmpty は実質的に無回答かどうかを返します (空の記述は無回答扱い)。
func (v AnswerValue) IsEmpty() bool {
	if v.SelectedOptionID != nil {
		return false
	}
	return v.EssayText == nil || *v.EssayText == ""
}

// 回答保存リクエストDTO
type SetAnswerRequest struct {
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	EssayText        *string    `json:"essay_text,omitempty"`
}

// AttemptView は受験画面向けの試行スナップショット。
type AttemptView struct {
	Attempt   *AssessmentAttempt        `json:"attempt"`
	Questions []QuestionView            `json:"questions"`
	Answers   map[uuid.UUID]AnswerValue `json:"answers"`
	Deadline  *time.Time                `json:"deadline,omitempty"`
}

// SubmissionNotice は提出時に自動化エンドポイントへ送る通知ペイロード。
type SubmissionNotice struct {
	TestID           uuid.UUID         `json:"test_id"`
	AttemptID        uuid.UUID         `json:"attempt_id"`
	User             SubmissionUser    `json:"user"`
	Answers          []SubmittedAnswer `json:"answers"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	SubmittedAt      time.Time         `json:"submitted_at"`
	Score            int               `json:"score"`
	Passed           bool              `json:"passed"`
}

type SubmissionUser struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

type SubmittedAnswer struct {
	QuestionID       uuid.UUID  `json:"question_id"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	EssayText        *string    `json:"essay_text,omitempty"`
}
