// internal/model/assessment.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeEssay          QuestionType = "essay"
)

// Assessment はコースに紐づくテストの定義。
// VideoID が設定されている場合、その動画の視聴完了までテストは受験できない。
// PassingPercentage が 0 のときはデフォルトの合格ライン(80)を使う。
type Assessment struct {
	AssessmentID      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"assessment_id"`
	CourseID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"course_id"`
	Title             string     `gorm:"not null" json:"title"`
	TimeLimitMinutes  int        `gorm:"not null;default:0" json:"time_limit_minutes"`
	PassingPercentage int        `gorm:"not null;default:0" json:"passing_percentage"`
	VideoID           *uuid.UUID `gorm:"type:uuid" json:"video_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// 関連 (Preload用)
	Questions []Question `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// Question は出題1問。作問側サブシステムが所有し、ここでは採点と表示のみに使う。
type Question struct {
	QuestionID   uuid.UUID    `gorm:"type:uuid;primaryKey" json:"question_id"`
	AssessmentID uuid.UUID    `gorm:"type:uuid;not null;index" json:"assessment_id"`
	QuestionText string       `gorm:"not null" json:"question_text"`
	Type         QuestionType `gorm:"type:varchar(32);not null" json:"type"`
	Position     int          `gorm:"not null;default:0" json:"position"`

	Options []QuestionOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

type QuestionOption struct {
	OptionID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"option_id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	OptionText string    `gorm:"not null" json:"option_text"`
	IsCorrect  bool      `gorm:"not null;default:false" json:"-"`
	Position   int       `gorm:"not null;default:0" json:"position"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}

// QuestionView は受験者向けの出題表示。正解フラグは含めない。
type QuestionView struct {
	QuestionID   uuid.UUID         `json:"question_id"`
	QuestionText string            `json:"question_text"`
	Type         QuestionType      `json:"type"`
	Position     int               `json:"position"`
	Options      []QuestionOptView `json:"options,omitempty"`
}

type QuestionOptView struct {
	OptionID   uuid.UUID `json:"option_id"`
	OptionText string    `json:"option_text"`
	Position   int       `json:"position"`
}

// NewQuestionView は採点情報を落とした受験者向けビューを作ります。
func NewQuestionView(q *Question) QuestionView {
	view := QuestionView{
		QuestionID:   q.QuestionID,
		QuestionText: q.QuestionText,
		Type:         q.Type,
		Position:     q.Position,
	}
	for _, o := range q.Options {
		view.Options = append(view.Options, QuestionOptView{
			OptionID:   o.OptionID,
			OptionText: o.OptionText,
			Position:   o.Position,
		})
	}
	return view
}
