// internal/model/score.go
package model

import "github.com/google/uuid"

// QuestionResult は1問分の採点結果。
type QuestionResult struct {
	QuestionID       uuid.UUID  `json:"question_id"`
	Correct          bool       `json:"correct"`
	Answered         bool       `json:"answered"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	EssayText        *string    `json:"essay_text,omitempty"`
}

// ScoreResult は1試行の採点結果。
// IncorrectCount には無回答の問題も含む (無回答は不正解扱い)。
type ScoreResult struct {
	Score           int              `json:"score"` // 0-100
	CorrectCount    int              `json:"correct_count"`
	IncorrectCount  int              `json:"incorrect_count"`
	UnansweredCount int              `json:"unanswered_count"`
	Passed          bool             `json:"passed"`
	Details         []QuestionResult `json:"details"`
}
