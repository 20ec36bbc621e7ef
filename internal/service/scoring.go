// internal/service/scoring.go
package service

import (
	"math"

	"learn_track/internal/config"
	"learn_track/internal/model"

	"github.com/google/uuid"
)

// Score は回答と設問から採点結果を決定的に計算します (副作用なし)。
//
// 採点ルール:
//   - 選択式: 選んだ選択肢の is_correct が true なら正解。
//     無回答は不正解扱い。ただし正解の選択肢が1つも無い問題だけは無回答でも正解。
//   - 記述式: 自動採点できないため正解にはならない。空なら無回答、入力があれば不正解。
//
// percentage = round(正解数 / 問題数 * 100)。合格は percentage >= passingPercent。
// passingPercent はアセスメント側の passing_percentage を渡す (0以下ならデフォルト80)。
func Score(questions []model.Question, answers map[uuid.UUID]model.AnswerValue, passingPercent int) model.ScoreResult {
	if passingPercent <= 0 {
		passingPercent = config.DefaultPassingPercent
	}

	result := model.ScoreResult{
		Details: make([]model.QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		answer, hasAnswer := answers[q.QuestionID]
		answered := hasAnswer && !answer.IsEmpty()

		detail := model.QuestionResult{
			QuestionID: q.QuestionID,
			Answered:   answered,
		}
		if answered {
			detail.SelectedOptionID = answer.SelectedOptionID
			detail.EssayText = answer.EssayText
		}

		correct := false
		switch q.Type {
		case model.QuestionTypeMultipleChoice:
			if answered && answer.SelectedOptionID != nil {
				for _, opt := range q.Options {
					if opt.OptionID == *answer.SelectedOptionID {
						correct = opt.IsCorrect
						break
					}
				}
			} else if !hasCorrectOption(q) {
				// 正解が存在しない問題は無回答を正解とみなす (退化ケース)
				correct = true
			}
		case model.QuestionTypeEssay:
			// 記述式は自動採点しない
		}

		detail.Correct = correct
		result.Details = append(result.Details, detail)

		if correct {
			result.CorrectCount++
		} else {
			result.IncorrectCount++
			if !answered {
				result.UnansweredCount++
			}
		}
	}

	if len(questions) > 0 {
		result.Score = int(math.Round(float64(result.CorrectCount) / float64(len(questions)) * 100))
	}
	result.Passed = result.Score >= passingPercent

	return result
}

func hasCorrectOption(q model.Question) bool {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return true
		}
	}
	return false
}
