// internal/service/session_service_test.go
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"learn_track/internal/config"
	"learn_track/internal/model"
	"learn_track/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// --- テストヘルパー ---

// countingNotifier は通知回数を数えるテスト用Notifier。
type countingNotifier struct {
	mu      sync.Mutex
	notices []*model.SubmissionNotice
}

func (n *countingNotifier) NotifySubmission(ctx context.Context, notice *model.SubmissionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func setupTestDBSession(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	err = db.AutoMigrate(
		&model.VideoProgress{},
		&model.Assessment{},
		&model.Question{},
		&model.QuestionOption{},
		&model.AssessmentAttempt{},
		&model.Answer{},
	)
	require.NoError(t, err)
	return db
}

type sessionTestEnv struct {
	db       *gorm.DB
	svc      SessionService
	notifier *countingNotifier
	cfg      *config.Config
}

func newSessionServiceForTest(t *testing.T) *sessionTestEnv {
	t.Helper()
	db := setupTestDBSession(t)
	cfg := testAppConfig()
	cfg.App.EssayDebounceMs = 20 // テストを速くするため短縮
	notifier := &countingNotifier{}
	testLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewSessionService(
		db,
		repository.NewGormAttemptRepository(),
		repository.NewGormAnswerRepository(),
		repository.NewGormAssessmentRepository(),
		repository.NewGormProgressRepository(),
		notifier,
		cfg,
		testLogger,
	)
	return &sessionTestEnv{db: db, svc: svc, notifier: notifier, cfg: cfg}
}

// seedAssessment は選択式2問 (それぞれ選択肢2つ、先頭が正解) + 記述式1問のテストを作ります。
func seedAssessment(t *testing.T, db *gorm.DB, mutate func(*model.Assessment)) *model.Assessment {
	t.Helper()
	assessment := &model.Assessment{
		AssessmentID:      uuid.New(),
		CourseID:          uuid.New(),
		Title:             "Final test",
		PassingPercentage: 60,
	}
	if mutate != nil {
		mutate(assessment)
	}
	require.NoError(t, db.Create(assessment).Error)

	for i := 0; i < 2; i++ {
		q := &model.Question{
			QuestionID:   uuid.New(),
			AssessmentID: assessment.AssessmentID,
			QuestionText: "choose one",
			Type:         model.QuestionTypeMultipleChoice,
			Position:     i,
		}
		require.NoError(t, db.Create(q).Error)
		for j := 0; j < 2; j++ {
			opt := &model.QuestionOption{
				OptionID:   uuid.New(),
				QuestionID: q.QuestionID,
				OptionText: "option",
				IsCorrect:  j == 0,
				Position:   j,
			}
			require.NoError(t, db.Create(opt).Error)
		}
	}
	essay := &model.Question{
		QuestionID:   uuid.New(),
		AssessmentID: assessment.AssessmentID,
		QuestionText: "write something",
		Type:         model.QuestionTypeEssay,
		Position:     2,
	}
	require.NoError(t, db.Create(essay).Error)
	return assessment
}

func testUser() model.UserContext {
	return model.UserContext{ID: uuid.New(), Email: "learner@example.com", FullName: "Test Learner"}
}

func correctOptionID(t *testing.T, view *model.AttemptView, questionIdx int, db *gorm.DB) uuid.UUID {
	t.Helper()
	q := view.Questions[questionIdx]
	var opts []model.QuestionOption
	require.NoError(t, db.Where("question_id = ?", q.QuestionID).Order("position ASC").Find(&opts).Error)
	for _, o := range opts {
		if o.IsCorrect {
			return o.OptionID
		}
	}
	t.Fatalf("question %s has no correct option", q.QuestionID)
	return uuid.Nil
}

// --- Test StartAttempt ---

func Test_sessionService_StartAttempt_MonotonicNumbers(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	// 同一ユーザーの試行番号は1始まりで単調増加する
	for want := 1; want <= 3; want++ {
		view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
		require.NoError(t, err)
		assert.Equal(t, want, view.Attempt.AttemptNumber)
		assert.Equal(t, model.AttemptStatusInProgress, view.Attempt.Status)
	}

	// 別ユーザーの採番には影響しない
	view, err := env.svc.StartAttempt(ctx, testUser(), assessment.AssessmentID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Attempt.AttemptNumber)
}

func Test_sessionService_StartAttempt_VideoGate(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	videoID := uuid.New()
	assessment := seedAssessment(t, env.db, func(a *model.Assessment) {
		a.VideoID = &videoID
	})
	user := testUser()

	// 動画未視聴 → 受験不可
	_, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrForbidden)

	// 視聴途中でも不可
	require.NoError(t, env.db.Create(&model.VideoProgress{
		ProgressID: uuid.New(), UserID: user.ID, VideoID: videoID,
		ProgressPercentage: 50, Completed: false, WatchedAt: time.Now(),
	}).Error)
	_, err = env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrForbidden)

	// 視聴完了後は開始できる
	require.NoError(t, env.db.Model(&model.VideoProgress{}).
		Where("user_id = ? AND video_id = ?", user.ID, videoID).
		Updates(map[string]interface{}{"progress_percentage": 100, "completed": true}).Error)
	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Attempt.AttemptNumber)
}

func Test_sessionService_StartAttempt_QuestionsDoNotLeakAnswers(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)

	view, err := env.svc.StartAttempt(ctx, testUser(), assessment.AssessmentID)

	require.NoError(t, err)
	require.Len(t, view.Questions, 3)
	// 出題ビューは position 順で、選択肢に正解フラグを含まない構造になっている
	assert.Equal(t, 0, view.Questions[0].Position)
	assert.Equal(t, model.QuestionTypeEssay, view.Questions[2].Type)
	assert.Len(t, view.Questions[0].Options, 2)
}

func Test_sessionService_StartAttempt_WithDeadline(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, func(a *model.Assessment) {
		a.TimeLimitMinutes = 30
	})

	view, err := env.svc.StartAttempt(ctx, testUser(), assessment.AssessmentID)

	require.NoError(t, err)
	require.NotNil(t, view.Deadline)
	wantDeadline := view.Attempt.StartedAt.Add(30 * time.Minute)
	assert.WithinDuration(t, wantDeadline, *view.Deadline, time.Second)
}

// --- Test SetAnswer ---

func Test_sessionService_SetAnswer_UpsertNoDuplicates(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID
	questionID := view.Questions[0].QuestionID
	optA := view.Questions[0].Options[0].OptionID
	optB := view.Questions[0].Options[1].OptionID

	// 同じ問題に2回回答しても行は1つで、最後の値が残る
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, questionID, &model.SetAnswerRequest{SelectedOptionID: &optA})
	require.NoError(t, err)
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, questionID, &model.SetAnswerRequest{SelectedOptionID: &optB})
	require.NoError(t, err)

	var answers []model.Answer
	require.NoError(t, env.db.Where("attempt_id = ? AND question_id = ?", attemptID, questionID).Find(&answers).Error)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].SelectedOptionID)
	assert.Equal(t, optB, *answers[0].SelectedOptionID)
}

func Test_sessionService_SetAnswer_EssayDebounce(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID
	essayID := view.Questions[2].QuestionID

	// 連続入力はデバウンスされ、最後の内容だけ永続化される
	draft := "first draft"
	final := "final draft"
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, essayID, &model.SetAnswerRequest{EssayText: &draft})
	require.NoError(t, err)
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, essayID, &model.SetAnswerRequest{EssayText: &final})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var answers []model.Answer
		if err := env.db.Where("attempt_id = ? AND question_id = ?", attemptID, essayID).Find(&answers).Error; err != nil {
			return false
		}
		return len(answers) == 1 && answers[0].EssayText != nil && *answers[0].EssayText == final
	}, time.Second, 10*time.Millisecond)
}

func Test_sessionService_SetAnswer_Validation(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID
	mcID := view.Questions[0].QuestionID
	essayID := view.Questions[2].QuestionID
	foreignOption := uuid.New()
	text := "some text"

	tests := []struct {
		name       string
		questionID uuid.UUID
		req        *model.SetAnswerRequest
		wantErr    error
	}{
		{
			name:       "異常系: 選択式に記述回答",
			questionID: mcID,
			req:        &model.SetAnswerRequest{EssayText: &text},
			wantErr:    model.ErrInvalidInput,
		},
		{
			name:       "異常系: 記述式に選択肢回答",
			questionID: essayID,
			req:        &model.SetAnswerRequest{SelectedOptionID: &foreignOption},
			wantErr:    model.ErrInvalidInput,
		},
		{
			name:       "異常系: 問題に属さない選択肢",
			questionID: mcID,
			req:        &model.SetAnswerRequest{SelectedOptionID: &foreignOption},
			wantErr:    model.ErrInvalidInput,
		},
		{
			name:       "異常系: 存在しない問題ID",
			questionID: uuid.New(),
			req:        &model.SetAnswerRequest{EssayText: &text},
			wantErr:    model.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svc.SetAnswer(ctx, user.ID, attemptID, tt.questionID, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func Test_sessionService_SetAnswer_OtherUserForbidden(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	optA := view.Questions[0].Options[0].OptionID

	err = env.svc.SetAnswer(ctx, uuid.New(), view.Attempt.AttemptID, view.Questions[0].QuestionID,
		&model.SetAnswerRequest{SelectedOptionID: &optA})

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

// --- Test Submit ---

func Test_sessionService_Submit_ScoresAndCompletes(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil) // 合格ライン60
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID

	// 選択式2問に正解 (3問中2問 = 67点 >= 60 で合格)
	for i := 0; i < 2; i++ {
		correct := correctOptionID(t, view, i, env.db)
		err = env.svc.SetAnswer(ctx, user.ID, attemptID, view.Questions[i].QuestionID,
			&model.SetAnswerRequest{SelectedOptionID: &correct})
		require.NoError(t, err)
	}

	result, err := env.svc.Submit(ctx, user, attemptID)
	require.NoError(t, err)
	assert.Equal(t, 67, result.Score)
	assert.Equal(t, 2, result.CorrectCount)
	assert.Equal(t, 1, result.UnansweredCount)
	assert.True(t, result.Passed)

	// ストア上も completed / score が確定している
	var attempt model.AssessmentAttempt
	require.NoError(t, env.db.Where("attempt_id = ?", attemptID).First(&attempt).Error)
	assert.Equal(t, model.AttemptStatusCompleted, attempt.Status)
	assert.Equal(t, 67, attempt.Score)
	assert.True(t, attempt.Passed)
	assert.NotNil(t, attempt.FinishedAt)
}

func Test_sessionService_Submit_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID

	correct := correctOptionID(t, view, 0, env.db)
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, view.Questions[0].QuestionID,
		&model.SetAnswerRequest{SelectedOptionID: &correct})
	require.NoError(t, err)

	first, err := env.svc.Submit(ctx, user, attemptID)
	require.NoError(t, err)

	// 二重クリック相当: 2回目の提出は最初の結果をそのまま返す
	second, err := env.svc.Submit(ctx, user, attemptID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 通知も1回だけ
	assert.Eventually(t, func() bool {
		return env.notifier.count() == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, env.notifier.count())

	// 提出後の回答書き込みは拒否される
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, view.Questions[1].QuestionID,
		&model.SetAnswerRequest{SelectedOptionID: &correct})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func Test_sessionService_Submit_FlushesPendingEssay(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID
	essayID := view.Questions[2].QuestionID

	// デバウンス待ちのまま即提出しても記述回答は失われない
	text := "submitted before debounce fired"
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, essayID, &model.SetAnswerRequest{EssayText: &text})
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, user, attemptID)
	require.NoError(t, err)

	var answers []model.Answer
	require.NoError(t, env.db.Where("attempt_id = ? AND question_id = ?", attemptID, essayID).Find(&answers).Error)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].EssayText)
	assert.Equal(t, text, *answers[0].EssayText)
}

func Test_sessionService_Submit_NotifierPayload(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID

	correct := correctOptionID(t, view, 0, env.db)
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, view.Questions[0].QuestionID,
		&model.SetAnswerRequest{SelectedOptionID: &correct})
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, user, attemptID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.notifier.count() == 1
	}, time.Second, 10*time.Millisecond)

	env.notifier.mu.Lock()
	notice := env.notifier.notices[0]
	env.notifier.mu.Unlock()
	assert.Equal(t, assessment.AssessmentID, notice.TestID)
	assert.Equal(t, attemptID, notice.AttemptID)
	assert.Equal(t, user.ID, notice.User.ID)
	assert.Equal(t, user.Email, notice.User.Email)
	assert.Len(t, notice.Answers, 1)
	assert.GreaterOrEqual(t, notice.TimeSpentSeconds, 0)
}

// --- Test DeadlineAutoSubmit ---

func Test_sessionService_DeadlineAutoSubmit(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID

	correct := correctOptionID(t, view, 0, env.db)
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, view.Questions[0].QuestionID,
		&model.SetAnswerRequest{SelectedOptionID: &correct})
	require.NoError(t, err)

	// 期限切れの試行をサービス再起動後に復元すると即座に自動提出される。
	// (再起動を模すため、同じDBを共有する別インスタンスを作る)
	require.NoError(t, env.db.Model(&model.AssessmentAttempt{}).
		Where("attempt_id = ?", attemptID).
		Update("started_at", time.Now().Add(-2*time.Hour)).Error)
	require.NoError(t, env.db.Model(&model.Assessment{}).
		Where("assessment_id = ?", assessment.AssessmentID).
		Update("time_limit_minutes", 30).Error)

	restarted := NewSessionService(
		env.db,
		repository.NewGormAttemptRepository(),
		repository.NewGormAnswerRepository(),
		repository.NewGormAssessmentRepository(),
		repository.NewGormProgressRepository(),
		env.notifier,
		env.cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	// GetAttempt がセッションを復元し、期限超過タイマーが即発火する
	_, err = restarted.GetAttempt(ctx, user.ID, attemptID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var attempt model.AssessmentAttempt
		if err := env.db.Where("attempt_id = ?", attemptID).First(&attempt).Error; err != nil {
			return false
		}
		return attempt.Status == model.AttemptStatusCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

// --- Test GetAttempt ---

func Test_sessionService_GetAttempt_RestoresAnswersAfterRestart(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID
	questionID := view.Questions[0].QuestionID
	optA := view.Questions[0].Options[0].OptionID

	err = env.svc.SetAnswer(ctx, user.ID, attemptID, questionID, &model.SetAnswerRequest{SelectedOptionID: &optA})
	require.NoError(t, err)

	// 別インスタンス (サーバー再起動相当) から取得しても保存済み回答が復元される
	restarted := NewSessionService(
		env.db,
		repository.NewGormAttemptRepository(),
		repository.NewGormAnswerRepository(),
		repository.NewGormAssessmentRepository(),
		repository.NewGormProgressRepository(),
		env.notifier,
		env.cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	restoredView, err := restarted.GetAttempt(ctx, user.ID, attemptID)
	require.NoError(t, err)
	require.Contains(t, restoredView.Answers, questionID)
	require.NotNil(t, restoredView.Answers[questionID].SelectedOptionID)
	assert.Equal(t, optA, *restoredView.Answers[questionID].SelectedOptionID)
}

func Test_sessionService_GetAttempt_NotFound(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)

	_, err := env.svc.GetAttempt(ctx, uuid.New(), uuid.New())

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// --- Test Shutdown ---

func Test_sessionService_Shutdown_FlushesPendingEssayWithoutHanging(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBSession(t)
	cfg := testAppConfig()
	cfg.App.EssayDebounceMs = 60000 // 自然満了させず、Shutdownの書き出しだけを見る
	svc := NewSessionService(
		db,
		repository.NewGormAttemptRepository(),
		repository.NewGormAnswerRepository(),
		repository.NewGormAssessmentRepository(),
		repository.NewGormProgressRepository(),
		&countingNotifier{},
		cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	assessment := seedAssessment(t, db, nil)
	user := testUser()

	view, err := svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID
	essayID := view.Questions[2].QuestionID

	text := "still in the debounce window"
	err = svc.SetAnswer(ctx, user.ID, attemptID, essayID, &model.SetAnswerRequest{EssayText: &text})
	require.NoError(t, err)

	// デバウンス待ちの保存コールバックはセッションのロックを取り直すため、
	// Shutdownがロックを握ったまま書き出すと戻ってこなくなる
	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not return; pending essay flush is stuck")
	}

	// 保存待ちだった記述回答はストアに書き出されている
	var answers []model.Answer
	require.NoError(t, db.Where("attempt_id = ? AND question_id = ?", attemptID, essayID).Find(&answers).Error)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].EssayText)
	assert.Equal(t, text, *answers[0].EssayText)
}

func Test_sessionService_Submit_IdempotentAfterRestart(t *testing.T) {
	ctx := context.Background()
	env := newSessionServiceForTest(t)
	assessment := seedAssessment(t, env.db, nil)
	user := testUser()

	view, err := env.svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID

	correct := correctOptionID(t, view, 0, env.db)
	err = env.svc.SetAnswer(ctx, user.ID, attemptID, view.Questions[0].QuestionID,
		&model.SetAnswerRequest{SelectedOptionID: &correct})
	require.NoError(t, err)

	first, err := env.svc.Submit(ctx, user, attemptID)
	require.NoError(t, err)

	// 再起動後 (別インスタンス) の二重提出も、点数だけでなく内訳までそろった
	// 結果を返す
	restarted := NewSessionService(
		env.db,
		repository.NewGormAttemptRepository(),
		repository.NewGormAnswerRepository(),
		repository.NewGormAssessmentRepository(),
		repository.NewGormProgressRepository(),
		env.notifier,
		env.cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	second, err := restarted.Submit(ctx, user, attemptID)
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, first.CorrectCount, second.CorrectCount)
	assert.Equal(t, first.IncorrectCount, second.IncorrectCount)
	assert.Equal(t, first.UnansweredCount, second.UnansweredCount)
	require.Len(t, second.Details, len(first.Details))
}

// flakyAttemptRepository は指定回数だけUpdateを失敗させるテスト用ラッパー。
type flakyAttemptRepository struct {
	repository.AttemptRepository
	mu          sync.Mutex
	failUpdates int
}

func (r *flakyAttemptRepository) Update(ctx context.Context, tx *gorm.DB, attempt *model.AssessmentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates > 0 {
		r.failUpdates--
		return errors.New("simulated write failure")
	}
	return r.AttemptRepository.Update(ctx, tx, attempt)
}

func Test_sessionService_Submit_RollsBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBSession(t)
	cfg := testAppConfig()
	cfg.App.EssayDebounceMs = 20
	flakyRepo := &flakyAttemptRepository{
		AttemptRepository: repository.NewGormAttemptRepository(),
		failUpdates:       1,
	}
	notifier := &countingNotifier{}
	svc := NewSessionService(
		db,
		flakyRepo,
		repository.NewGormAnswerRepository(),
		repository.NewGormAssessmentRepository(),
		repository.NewGormProgressRepository(),
		notifier,
		cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	assessment := seedAssessment(t, db, nil)
	user := testUser()

	view, err := svc.StartAttempt(ctx, user, assessment.AssessmentID)
	require.NoError(t, err)
	attemptID := view.Attempt.AttemptID

	correct := correctOptionID(t, view, 0, db)
	err = svc.SetAnswer(ctx, user.ID, attemptID, view.Questions[0].QuestionID,
		&model.SetAnswerRequest{SelectedOptionID: &correct})
	require.NoError(t, err)

	// 1回目: ストア書き込み失敗 → 提出は成立せず、セッションは受験中のまま巻き戻る
	_, err = svc.Submit(ctx, user, attemptID)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInternalServer)

	rolledBack, err := svc.GetAttempt(ctx, user.ID, attemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusInProgress, rolledBack.Attempt.Status)
	assert.Nil(t, rolledBack.Attempt.FinishedAt)
	assert.Equal(t, 0, rolledBack.Attempt.Score)
	assert.False(t, rolledBack.Attempt.Passed)

	// 2回目: 正常に提出できる
	result, err := svc.Submit(ctx, user, attemptID)
	require.NoError(t, err)
	assert.Equal(t, 33, result.Score)

	var attempt model.AssessmentAttempt
	require.NoError(t, db.Where("attempt_id = ?", attemptID).First(&attempt).Error)
	assert.Equal(t, model.AttemptStatusCompleted, attempt.Status)
	assert.Equal(t, 33, attempt.Score)
}
