// internal/service/session_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"learn_track/internal/config"
	"learn_track/internal/middleware"
	"learn_track/internal/model"
	"learn_track/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionService interface {
	StartAttempt(ctx context.Context, user model.UserContext, assessmentID uuid.UUID) (*model.AttemptView, error)
	GetAttempt(ctx context.Context, userID, attemptID uuid.UUID) (*model.AttemptView, error)
	SetAnswer(ctx context.Context, userID, attemptID, questionID uuid.UUID, req *model.SetAnswerRequest) error
	Submit(ctx context.Context, user model.UserContext, attemptID uuid.UUID) (*model.ScoreResult, error)
	Shutdown()
}

// attemptSession は進行中の1試行のインメモリ状態。
// フィールドは mu で保護される。submitted が true になった後は
// answers への書き込みもストアへの永続化も行わない。
type attemptSession struct {
	mu         sync.Mutex
	attempt    *model.AssessmentAttempt
	assessment *model.Assessment
	user       model.UserContext
	answers    map[uuid.UUID]model.AnswerValue
	debouncer  *KeyedDebouncer
	deadline   *time.Time
	timer      *time.Timer
	submitted  bool
	result     *model.ScoreResult
}

type sessionService struct {
	db             *gorm.DB
	attemptRepo    repository.AttemptRepository
	answerRepo     repository.AnswerRepository
	assessmentRepo repository.AssessmentRepository
	progRepo       repository.ProgressRepository
	notifier       Notifier
	cfg            *config.Config
	// タイマー・デバウンス経由の非同期処理用 (リクエストスコープのloggerが無い)
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*attemptSession
}

func NewSessionService(
	db *gorm.DB,
	attemptRepo repository.AttemptRepository,
	answerRepo repository.AnswerRepository,
	assessmentRepo repository.AssessmentRepository,
	progRepo repository.ProgressRepository,
	notifier Notifier,
	cfg *config.Config,
	logger *slog.Logger,
) SessionService {
	return &sessionService{
		db:             db,
		attemptRepo:    attemptRepo,
		answerRepo:     answerRepo,
		assessmentRepo: assessmentRepo,
		progRepo:       progRepo,
		notifier:       notifier,
		cfg:            cfg,
		logger:         logger,
		sessions:       make(map[uuid.UUID]*attemptSession),
	}
}

// StartAttempt は新しい試行を開始します。
//
// テストに前提動画が設定されている場合、その動画の視聴完了が条件。
// attempt_number は同一 (user, assessment) の既存最大値+1をトランザクション内で
// 採番するため、欠番や重複は発生しない。制限時間付きのテストでは期限タイマーを
// 張り、期限到達時にサーバー側で自動提出する。
func (s *sessionService) StartAttempt(ctx context.Context, user model.UserContext, assessmentID uuid.UUID) (*model.AttemptView, error) {
	logger := middleware.GetLogger(ctx).With("user_id", user.ID, "assessment_id", assessmentID)

	assessment, err := s.assessmentRepo.FindByID(ctx, s.db, assessmentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "Assessment not found.", "", model.ErrNotFound)
		}
		logger.Error("Failed to find assessment", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load assessment.", "", model.ErrInternalServer)
	}

	// 前提動画の視聴完了チェック
	if assessment.VideoID != nil {
		progress, err := s.progRepo.Find(ctx, s.db, user.ID, *assessment.VideoID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			logger.Error("Failed to check video completion", "error", err)
			return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to check video completion.", "", model.ErrInternalServer)
		}
		if progress == nil || !progress.Completed {
			return nil, model.NewAppError("VIDEO_NOT_COMPLETED", "You must finish the video before taking this test.", "", model.ErrForbidden)
		}
	}

	now := time.Now()
	attempt := &model.AssessmentAttempt{
		AttemptID:    uuid.New(),
		UserID:       user.ID,
		AssessmentID: assessmentID,
		Status:       model.AttemptStatusInProgress,
		StartedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxNumber, err := s.attemptRepo.MaxAttemptNumber(ctx, tx, user.ID, assessmentID)
		if err != nil {
			return err
		}
		attempt.AttemptNumber = maxNumber + 1
		return s.attemptRepo.Create(ctx, tx, attempt)
	})
	if err != nil {
		logger.Error("Failed to create attempt", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to start attempt.", "", model.ErrInternalServer)
	}

	session := &attemptSession{
		attempt:    attempt,
		assessment: assessment,
		user:       user,
		answers:    make(map[uuid.UUID]model.AnswerValue),
		debouncer:  NewKeyedDebouncer(time.Duration(s.cfg.App.EssayDebounceMs) * time.Millisecond),
	}
	if assessment.TimeLimitMinutes > 0 {
		deadline := now.Add(time.Duration(assessment.TimeLimitMinutes) * time.Minute)
		session.deadline = &deadline
		session.timer = time.AfterFunc(time.Until(deadline), func() {
			s.autoSubmit(attempt.AttemptID)
		})
	}

	s.mu.Lock()
	s.sessions[attempt.AttemptID] = session
	s.mu.Unlock()

	logger.Info("Attempt started", "attempt_id", attempt.AttemptID, "attempt_number", attempt.AttemptNumber)
	return s.buildView(session), nil
}

// GetAttempt は試行のスナップショットを返します。
// ページ再読み込みで受験画面に戻ってきたとき、保存済みの回答を復元するのに使う。
func (s *sessionService) GetAttempt(ctx context.Context, userID, attemptID uuid.UUID) (*model.AttemptView, error) {
	session, err := s.session(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.attempt.UserID != userID {
		return nil, model.NewAppError("FORBIDDEN", "This attempt belongs to another user.", "", model.ErrForbidden)
	}
	return s.buildViewLocked(session), nil
}

// SetAnswer は1問の回答を保存します。同じ問題への回答変更は上書きで、
// 重複行は作られない。選択式は即時に永続化し、記述式は問題単位のデバウンス後に
// 永続化する。提出済み試行への書き込みは拒否。
func (s *sessionService) SetAnswer(ctx context.Context, userID, attemptID, questionID uuid.UUID, req *model.SetAnswerRequest) error {
	logger := middleware.GetLogger(ctx).With("attempt_id", attemptID, "question_id", questionID)

	session, err := s.session(ctx, attemptID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.attempt.UserID != userID {
		return model.NewAppError("FORBIDDEN", "This attempt belongs to another user.", "", model.ErrForbidden)
	}
	if session.submitted {
		return model.NewAppError("ATTEMPT_COMPLETED", "This attempt has already been submitted.", "", model.ErrConflict)
	}

	question := findQuestion(session.assessment, questionID)
	if question == nil {
		return model.NewAppError("NOT_FOUND", "Question does not belong to this assessment.", "question_id", model.ErrNotFound)
	}
	value, err := validateAnswer(question, req)
	if err != nil {
		return err
	}

	session.answers[questionID] = value

	if question.Type == model.QuestionTypeEssay {
		// 記述式: 連続入力を間引いて最後の状態だけ保存
		session.debouncer.Trigger(questionID.String(), func() {
			s.persistAnswer(session, questionID, value)
		})
		return nil
	}

	// 選択式: 即時保存
	if err := s.upsertAnswer(ctx, s.db, session, questionID, value); err != nil {
		logger.Error("Failed to save answer", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to save answer.", "", model.ErrInternalServer)
	}
	return nil
}

// Submit は試行を提出して採点結果を返します。
//
// 提出は1試行につき1回だけ実行される。2回目以降の呼び出し (二重クリックや
// 期限タイマーとの競合) は最初の提出の結果をそのまま返す。提出の成否は
// ストアへの書き込みで決まり、通知Webhookの失敗は提出を失敗させない。
func (s *sessionService) Submit(ctx context.Context, user model.UserContext, attemptID uuid.UUID) (*model.ScoreResult, error) {
	logger := middleware.GetLogger(ctx).With("user_id", user.ID, "attempt_id", attemptID)

	session, err := s.session(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.attempt.UserID != user.ID {
		return nil, model.NewAppError("FORBIDDEN", "This attempt belongs to another user.", "", model.ErrForbidden)
	}
	if session.user.Email == "" {
		session.user = user
	}

	result, err := s.submitLocked(ctx, session, logger)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Shutdown は全セッションのタイマーを止め、保存待ちの回答を書き出します
// (graceful shutdown用)。
func (s *sessionService) Shutdown() {
	s.mu.Lock()
	sessions := make([]*attemptSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.mu.Lock()
		if session.timer != nil {
			session.timer.Stop()
			session.timer = nil
		}
		session.mu.Unlock()
		// デバウンス満了時のコールバックは session.mu を取るので、ロックを
		// 手放してから実行する
		session.debouncer.FlushAll()
	}
}

// submitLocked は提出処理の本体。session.mu を保持した状態で呼ぶこと。
func (s *sessionService) submitLocked(ctx context.Context, session *attemptSession, logger *slog.Logger) (*model.ScoreResult, error) {
	if session.submitted {
		// 冪等: 最初の提出結果を返す
		return session.result, nil
	}

	if session.timer != nil {
		session.timer.Stop()
		session.timer = nil
	}
	// 保存待ちの記述式回答を書き出してから採点 (デバウンス中の入力を落とさない)
	session.debouncer.StopAll()
	for questionID, value := range session.answers {
		if err := s.upsertAnswer(ctx, s.db, session, questionID, value); err != nil {
			logger.Error("Failed to flush answer before submit", "question_id", questionID, "error", err)
			return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to save answers.", "", model.ErrInternalServer)
		}
	}

	passingPercent := session.assessment.PassingPercentage
	if passingPercent <= 0 {
		passingPercent = s.cfg.App.DefaultPassingPercent
	}
	result := Score(session.assessment.Questions, session.answers, passingPercent)

	now := time.Now()
	session.attempt.Status = model.AttemptStatusCompleted
	session.attempt.FinishedAt = &now
	session.attempt.Score = result.Score
	session.attempt.Passed = result.Passed

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.attemptRepo.Update(ctx, tx, session.attempt)
	})
	if err != nil {
		logger.Error("Failed to complete attempt", "error", err)
		// 巻き戻し: ストア上はまだ in_progress なのでメモリ側も揃える
		session.attempt.Status = model.AttemptStatusInProgress
		session.attempt.FinishedAt = nil
		session.attempt.Score = 0
		session.attempt.Passed = false
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to submit attempt.", "", model.ErrInternalServer)
	}

	session.submitted = true
	session.result = &result
	logger.Info("Attempt submitted",
		"attempt_number", session.attempt.AttemptNumber,
		"score", result.Score,
		"passed", result.Passed,
	)

	// 通知はベストエフォート。失敗しても提出は成立している。
	notice := s.buildNotice(session, now)
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.NotifySubmission(notifyCtx, notice); err != nil {
			s.logger.Error("Failed to deliver submission notice",
				"attempt_id", notice.AttemptID, "error", err)
		}
	}()

	return &result, nil
}

// autoSubmit は制限時間到達時にサーバー側から試行を提出します。
func (s *sessionService) autoSubmit(attemptID uuid.UUID) {
	logger := s.logger.With("attempt_id", attemptID, "trigger", "deadline")

	s.mu.Lock()
	session, ok := s.sessions[attemptID]
	s.mu.Unlock()
	if !ok {
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.submitted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.submitLocked(ctx, session, logger); err != nil {
		logger.Error("Deadline auto-submit failed", "error", err)
		return
	}
	logger.Info("Attempt auto-submitted at deadline")
}

// session は試行IDに対応するセッションを返します。メモリに無ければ
// ストアから復元する (サーバー再起動後でも途中の試行を継続できる)。
func (s *sessionService) session(ctx context.Context, attemptID uuid.UUID) (*attemptSession, error) {
	s.mu.Lock()
	if session, ok := s.sessions[attemptID]; ok {
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	session, err := s.recoverSession(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// 復元中に別リクエストが先に登録していたらそちらを使う
	if existing, ok := s.sessions[attemptID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[attemptID] = session
	s.mu.Unlock()

	// タイマーはマップ登録後に張る (autoSubmit がセッションを引けるように)
	session.mu.Lock()
	if !session.submitted && session.deadline != nil {
		remaining := time.Until(*session.deadline)
		if remaining < 0 {
			remaining = 0
		}
		session.timer = time.AfterFunc(remaining, func() {
			s.autoSubmit(attemptID)
		})
	}
	session.mu.Unlock()

	return session, nil
}

// recoverSession はストア上の試行と保存済み回答からセッションを組み立てます。
func (s *sessionService) recoverSession(ctx context.Context, attemptID uuid.UUID) (*attemptSession, error) {
	logger := middleware.GetLogger(ctx).With("attempt_id", attemptID)

	attempt, err := s.attemptRepo.FindByID(ctx, s.db, attemptID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "Attempt not found.", "", model.ErrNotFound)
		}
		logger.Error("Failed to find attempt", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load attempt.", "", model.ErrInternalServer)
	}

	assessment, err := s.assessmentRepo.FindByID(ctx, s.db, attempt.AssessmentID)
	if err != nil {
		logger.Error("Failed to find assessment for attempt", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load assessment.", "", model.ErrInternalServer)
	}

	answers, err := s.answerRepo.ListByAttempt(ctx, s.db, attemptID, attempt.UserID)
	if err != nil {
		logger.Error("Failed to restore answers", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to restore answers.", "", model.ErrInternalServer)
	}

	session := &attemptSession{
		attempt:    attempt,
		assessment: assessment,
		user:       model.UserContext{ID: attempt.UserID},
		answers:    make(map[uuid.UUID]model.AnswerValue, len(answers)),
		debouncer:  NewKeyedDebouncer(time.Duration(s.cfg.App.EssayDebounceMs) * time.Millisecond),
	}
	for _, a := range answers {
		session.answers[a.QuestionID] = model.AnswerValue{
			SelectedOptionID: a.SelectedOptionID,
			EssayText:        a.EssayText,
		}
	}

	if attempt.Status == model.AttemptStatusCompleted {
		session.submitted = true
		// 提出時と同じ設問・回答から採点結果を再計算する (二重提出への応答が
		// 提出直後のレスポンスと同じ内訳を持つように)
		passingPercent := assessment.PassingPercentage
		if passingPercent <= 0 {
			passingPercent = s.cfg.App.DefaultPassingPercent
		}
		result := Score(assessment.Questions, session.answers, passingPercent)
		session.result = &result
		return session, nil
	}

	if assessment.TimeLimitMinutes > 0 {
		deadline := attempt.StartedAt.Add(time.Duration(assessment.TimeLimitMinutes) * time.Minute)
		session.deadline = &deadline
	}
	logger.Info("Attempt session restored from store", "answers", len(session.answers))
	return session, nil
}

// persistAnswer はデバウンス満了後の記述式回答を保存します (非同期)。
func (s *sessionService) persistAnswer(session *attemptSession, questionID uuid.UUID, value model.AnswerValue) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.submitted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.upsertAnswer(ctx, s.db, session, questionID, value); err != nil {
		s.logger.Error("Failed to autosave essay answer",
			"attempt_id", session.attempt.AttemptID, "question_id", questionID, "error", err)
	}
}

func (s *sessionService) upsertAnswer(ctx context.Context, db *gorm.DB, session *attemptSession, questionID uuid.UUID, value model.AnswerValue) error {
	answer := &model.Answer{
		AnswerID:         uuid.New(),
		UserID:           session.attempt.UserID,
		AttemptID:        session.attempt.AttemptID,
		QuestionID:       questionID,
		SelectedOptionID: value.SelectedOptionID,
		EssayText:        value.EssayText,
	}
	return s.answerRepo.Upsert(ctx, db, answer)
}

func (s *sessionService) buildView(session *attemptSession) *model.AttemptView {
	session.mu.Lock()
	defer session.mu.Unlock()
	return s.buildViewLocked(session)
}

func (s *sessionService) buildViewLocked(session *attemptSession) *model.AttemptView {
	view := &model.AttemptView{
		Attempt:  session.attempt,
		Answers:  make(map[uuid.UUID]model.AnswerValue, len(session.answers)),
		Deadline: session.deadline,
	}
	for _, q := range session.assessment.Questions {
		view.Questions = append(view.Questions, model.NewQuestionView(&q))
	}
	for id, v := range session.answers {
		view.Answers[id] = v
	}
	return view
}

func (s *sessionService) buildNotice(session *attemptSession, submittedAt time.Time) *model.SubmissionNotice {
	notice := &model.SubmissionNotice{
		TestID:    session.assessment.AssessmentID,
		AttemptID: session.attempt.AttemptID,
		User: model.SubmissionUser{
			ID:       session.attempt.UserID,
			Email:    session.user.Email,
			FullName: session.user.FullName,
		},
		TimeSpentSeconds: int(submittedAt.Sub(session.attempt.StartedAt).Seconds()),
		SubmittedAt:      submittedAt,
		Score:            session.attempt.Score,
		Passed:           session.attempt.Passed,
	}
	for questionID, value := range session.answers {
		notice.Answers = append(notice.Answers, model.SubmittedAnswer{
			QuestionID:       questionID,
			SelectedOptionID: value.SelectedOptionID,
			EssayText:        value.EssayText,
		})
	}
	return notice
}

func findQuestion(assessment *model.Assessment, questionID uuid.UUID) *model.Question {
	for i := range assessment.Questions {
		if assessment.Questions[i].QuestionID == questionID {
			return &assessment.Questions[i]
		}
	}
	return nil
}

// validateAnswer は回答の型と内容が出題に合っているか検証します。
func validateAnswer(question *model.Question, req *model.SetAnswerRequest) (model.AnswerValue, error) {
	switch question.Type {
	case model.QuestionTypeMultipleChoice:
		if req.SelectedOptionID == nil {
			return model.AnswerValue{}, model.NewAppError("INVALID_ANSWER", "selected_option_id is required for multiple choice questions.", "selected_option_id", model.ErrInvalidInput)
		}
		if req.EssayText != nil {
			return model.AnswerValue{}, model.NewAppError("INVALID_ANSWER", "essay_text is not allowed for multiple choice questions.", "essay_text", model.ErrInvalidInput)
		}
		valid := false
		for _, o := range question.Options {
			if o.OptionID == *req.SelectedOptionID {
				valid = true
				break
			}
		}
		if !valid {
			return model.AnswerValue{}, model.NewAppError("INVALID_ANSWER", "Selected option does not belong to this question.", "selected_option_id", model.ErrInvalidInput)
		}
		return model.AnswerValue{SelectedOptionID: req.SelectedOptionID}, nil

	case model.QuestionTypeEssay:
		if req.SelectedOptionID != nil {
			return model.AnswerValue{}, model.NewAppError("INVALID_ANSWER", "selected_option_id is not allowed for essay questions.", "selected_option_id", model.ErrInvalidInput)
		}
		if req.EssayText == nil {
			return model.AnswerValue{}, model.NewAppError("INVALID_ANSWER", "essay_text is required for essay questions.", "essay_text", model.ErrInvalidInput)
		}
		return model.AnswerValue{EssayText: req.EssayText}, nil

	default:
		return model.AnswerValue{}, model.NewAppError("INVALID_ANSWER", fmt.Sprintf("Unsupported question type: %s", question.Type), "", model.ErrInvalidInput)
	}
}
