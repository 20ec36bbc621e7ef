// internal/service/progress_service.go
package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"learn_track/internal/config"
	"learn_track/internal/middleware"
	"learn_track/internal/model"
	"learn_track/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProgressService interface {
	ReportProgress(ctx context.Context, userID, videoID uuid.UUID, currentTime, duration float64) error
	MarkVideoEnded(ctx context.Context, userID, videoID uuid.UUID) error
	ResumePosition(ctx context.Context, userID, videoID uuid.UUID) (*model.ResumePositionResponse, error)
	ResumeVideo(ctx context.Context, userID, courseID uuid.UUID) (*model.ResumeVideoResponse, error)
	CourseProgress(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgressResponse, error)
}

// persistedProgress は直近で永続化した視聴状態 (書き込み間引き用のキャッシュ)。
type persistedProgress struct {
	percentage int
	position   float64
	completed  bool
}

type progressKey struct {
	userID  uuid.UUID
	videoID uuid.UUID
}

type progressService struct {
	db        *gorm.DB
	progRepo  repository.ProgressRepository
	videoRepo repository.VideoRepository
	cfg       *config.Config

	mu        sync.Mutex
	persisted map[progressKey]persistedProgress
}

func NewProgressService(db *gorm.DB, progRepo repository.ProgressRepository, videoRepo repository.VideoRepository, cfg *config.Config) ProgressService {
	return &progressService{
		db:        db,
		progRepo:  progRepo,
		videoRepo: videoRepo,
		cfg:       cfg,
		persisted: make(map[progressKey]persistedProgress),
	}
}

// ReportProgress は再生テレメトリを受け取り、間引きしつつ視聴状態をupsertします。
//
// 間引きポリシー: 未完了で、かつ前回永続化時点から進捗率の差が5ポイント超
// または再生位置の差が5秒超のときだけ書き込む。完了後の報告は永続化しない
// (completed は一度 true になったら戻らない)。
func (s *progressService) ReportProgress(ctx context.Context, userID, videoID uuid.UUID, currentTime, duration float64) error {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "video_id", videoID)

	if duration <= 0 {
		return model.NewAppError("INVALID_PROGRESS", "duration_seconds must be positive.", "duration_seconds", model.ErrInvalidInput)
	}
	if currentTime < 0 || currentTime > duration {
		return model.NewAppError("INVALID_PROGRESS", "current_time_seconds must be within [0, duration].", "current_time_seconds", model.ErrInvalidInput)
	}

	pct := int(math.Floor(currentTime / duration * 100))

	last, err := s.lastPersisted(ctx, userID, videoID)
	if err != nil {
		logger.Error("Failed to load persisted progress", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load video progress.", "", model.ErrInternalServer)
	}

	// 完了済みなら以降の報告は永続化しない
	if last.completed {
		return nil
	}

	deltaPct := pct - last.percentage
	if deltaPct < 0 {
		deltaPct = -deltaPct
	}
	deltaPos := math.Abs(currentTime - last.position)
	if deltaPct <= s.cfg.App.ProgressDeltaPercent && deltaPos <= s.cfg.App.ProgressDeltaSeconds {
		// しきい値未満の変化は書き込まない (連続再生中の書き込み頻度を抑える)
		return nil
	}

	completed := pct > s.cfg.App.CompletionPercent
	if completed {
		pct = 100
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsertProgress(ctx, tx, userID, videoID, func(p *model.VideoProgress) {
			// 再確認: 保存済みの行が完了していたら何も変更しない
			if p.Completed {
				return
			}
			p.ProgressPercentage = pct
			p.LastPositionSeconds = currentTime
			p.Completed = completed
			p.WatchedAt = time.Now()
		})
	})
	if err != nil {
		logger.Error("Failed to save video progress", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to save video progress.", "", model.ErrInternalServer)
	}

	s.remember(userID, videoID, persistedProgress{percentage: pct, position: currentTime, completed: completed})
	logger.Debug("Video progress saved", "percentage", pct, "position", currentTime, "completed", completed)
	return nil
}

// MarkVideoEnded は再生終了イベントで視聴完了を無条件にupsertします。
// この遷移が動画後クイズの受験可否を解放します。
func (s *progressService) MarkVideoEnded(ctx context.Context, userID, videoID uuid.UUID) error {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "video_id", videoID)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsertProgress(ctx, tx, userID, videoID, func(p *model.VideoProgress) {
			p.ProgressPercentage = 100
			p.Completed = true
			p.WatchedAt = time.Now()
		})
	})
	if err != nil {
		logger.Error("Failed to mark video as ended", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to save video completion.", "", model.ErrInternalServer)
	}

	s.mu.Lock()
	cached := s.persisted[progressKey{userID, videoID}]
	cached.percentage = 100
	cached.completed = true
	s.persisted[progressKey{userID, videoID}] = cached
	s.mu.Unlock()

	logger.Info("Video marked as completed")
	return nil
}

// ResumePosition は再開位置を返します。完了済みの動画は先頭から (位置0・100%)。
// 記録が無ければゼロ値。
func (s *progressService) ResumePosition(ctx context.Context, userID, videoID uuid.UUID) (*model.ResumePositionResponse, error) {
	progress, err := s.progRepo.Find(ctx, s.db, userID, videoID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &model.ResumePositionResponse{}, nil
		}
		middleware.GetLogger(ctx).Error("Failed to find video progress", "video_id", videoID, "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load video progress.", "", model.ErrInternalServer)
	}

	if progress.Completed {
		return &model.ResumePositionResponse{LastPositionSeconds: 0, ProgressPercentage: 100}, nil
	}
	return &model.ResumePositionResponse{
		LastPositionSeconds: progress.LastPositionSeconds,
		ProgressPercentage:  progress.ProgressPercentage,
	}, nil
}

// ResumeVideo はコースを開いた学習者がどの動画から再開すべきかを返します。
func (s *progressService) ResumeVideo(ctx context.Context, userID, courseID uuid.UUID) (*model.ResumeVideoResponse, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", courseID)

	videos, err := s.videoRepo.ListByCourse(ctx, s.db, courseID)
	if err != nil {
		logger.Error("Failed to list course videos", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load course videos.", "", model.ErrInternalServer)
	}
	if len(videos) == 0 {
		return nil, model.NewAppError("NOT_FOUND", "Course has no videos.", "", model.ErrNotFound)
	}

	progressByVideo, completedSet, err := s.loadCourseProgress(ctx, userID, videos)
	if err != nil {
		logger.Error("Failed to load course progress", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load course progress.", "", model.ErrInternalServer)
	}

	index := SelectResumeVideo(progressByVideo, completedSet, videos)
	return &model.ResumeVideoResponse{VideoID: videos[index].VideoID, Index: index}, nil
}

// CourseProgress はコース全体の視聴状況サマリを返します。
func (s *progressService) CourseProgress(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgressResponse, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", courseID)

	videos, err := s.videoRepo.ListByCourse(ctx, s.db, courseID)
	if err != nil {
		logger.Error("Failed to list course videos", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load course videos.", "", model.ErrInternalServer)
	}

	videoIDs := make([]uuid.UUID, len(videos))
	for i, v := range videos {
		videoIDs[i] = v.VideoID
	}

	progresses, err := s.progRepo.FindByUserAndVideos(ctx, s.db, userID, videoIDs)
	if err != nil {
		logger.Error("Failed to load video progress rows", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "Failed to load course progress.", "", model.ErrInternalServer)
	}

	resp := &model.CourseProgressResponse{
		CourseID:    courseID,
		TotalVideos: len(videos),
		Videos:      progresses,
	}
	for _, p := range progresses {
		if p.Completed {
			resp.CompletedVideos++
		}
	}
	return resp, nil
}

// SelectResumeVideo は再開すべき動画のインデックスを決めます。優先順:
//  1. 後ろから走査して、視聴途中 (0 < 進捗 < 90 かつ未完了) の動画
//  2. 最後に完了した動画の次 (最後の動画が完了済みの場合を除く)
//  3. それ以外は先頭
func SelectResumeVideo(progressByVideo map[uuid.UUID]int, completedSet map[uuid.UUID]bool, videos []*model.Video) int {
	// 1. 視聴途中の動画を優先 (後ろから)
	for i := len(videos) - 1; i >= 0; i-- {
		id := videos[i].VideoID
		pct := progressByVideo[id]
		if pct > 0 && pct < 90 && !completedSet[id] {
			return i
		}
	}

	// 2. 最後に完了した動画の次へ
	lastCompleted := -1
	for i := range videos {
		if completedSet[videos[i].VideoID] {
			lastCompleted = i
		}
	}
	if lastCompleted >= 0 && lastCompleted < len(videos)-1 {
		return lastCompleted + 1
	}

	// 3. 進捗なし、または全部完了
	return 0
}

// lastPersisted はキャッシュ、無ければストアから前回永続化した状態を引きます。
func (s *progressService) lastPersisted(ctx context.Context, userID, videoID uuid.UUID) (persistedProgress, error) {
	key := progressKey{userID, videoID}

	s.mu.Lock()
	cached, ok := s.persisted[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	progress, err := s.progRepo.Find(ctx, s.db, userID, videoID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return persistedProgress{}, nil
		}
		return persistedProgress{}, err
	}

	state := persistedProgress{
		percentage: progress.ProgressPercentage,
		position:   progress.LastPositionSeconds,
		completed:  progress.Completed,
	}
	s.remember(userID, videoID, state)
	return state, nil
}

func (s *progressService) remember(userID, videoID uuid.UUID, state persistedProgress) {
	s.mu.Lock()
	s.persisted[progressKey{userID, videoID}] = state
	s.mu.Unlock()
}

// upsertProgress は (user, video) の行を探して更新、無ければ作成します。
func (s *progressService) upsertProgress(ctx context.Context, tx *gorm.DB, userID, videoID uuid.UUID, mutate func(*model.VideoProgress)) error {
	progress, err := s.progRepo.Find(ctx, tx, userID, videoID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		progress = &model.VideoProgress{
			ProgressID: uuid.New(),
			UserID:     userID,
			VideoID:    videoID,
		}
	}
	mutate(progress)
	return s.progRepo.Save(ctx, tx, progress)
}

// loadCourseProgress は SelectResumeVideo が要る形に進捗行を変換します。
func (s *progressService) loadCourseProgress(ctx context.Context, userID uuid.UUID, videos []*model.Video) (map[uuid.UUID]int, map[uuid.UUID]bool, error) {
	videoIDs := make([]uuid.UUID, len(videos))
	for i, v := range videos {
		videoIDs[i] = v.VideoID
	}

	progresses, err := s.progRepo.FindByUserAndVideos(ctx, s.db, userID, videoIDs)
	if err != nil {
		return nil, nil, err
	}

	progressByVideo := make(map[uuid.UUID]int, len(progresses))
	completedSet := make(map[uuid.UUID]bool)
	for _, p := range progresses {
		progressByVideo[p.VideoID] = p.ProgressPercentage
		if p.Completed {
			completedSet[p.VideoID] = true
		}
	}
	return progressByVideo, completedSet, nil
}
