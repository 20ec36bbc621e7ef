// internal/handlers/progress_handler.go
package handlers

import (
	"errors"
	"net/http"

	"learn_track/internal/middleware"
	"learn_track/internal/model"
	"learn_track/internal/service"
	"learn_track/internal/webutil"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ProgressHandler struct {
	progressService service.ProgressService
}

func NewProgressHandler(progressService service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progressService: progressService}
}

// ReportProgress は POST /videos/{video_id}/progress に対応します。
// プレイヤーからの定期的な再生位置テレメトリを受け取ります。
func (h *ProgressHandler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	videoID, err := uuid.Parse(chi.URLParam(r, "video_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "video_id must be a UUID.", "video_id", model.ErrInvalidInput))
		return
	}

	var req model.ReportProgressRequest
	if err := webutil.DecodeJSONBody(r, &req); err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	if err := webutil.Validator.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			webutil.HandleError(w, logger, webutil.NewValidationErrorResponse(validationErrs))
			return
		}
		webutil.HandleError(w, logger, err)
		return
	}

	if err := h.progressService.ReportProgress(r.Context(), user.ID, videoID, *req.CurrentTimeSeconds, *req.DurationSeconds); err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkVideoEnded は POST /videos/{video_id}/ended に対応します。
func (h *ProgressHandler) MarkVideoEnded(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	videoID, err := uuid.Parse(chi.URLParam(r, "video_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "video_id must be a UUID.", "video_id", model.ErrInvalidInput))
		return
	}

	if err := h.progressService.MarkVideoEnded(r.Context(), user.ID, videoID); err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumePosition は GET /videos/{video_id}/progress に対応します。
func (h *ProgressHandler) ResumePosition(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	videoID, err := uuid.Parse(chi.URLParam(r, "video_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "video_id must be a UUID.", "video_id", model.ErrInvalidInput))
		return
	}

	resp, err := h.progressService.ResumePosition(r.Context(), user.ID, videoID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusOK, resp)
}

// ResumeVideo は GET /courses/{course_id}/resume に対応します。
// コースを開いたとき、どの動画から再開すべきかを返します。
func (h *ProgressHandler) ResumeVideo(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	courseID, err := uuid.Parse(chi.URLParam(r, "course_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "course_id must be a UUID.", "course_id", model.ErrInvalidInput))
		return
	}

	resp, err := h.progressService.ResumeVideo(r.Context(), user.ID, courseID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusOK, resp)
}

// CourseProgress は GET /courses/{course_id}/progress に対応します。
func (h *ProgressHandler) CourseProgress(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	courseID, err := uuid.Parse(chi.URLParam(r, "course_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "course_id must be a UUID.", "course_id", model.ErrInvalidInput))
		return
	}

	resp, err := h.progressService.CourseProgress(r.Context(), user.ID, courseID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusOK, resp)
}
