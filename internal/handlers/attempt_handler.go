// internal/handlers/attempt_handler.go
package handlers

import (
	"net/http"

	"learn_track/internal/middleware"
	"learn_track/internal/model"
	"learn_track/internal/service"
	"learn_track/internal/webutil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type AttemptHandler struct {
	sessionService service.SessionService
}

func NewAttemptHandler(sessionService service.SessionService) *AttemptHandler {
	return &AttemptHandler{sessionService: sessionService}
}

// StartAttempt は POST /assessments/{assessment_id}/attempts に対応します。
// 新しい試行を開始し、出題と期限を含むスナップショットを返します。
func (h *AttemptHandler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	assessmentID, err := uuid.Parse(chi.URLParam(r, "assessment_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "assessment_id must be a UUID.", "assessment_id", model.ErrInvalidInput))
		return
	}

	view, err := h.sessionService.StartAttempt(r.Context(), user, assessmentID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusCreated, view)
}

// GetAttempt は GET /attempts/{attempt_id} に対応します。
// ページ再読み込み後の回答復元に使います。
func (h *AttemptHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	attemptID, err := uuid.Parse(chi.URLParam(r, "attempt_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "attempt_id must be a UUID.", "attempt_id", model.ErrInvalidInput))
		return
	}

	view, err := h.sessionService.GetAttempt(r.Context(), user.ID, attemptID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusOK, view)
}

// SetAnswer は PUT /attempts/{attempt_id}/answers/{question_id} に対応します。
// 同じ問題への再回答は上書きになります。
func (h *AttemptHandler) SetAnswer(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	attemptID, err := uuid.Parse(chi.URLParam(r, "attempt_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "attempt_id must be a UUID.", "attempt_id", model.ErrInvalidInput))
		return
	}
	questionID, err := uuid.Parse(chi.URLParam(r, "question_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "question_id must be a UUID.", "question_id", model.ErrInvalidInput))
		return
	}

	var req model.SetAnswerRequest
	if err := webutil.DecodeJSONBody(r, &req); err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	if err := h.sessionService.SetAnswer(r.Context(), user.ID, attemptID, questionID, &req); err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit は POST /attempts/{attempt_id}/submit に対応します。
// 二重送信でも最初の提出結果を返します。
func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	attemptID, err := uuid.Parse(chi.URLParam(r, "attempt_id"))
	if err != nil {
		webutil.HandleError(w, logger, model.NewAppError("INVALID_PARAM", "attempt_id must be a UUID.", "attempt_id", model.ErrInvalidInput))
		return
	}

	result, err := h.sessionService.Submit(r.Context(), user, attemptID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusOK, result)
}
