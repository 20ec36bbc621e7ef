// internal/handlers/certificate_handler.go
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

type CertificateHandler struct {
	certificateService service.CertificateService
}

func NewCertificateHandler(certificateService service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

// Issue は POST /courses/{course_id}/certificate に対応します。
// 発行は冪等なので、既に発行済みでも200で既存の修了証を返します。
func (h *CertificateHandler) Issue(w http.ResponseWriter, r *http.Request) {
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

	cert, err := h.certificateService.Issue(r.Context(), user, courseID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusOK, cert)
}

// List は GET /certificates に対応します。
func (h *CertificateHandler) List(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}

	certs, err := h.certificateService.List(r.Context(), user.ID)
	if err != nil {
		webutil.HandleError(w, logger, err)
		return
	}
	webutil.RespondWithJSON(w, http.StatusOK, certs)
}
