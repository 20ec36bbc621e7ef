// internal/webutil/request.go
package webutil

import (
	"encoding/json"
	"net/http"

	"learn_track/internal/model"
)

// DecodeJSONBody はリクエストボディをデコードします。
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return model.NewAppError("INVALID_BODY", "Request body is required.", "", model.ErrInvalidInput)
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return model.NewAppError("INVALID_BODY", "Request body is not valid JSON.", "", model.ErrInvalidInput)
	}
	return nil
}
