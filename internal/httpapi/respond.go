package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/buildit-project/buildit/internal/bierr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError collapses any error into its bierr.Category HTTP status, per
// spec §7: non-bierr errors are Internal/500. Every error gets full context
// logged, and its message is returned to the caller as plain text.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := bierr.CategoryOf(err).HTTPStatus()
	if a.Log != nil {
		a.Log.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("category", bierr.CategoryOf(err).String()),
			zap.Error(err),
		)
	}
	http.Error(w, err.Error(), status)
}

func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, r, bierr.Errorf(bierr.InputInvalid, "decoding request body: %w", err))
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		a.writeError(w, r, bierr.Errorf(bierr.InputInvalid, "validating request: %w", err))
		return false
	}
	return true
}
