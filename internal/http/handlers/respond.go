package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sjc1990app/server/internal/apperr"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies; every JSON payload here is small
const maxBodyBytes = 64 << 10

// errorResponse is the body of every failed request
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errMissingBody = apperr.BadRequest("Request body is required")

// messageResponse is the body of requests that only acknowledge
type messageResponse struct {
	Message string `json:"message"`
}

// respondJSON writes v with the given status
func respondJSON(w http.ResponseWriter, log *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}

// respondWithError maps err to the error taxonomy. Unclassified errors are
// logged and answered with a generic message.
func respondWithError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	}
	status, code := kind.Status()
	respondJSON(w, log, status, errorResponse{Error: code, Message: apperr.PublicMessage(err)})
}

// decodeJSON reads a JSON body into v. A missing body is a BadRequest.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errMissingBody
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return errMissingBody
	}
	if err != nil {
		return apperr.BadRequest("Invalid JSON in request body")
	}
	return nil
}
