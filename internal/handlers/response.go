package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/apperr"
	"github.com/ukydev/carlink/internal/middleware"
	"github.com/ukydev/carlink/internal/models"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// envelope is the JSON body of every response.
type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	if _, ok := body["success"]; !ok {
		body["success"] = status < http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"message": msg})
}

// writeError renders domain errors with their own status and message.
// Anything else is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger log.FieldLogger, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeMessage(w, appErr.HTTPStatus(), appErr.Message)
		return
	}
	logger.WithError(err).WithFields(log.Fields{
		"request_id": middleware.RequestID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).Error("Request failed")
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}

// decodeJSON reads a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Validation("Failed to read request body").Wrap(err)
	}
	if len(body) == 0 {
		return apperr.Validation("Request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation("Invalid JSON").Wrap(err)
	}
	return nil
}

// currentUser returns the authenticated caller or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.Claims, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok || claims.UserID == "" {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return claims, true
}

func pathParam(r *http.Request, name string) string {
	return r.URL.Query().Get(":" + name)
}

func invalidParam(name, kind string) error {
	return apperr.Validation(fmt.Sprintf("%s must be %s", name, kind))
}
