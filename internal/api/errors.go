package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"

	// Robot failures. ErrCodeRobotOffline means the broker session is not
	// authenticated, so the operator should reconnect before retrying.
	ErrCodeRobotOffline = "robot_unauthenticated"
	ErrCodeRobotFailed  = "robot_error"
	ErrCodeRobotTimeout = "robot_timeout"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // connection may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// robotErrorStatus maps robot bridge errors to an HTTP status and code.
func robotErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, robot.ErrNotAuthenticated), errors.Is(err, robot.ErrNotConnected):
		return http.StatusUnauthorized, ErrCodeRobotOffline
	case errors.Is(err, robot.ErrStreamBusy):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, robot.ErrTourStartTimeout),
		errors.Is(err, robot.ErrTimeout),
		errors.Is(err, robot.ErrConnectTimeout):
		return http.StatusGatewayTimeout, ErrCodeRobotTimeout
	default:
		return http.StatusBadGateway, ErrCodeRobotFailed
	}
}

func writeRobotError(w http.ResponseWriter, err error, message string) {
	status, code := robotErrorStatus(err)
	writeError(w, status, code, message+": "+err.Error())
}
