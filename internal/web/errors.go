package web

// errors.go maps domain errors to HTTP responses.
//
// Every error is logged with full technical detail and the request id; the
// client gets a short message, a suggested action and a code to quote:
//
//	RPT001 - unknown data provider (404)
//	RPT002 - invalid query parameter (400)
//	RPT003 - report timed out (504)
//	RUN001 - request cancelled or server shutting down (503)
//	LKP001 - taxon or vocabulary tables unavailable (503)
//	CYC001 - a cycle is already running (409)
//	SRV001 - anything else (500)

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/biopipe/internal/pipeline"
	"github.com/JonMunkholm/biopipe/internal/processing"
	"github.com/JonMunkholm/biopipe/internal/scheduler"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errInvalidParam marks a malformed query parameter.
var errInvalidParam = errors.New("invalid query parameter")

func mapError(err error) (ErrorResponse, int) {
	switch {
	case errors.Is(err, pipeline.ErrUnknownProvider):
		return ErrorResponse{Message: "Unknown data provider", Action: "Check the provider identifier in the catalog", Code: "RPT001"}, http.StatusNotFound
	case errors.Is(err, errInvalidParam):
		return ErrorResponse{Message: "Invalid query parameter", Action: "Use non-negative integers for max, valid and invalid", Code: "RPT002"}, http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse{Message: "Report timed out", Action: "Lower max to read fewer observations", Code: "RPT003"}, http.StatusGatewayTimeout
	case errors.Is(err, processing.ErrLookupUnavailable):
		return ErrorResponse{Message: "Lookup tables unavailable", Action: "Please try again in a few moments", Code: "LKP001"}, http.StatusServiceUnavailable
	case processing.IsAborted(err):
		return ErrorResponse{Message: "Request cancelled", Action: "Please try again", Code: "RUN001"}, http.StatusServiceUnavailable
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return ErrorResponse{Message: "A cycle is already running", Action: "Wait for it to finish, see /status", Code: "CYC001"}, http.StatusConflict
	default:
		return ErrorResponse{Message: "Internal error", Action: "Check the server logs", Code: "SRV001"}, http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped JSON error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp, status := mapError(err)
	resp.Error = resp.Message

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", resp.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, status, resp)
}
