package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/avellano/avellano-bot/internal/broadcast"
	"github.com/avellano/avellano-bot/internal/models"
)

const msgInternalError = "Error interno del servidor"

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error(msgInternalError))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrCancelNoteRequired), errors.Is(err, models.ErrInvalidOrder),
		errors.Is(err, broadcast.ErrInvalidBroadcast), errors.Is(err, broadcast.ErrSchedulingUnavailable):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError answers with the status for err. Internal errors are logged and
// replaced by a generic message.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("Server."+op+" failed", "error", err)
		writeJSONResponse(w, status, models.Error(msgInternalError))
		return
	}
	slog.Debug("Server."+op+" rejected", "status", status, "error", err)
	writeJSONResponse(w, status, models.Error(publicMessage(err)))
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "No encontrado"
	case errors.Is(err, models.ErrConflict):
		return "Ya existe"
	case errors.Is(err, models.ErrCancelNoteRequired):
		return "La nota de cancelación es obligatoria"
	}
	return err.Error()
}

// validationMessage lists the failed fields by their JSON name.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Datos inválidos"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return "Datos inválidos (" + strings.Join(parts, ", ") + ")"
}
