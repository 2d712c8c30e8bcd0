package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/novascore/engine/internal/enginerr"
)

var respondLogger = log.New(log.Writer(), "[API] ", log.LstdFlags)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code              string                `json:"code"`
	Message           string                `json:"message"`
	Fields            []enginerr.FieldError `json:"fields,omitempty"`
	RetryAfterSeconds int                   `json:"retry_after_seconds,omitempty"`
}

// writeJSON renders a success payload.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps an engine error to its transport status. Internal detail
// stays in the logs; the caller sees code and message only.
func writeError(w http.ResponseWriter, err error) {
	engErr, ok := enginerr.AsEngineError(err)
	if !ok {
		respondLogger.Printf("⚠️ unclassified error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code:    "INTERNAL",
			Message: "internal error",
		}})
		return
	}

	status := statusFor(engErr)
	detail := errorDetail{
		Code:    engErr.Code,
		Message: engErr.Message,
		Fields:  engErr.Fields,
	}

	if engErr.Kind == enginerr.KindRateLimited {
		detail.RetryAfterSeconds = engErr.RetryAfterSeconds
		w.Header().Set("Retry-After", strconv.Itoa(engErr.RetryAfterSeconds))
	}
	if engErr.Kind == enginerr.KindInternal {
		respondLogger.Printf("⚠️ internal error: %v", err)
		detail.Message = "internal error"
	}

	writeJSON(w, status, errorBody{Error: detail})
}

func statusFor(e *enginerr.Error) int {
	// Failed OTPs are authentication failures, not malformed input.
	if e.Code == "INVALID_OTP" {
		return http.StatusUnauthorized
	}

	switch e.Kind {
	case enginerr.KindValidation:
		return http.StatusBadRequest
	case enginerr.KindNotFound:
		return http.StatusNotFound
	case enginerr.KindConflict:
		return http.StatusConflict
	case enginerr.KindRateLimited:
		return http.StatusTooManyRequests
	case enginerr.KindUpstream, enginerr.KindTimeout, enginerr.KindDecrypt:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
