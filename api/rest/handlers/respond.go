package handlers

import (
	"net/http"

	"oil-forecaster/api/rest/respond"
	"oil-forecaster/core/apperrors"
)

// writeAppError maps err onto its HTTP status and code
func writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.Code(err)
	respond.Error(w, statusFor(code), code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case "DATASET_NOT_FOUND", "NOT_FOUND", "MODEL_UNAVAILABLE":
		return http.StatusNotFound
	case "DATA_ERROR", respond.CodeBadRequest:
		return http.StatusBadRequest
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case respond.CodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
