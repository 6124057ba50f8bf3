package main

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"caseflow/apperr"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindConfigurationMissing:
		return http.StatusUnprocessableEntity
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(kind apperr.Kind) string {
	switch kind {
	case apperr.KindNotFound:
		return "NOT_FOUND"
	case apperr.KindUnauthenticated:
		return "UNAUTHENTICATED"
	case apperr.KindConfigurationMissing:
		return "CONFIGURATION_MISSING"
	case apperr.KindValidation:
		return "VALIDATION"
	case apperr.KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// writeError maps err to the JSON envelope. Internal errors are logged and
// replaced with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	msg := apperr.MessageOf(err)
	if kind == apperr.KindInternal {
		s.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		msg = "something went wrong, try again"
	}
	writeJSON(w, statusFor(kind), errorResponse{Code: codeFor(kind), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
