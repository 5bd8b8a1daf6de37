package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"freightmatch/apperr"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = apperr.New(apperr.Validation, "invalid request body")

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Authentication:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Retryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.Internal:
		s.log().Error("request failed",
			"event", "request_failed",
			"module", "api",
			"layer", "handler",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	case apperr.Retryable:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, statusFor(kind), errorBody{Error: errorDetail{Kind: kind, Message: apperr.MessageOf(err)}})
}

// decodeJSON reads a single JSON object into dst. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return apperr.Newf(apperr.Validation, "'%s': invalid type", typeErr.Field)
		case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return errInvalidBody
		}
		return apperr.Wrap(apperr.Validation, "invalid request body", err)
	}
	if dec.More() {
		return errInvalidBody
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Newf(apperr.Validation, "'%s': must be an integer", key)
	}
	return n, nil
}
