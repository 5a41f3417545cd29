package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by domain layers.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors onto the error envelope. Anything not in
// the taxonomy is reported as a server error without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, ErrDuplicate):
		Error(w, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	default:
		Error(w, http.StatusInternalServerError, CodeServerError, "internal error")
	}
}
