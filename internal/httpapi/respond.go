package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"github.com/DoyleJ11/hangman-backend/pkg/types"
)

var errBadBody = errors.New("malformed request body")

func Status(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidTarget:
		return http.StatusBadRequest
	case apperr.CodeDuplicateInvite, apperr.CodeInvalidState:
		return http.StatusConflict
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeUnauthorized:
		return http.StatusForbidden
	case apperr.CodeInvalidWord, apperr.CodeInvalidLetter:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(code apperr.Code, msg string) types.ErrorResponse {
	return types.ErrorResponse{Code: string(code), Error: msg}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadBody) {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", err.Error()))
		return
	}
	code := apperr.CodeOf(err)
	msg := err.Error()
	if code == apperr.CodeInternal {
		msg = "internal error"
	}
	writeJSON(w, Status(code), errorBody(code, msg))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadBody
	}
	return nil
}
