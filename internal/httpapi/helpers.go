package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"relive.org/internal/auth"
	"relive.org/internal/relief"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads a single JSON document from the body. The size cap is
// applied upstream by the MaxBodyBytes middleware.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeValid decodes the body and runs struct-tag validation on it.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return errors.New("invalid or missing fields: " + strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// handleReliefError maps domain errors onto the HTTP taxonomy. Ownership and
// existence failures both surface as 404 so a caller cannot probe for rows
// it does not own.
func handleReliefError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, relief.ErrNotFound), errors.Is(err, relief.ErrProfileNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, relief.ErrInvalidQuantity),
		errors.Is(err, relief.ErrUnitMismatch),
		errors.Is(err, relief.ErrAlreadyFulfilled),
		errors.Is(err, relief.ErrNotPending),
		errors.Is(err, relief.ErrNotOpen),
		errors.Is(err, relief.ErrAlreadyFull),
		errors.Is(err, relief.ErrAlreadyApplied):
		writeError(w, r, http.StatusBadRequest, userFacing(err))
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, userFacing(err))
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// userFacing strips the package prefix off sentinel error text.
func userFacing(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
