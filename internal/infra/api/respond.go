package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
)

const maxBody = 64 << 10

type errorBody struct {
	Error         string `json:"error"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, logger *zerolog.Logger) {
	writeErrorBody(w, r, err, errorBody{}, logger)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, err error, body errorBody, logger *zerolog.Logger) {
	status := statusOf(err)
	if status >= 500 && status != http.StatusGatewayTimeout {
		logging.With(r.Context(), logger).Error().Err(err).Msg("request failed")
	}
	body.Error = domain.Message(err)
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. Bodies are optional only when empty is
// true; malformed JSON is always a validation error.
func decode(r *http.Request, v any, empty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && empty {
			return nil
		}
		return domain.Validationf("invalid request body")
	}
	return nil
}

// pageParams reads offset/limit query parameters.
func pageParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, domain.Validationf("offset must be a non-negative integer")
		}
	}
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return 0, 0, domain.Validationf("limit must be a non-negative integer")
		}
	}
	return offset, limit, nil
}
