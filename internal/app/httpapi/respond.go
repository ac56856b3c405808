package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
)

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps an error onto the response. ServiceErrors keep their code
// and status; anything else becomes a 500 with an opaque body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr, ok := apperrors.AsServiceError(err)
	if !ok {
		s.log.WithError(err).
			WithField("path", r.URL.Path).
			WithField("method", r.Method).
			Error("unhandled error")
		svcErr = apperrors.Internal("internal server error")
	} else if svcErr.HTTPStatus >= 500 {
		s.log.WithError(err).WithField("path", r.URL.Path).Warn("request failed upstream")
	}
	writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{"error": svcErr})
}

// readJSON decodes the request body, rejecting oversized payloads.
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("invalid request body").WithCause(err)
	}
	return nil
}

// setCacheControl mirrors an internal TTL into CDN/browser cache headers.
func setCacheControl(w http.ResponseWriter, maxAge, staleIfError time.Duration) {
	value := fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
		int(maxAge.Seconds()), int(maxAge.Seconds()))
	if staleIfError > 0 {
		value += fmt.Sprintf(", stale-if-error=%d", int(staleIfError.Seconds()))
	}
	w.Header().Set("Cache-Control", value)
}
