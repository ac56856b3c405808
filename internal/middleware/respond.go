package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
)

// WriteError writes a ServiceError as the JSON response body.
func WriteError(w http.ResponseWriter, err *apperrors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err,
	})
}
