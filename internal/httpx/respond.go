package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/infoanil/toy-rental-service/internal/rental"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy onto HTTP. Operators must be
// able to tell "not found" from "wrong state" from "no inventory".
func writeError(w http.ResponseWriter, err error) {
	var ve *rental.ValidationError
	var pe *rental.PreconditionError
	var ne *rental.NoUnitError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ve.Error()})
	case errors.Is(err, rental.ErrOrderNotFound),
		errors.Is(err, rental.ErrPlanNotFound),
		errors.Is(err, rental.ErrUnitNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &pe), errors.As(err, &ne),
		errors.Is(err, rental.ErrLockTimeout),
		errors.Is(err, rental.ErrUnitHasBookings):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"retryable": rental.Retryable(err),
		})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
