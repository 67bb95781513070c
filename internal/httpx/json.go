package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the body of every JSON response: exactly one of Data or
// Error is set.
type Envelope[D any, E any] struct {
	Data  D      `json:"data,omitempty"`
	Time  string `json:"time"`
	Error E      `json:"error,omitempty"`
}

type responseEnvelope = Envelope[any, any]

func WriteJSON(w http.ResponseWriter, status int, v any) {
	writeEnvelope(w, status, responseEnvelope{Data: v})
}

func WriteError[T any](w http.ResponseWriter, status int, errBody ErrorResponse[T]) {
	writeEnvelope(w, status, responseEnvelope{Error: errBody})
}

// WriteMessage is for successful calls that have nothing to return.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"message": message})
}

func writeEnvelope(w http.ResponseWriter, status int, env responseEnvelope) {
	env.Time = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
