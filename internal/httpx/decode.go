package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20 // 1MB

// NewValidator returns the validator shared by all handlers. Field names in
// errors use the json tag so clients see the names they sent.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSON reads exactly one JSON object from r into dst and validates it.
// On failure the error response is already written and false is returned.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, v *validator.Validate, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		WriteError(w, http.StatusUnsupportedMediaType, ErrorResponse[any]{
			Code:    ErrUnsupportedMedia,
			Message: "Content-Type must be application/json",
		})
		return false
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		logger.Warn("failed to decode request body", zap.String("path", r.URL.Path), zap.Error(err))
		WriteError(w, http.StatusBadRequest, ErrorResponse[any]{
			Code:    ErrInvalidJSON,
			Message: "invalid request body",
		})
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF { // check if there's any trailing data
		logger.Warn("trailing data after JSON body", zap.String("path", r.URL.Path), zap.Error(err))
		WriteError(w, http.StatusBadRequest, ErrorResponse[any]{
			Code:    ErrInvalidJSON,
			Message: "request body must contain a single JSON object",
		})
		return false
	}

	if err := v.Struct(dst); err != nil {
		logger.Warn("request validation failed", zap.String("path", r.URL.Path), zap.Error(err))
		WriteError(w, http.StatusUnprocessableEntity, ErrorResponse[[]FieldError]{
			Code:    ErrValidationFailed,
			Message: "validation failed",
			Details: ValidationDetails(err),
		})
		return false
	}
	return true
}
