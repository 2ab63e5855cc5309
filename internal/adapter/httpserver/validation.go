package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/breadworks/bakeops/internal/domain"
)

// maxBodyBytes bounds request bodies; the API carries small JSON commands.
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON parses and validates a request body into dst. Validation
// failures surface per-field details in the error envelope.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "request body is required")
		}
		return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "malformed JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				details[strings.ToLower(fe.Field())] = fe.Tag()
			}
			return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "validation failed").
				WithDetails(details)
		}
		return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "validation failed")
	}
	return nil
}
