package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 16

// validate is shared by all handlers; it caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

type setupRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type codeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=32"`
}

type verifyRequest struct {
	Code   string `json:"code" validate:"required,min=6,max=32"`
	Method string `json:"method" validate:"required,oneof=totp sms backup_codes"`
}

// decode reads a JSON body into dst and validates it. The returned error is
// safe to show to the caller.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
