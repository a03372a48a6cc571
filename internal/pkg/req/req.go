/*
Package req provides helper functions for HTTP request parsing and data binding.

It encapsulates the logic for decoding JSON bodies and validating them against struct tags,
and maps every failure to an errs.CustomError so handlers can respond uniformly.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
)

// MaxBodySize limits the size of a JSON request body (64 KB).
const MaxBodySize int64 = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindJSON decodes the JSON request body into dst and validates it using its
// `validate` struct tags.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	if err := validate.Struct(dst); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			for _, e := range validateErrs {
				logx.Debug("Request validation failed.", "field", e.Field(), "tag", e.Tag())
			}
		}
		return errs.Wrap(errs.ErrInvalidParams, err)
	}

	return nil
}
