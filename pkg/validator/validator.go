// Package validator installs the service's custom binding tags on gin's
// validator/v10 engine.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/medihub/access-api/internal/service/passkey"
)

// TagPasskey checks a submitted access code after trimming and uppercasing.
const TagPasskey = "passkey"

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required": "field is required",
	"email":    "invalid email format",
	TagPasskey: fmt.Sprintf("access code must be %d letters or digits", passkey.Length),
}

// Register installs custom tags on gin's default engine. Call once at startup.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return RegisterOn(v)
}

// RegisterOn installs custom tags on v and reports fields by their json name.
func RegisterOn(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v.RegisterValidation(TagPasskey, validatePasskey)
}

func validatePasskey(fl validator.FieldLevel) bool {
	return passkey.ValidFormat(passkey.Normalize(fl.Field().String()))
}

// Errors flattens err into per-field errors. It returns nil when err is not
// a validation failure.
func Errors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, e := range verrs {
		msg := messages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		out = append(out, ValidationError{Field: e.Field(), Tag: e.Tag(), Message: msg})
	}
	return out
}

// HasField reports whether any validation error in err concerns field.
func HasField(err error, field string) bool {
	for _, e := range Errors(err) {
		if e.Field == field {
			return true
		}
	}
	return false
}
