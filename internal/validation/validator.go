package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	Validator = validator.New()
)

func ValidateStruct(s interface{}) error {
	return Validator.Struct(s)
}

// Message turns a validation failure into a short client-facing string that
// names the offending fields but never echoes their values.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
