package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tbc/persons/shared/utils"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. It knows the "personalnumber" tag
// and reports fields by their json, then form, name.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(wireName)
		_ = validate.RegisterValidation("personalnumber", func(fl validator.FieldLevel) bool {
			return utils.ValidatePersonalNumber(fl.Field().String())
		})
	})
	return validate
}

func wireName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type BadRequestErrorResponse struct {
	Message string            `json:"message"`
	Details []ValidationError `json:"details"`
}

func ValidateRequest(obj any) []ValidationError {
	return ValidationErrors(Validator().Struct(obj))
}

// ValidationErrors converts a validator error into response details. It
// returns nil when err carries no field errors.
func ValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}

	var validationErrors []ValidationError
	for _, err := range fieldErrs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: getErrorMsg(err),
			Type:    err.Tag(),
		})
	}
	return validationErrors
}

// fieldMessages holds the detail message per validation tag; %s is the
// tag parameter.
var fieldMessages = map[string]string{
	"required":       "This field is required",
	"min":            "Must be at least %s characters",
	"max":            "Must be at most %s characters",
	"gt":             "Value must be greater than %s",
	"gte":            "Value must be greater than or equal to %s",
	"lte":            "Value must be less than or equal to %s",
	"oneof":          "Value must be one of: %s",
	"datetime":       "Date must use the %s layout",
	"personalnumber": "Personal number must be 11 digits",
}

func getErrorMsg(err validator.FieldError) string {
	msg, ok := fieldMessages[err.Tag()]
	if !ok {
		return "Invalid value"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, err.Param())
	}
	return msg
}

func RespondWithValidationError(c *gin.Context, validationErrors []ValidationError) {
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"message": message,
	})
}
