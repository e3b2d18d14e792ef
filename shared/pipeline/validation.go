package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest wraps every error returned by ValidationBehavior.
var ErrInvalidRequest = errors.New("invalid request")

// ValidationBehavior rejects struct requests that fail their `validate` tags
// before any later stage runs.
type ValidationBehavior struct {
	validate *validator.Validate
}

func NewValidationBehavior(validate *validator.Validate) *ValidationBehavior {
	if validate == nil {
		validate = validator.New()
	}
	return &ValidationBehavior{validate: validate}
}

func (b *ValidationBehavior) Handle(ctx context.Context, req any, next Next) (any, error) {
	if !isStruct(req) {
		return next(ctx)
	}
	if err := b.validate.StructCtx(ctx, req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRequest, RequestName(req), verrs)
		}
		return nil, err
	}
	return next(ctx)
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}
