package relay

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ipfs/go-cid"

	"karmastakes.app/stakes/internal/types"
)

// ErrInvalidPayload wraps every payload validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		return types.Address(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("cid", func(fl validator.FieldLevel) bool {
		_, err := cid.Decode(fl.Field().String())
		return err == nil
	})
	return v
}

func (g *Gateway) validatePayload(payload any) error {
	err := g.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "address":
		return fmt.Sprintf("%s must be a %d character hex address", field, types.AddressLength)
	case "cid":
		return fmt.Sprintf("%s must be a content identifier", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
