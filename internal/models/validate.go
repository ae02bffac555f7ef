package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the listing enums registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		mustRegister(v, "transmission", func(fl validator.FieldLevel) bool {
			return Transmission(fl.Field().String()).Valid()
		})
		mustRegister(v, "fueltype", func(fl validator.FieldLevel) bool {
			return FuelType(fl.Field().String()).Valid()
		})
		mustRegister(v, "condition", func(fl validator.FieldLevel) bool {
			return Condition(fl.Field().String()).Valid()
		})
		mustRegister(v, "modelyear", func(fl validator.FieldLevel) bool {
			y := fl.Field().Int()
			return y >= MinModelYear && y <= int64(time.Now().Year()+1)
		})
		validate = v
	})
	return validate
}

// MinModelYear is the oldest model year accepted for a listing.
const MinModelYear = 1900

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

// Validate checks s against its struct tags and flattens failures into
// one human readable error.
func Validate(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "transmission":
		return fe.Field() + " must be one of Automatic, Manual, CVT"
	case "fueltype":
		return fe.Field() + " must be one of Petrol, Diesel, Electric, Hybrid, CNG"
	case "condition":
		return fe.Field() + " must be one of New, Used, Certified Pre-Owned"
	case "modelyear":
		return fmt.Sprintf("%s must be between %d and %d", fe.Field(), MinModelYear, time.Now().Year()+1)
	case "gte":
		return fe.Field() + " must not be negative"
	case "min":
		return fe.Field() + " must not be empty"
	default:
		return fe.Field() + " is invalid"
	}
}
