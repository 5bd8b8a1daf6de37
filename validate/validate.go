// Package validate wraps go-playground/validator with the conventions used
// across the service: JSON field names in messages, decimal support, and
// failures reported as validation errors.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"freightmatch/apperr"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			d, ok := field.Interface().(decimal.Decimal)
			if !ok {
				return nil
			}
			f, _ := d.Float64()
			return f
		}, decimal.Decimal{})
		if err := v.RegisterValidation("money", money); err != nil {
			panic(err)
		}
		instance = v
	})
	return instance
}

// money checks that a decimal fits numeric(p,2), where p is the tag param:
// at most two fractional digits and p-2 integer digits.
func money(fl validator.FieldLevel) bool {
	precision, err := strconv.Atoi(fl.Param())
	if err != nil || precision <= 2 {
		return false
	}
	d, ok := originalDecimal(fl)
	if !ok {
		return false
	}
	if !d.Equal(d.Truncate(2)) {
		return false
	}
	limit := decimal.New(1, int32(precision-2))
	return d.Abs().LessThan(limit)
}

// originalDecimal recovers the field's decimal value. The custom type func
// hands validators a float64, which cannot be trusted for scale checks.
func originalDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	parent := reflect.Indirect(fl.Parent())
	if parent.Kind() == reflect.Struct {
		if f := parent.FieldByName(fl.StructFieldName()); f.IsValid() {
			switch v := f.Interface().(type) {
			case decimal.Decimal:
				return v, true
			case *decimal.Decimal:
				if v != nil {
					return *v, true
				}
			}
		}
	}
	if fl.Field().Kind() == reflect.Float64 {
		return decimal.NewFromFloat(fl.Field().Float()), true
	}
	return decimal.Decimal{}, false
}

// Struct validates s and returns an apperr.Validation error listing every
// failing field, or nil.
func Struct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.Validation, "invalid request", err)
	}
	return apperr.New(apperr.Validation, Messages(verrs))
}

// Messages renders validation failures as "'field': reason" pairs.
func Messages(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("'%s': %s", fieldPath(fe), message(fe)))
	}
	return strings.Join(parts, "; ")
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "gt":
		return "should be greater than " + fe.Param()
	case "gte", "min":
		if fe.Kind() == reflect.String {
			return "length should be greater or equal than " + fe.Param()
		}
		return "should be greater or equal than " + fe.Param()
	case "lte", "max":
		if fe.Kind() == reflect.String {
			return "length should be less or equal than " + fe.Param()
		}
		return "should be less or equal than " + fe.Param()
	case "oneof":
		return "should have value in: " + fe.Param()
	case "email":
		return "should be a valid email"
	case "uuid":
		return "should be a valid id"
	case "datetime":
		return "should match the format " + fe.Param()
	case "money":
		if p, err := strconv.Atoi(fe.Param()); err == nil {
			return fmt.Sprintf("should have at most 2 decimal places and %d integer digits", p-2)
		}
	}
	return "incorrect value passed"
}
