package validation

import (
	"fmt"

	"github.com/shopspring/decimal"

	errors "github.com/eventtix/multisafepay-provider/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]FieldValidator, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		switch v := value.(type) {
		case string:
			if v == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case int64:
			if v == 0 {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case decimal.Decimal:
			if v.IsZero() {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case *string:
			if v == nil || *v == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return fv
}

// OneOf restricts a string field to an enumerated value set.
func (fv *FieldValidator) OneOf(allowed ...string) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok || v == "" {
			return nil
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s must be one of %v", fv.FieldName, allowed), errors.ErrCodeValidationFailed)
	})
	return fv
}

// Positive requires a decimal amount to be strictly greater than zero.
func (fv *FieldValidator) Positive() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(decimal.Decimal); ok {
			if v.Sign() <= 0 {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s must be positive", fv.FieldName), errors.ErrCodeInvalidAmount)
			}
		}
		return nil
	})
	return fv
}

// MaxDecimal caps a decimal amount, e.g. a refund at the captured amount.
func (fv *FieldValidator) MaxDecimal(max decimal.Decimal, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(decimal.Decimal); ok {
			if v.GreaterThan(max) {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s must not exceed %s", fv.FieldName, max.String()), code)
			}
		}
		return nil
	})
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var collected []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			if err := validator(field.Value); err != nil {
				if details, ok := err.Details.(errors.ValidationErrors); ok {
					collected = append(collected, details.Errors...)
				} else {
					collected = append(collected, errors.ValidationError{
						Field:   field.FieldName,
						Message: err.Message,
						Code:    string(err.Code),
					})
				}
			}
		}
	}

	if len(collected) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: collected})
	}
	return nil
}
