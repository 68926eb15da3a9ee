// Package validator wraps go-playground/validator with the custom tags used by
// holding and alert inputs.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "signalist/internal/errors"
)

// maxTickerLen bounds symbols; providers use suffixes and class markers such
// as BRK/B, BRK.B, ^GSPC or EURUSD=X, so the content is otherwise free.
const maxTickerLen = 32

var (
	validate *validator.Validate
	once     sync.Once
)

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("ticker", validateTicker)
		_ = validate.RegisterValidation("alert_type", validateAlertType)
	})
	return validate
}

// Struct validates v and converts the first failing field into an
// ErrInvalidInput carrying a readable message.
func Struct(v any) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}
	fe := verrs[0]
	return apperrors.WithMessage(apperrors.ErrInvalidInput, message(fe))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "ticker":
		return fmt.Sprintf("%s must be a ticker symbol", field)
	case "alert_type":
		return fmt.Sprintf("%s must be above or below", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

func validateTicker(fl validator.FieldLevel) bool {
	symbol := strings.TrimSpace(fl.Field().String())
	if symbol == "" || utf8.RuneCountInString(symbol) > maxTickerLen {
		return false
	}
	return strings.IndexFunc(symbol, unicode.IsControl) < 0
}

func validateAlertType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "above", "below":
		return true
	}
	return false
}
