package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidConfig = errors.New("invalid config")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// Validate checks the `validate` tags of cfg, a struct or pointer to one,
// and reports every failing field in a single ErrInvalidConfig.
func Validate(cfg any) error {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}

		msgs = append(msgs, msg)
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
