package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

var validate = validator.New()

// Validate checks cfg's struct tags and returns a ConfigError describing
// every violation, not just the first — startup should report everything
// wrong with the configuration in one pass.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return oceanerrors.NewConfigError(err)
		}
		return oceanerrors.NewConfigError(fmt.Errorf("invalid configuration: %s", formatValidationErrors(verrs)))
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
	}
	return msg
}
