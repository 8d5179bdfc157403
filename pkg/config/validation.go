package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the configuration using struct tags plus the rules that
// cannot be expressed declaratively.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Store.Type == "badger" {
		dir, _ := cfg.Store.Badger["dir"].(string)
		if dir == "" {
			return fmt.Errorf("store.badger: dir is required when store.type is badger")
		}
	}

	if cfg.Server.RateBurst > 0 && cfg.Server.RateLimit == 0 {
		return fmt.Errorf("server: rate_burst is set but rate_limit is 0")
	}

	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
