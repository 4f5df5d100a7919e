package scroll

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultThreshold is the distance in pixels from the bottom of the content
// at which the next page is requested.
const DefaultThreshold = 150

// Config is fixed for the lifetime of an Engine.
type Config struct {
	// ItemSelector selects content items within a fetched page.
	ItemSelector string `mapstructure:"item_selector" yaml:"item_selector" json:"item_selector" validate:"required"`

	// NextSelector selects the pagination link; its href is the next page.
	NextSelector string `mapstructure:"next_selector" yaml:"next_selector" json:"next_selector" validate:"required"`

	Threshold     float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold" validate:"gte=0"`
	AutoLoad      bool    `mapstructure:"auto_load" yaml:"auto_load" json:"auto_load"`
	WaitForImages bool    `mapstructure:"wait_for_images" yaml:"wait_for_images" json:"wait_for_images"`

	// BaseURL resolves relative links in the initial document. Defaults to
	// the document's own URL when it has one.
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty" validate:"omitempty,url"`
}

// DefaultConfig returns a config with auto-loading on and the default
// threshold. Selectors must still be set.
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		AutoLoad:  true,
	}
}

// FieldError describes one invalid config field.
type FieldError struct {
	Field   string
	Message string
}

// ConfigError reports an unusable configuration.
type ConfigError struct {
	Fields []FieldError
}

func (e *ConfigError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return "invalid scroll config: " + strings.Join(parts, "; ")
}

var validate = validator.New()

// Validate checks the config, returning a *ConfigError when it is unusable.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validating config: %w", err)
	}

	cerr := &ConfigError{}
	for _, e := range verrs {
		cerr.Fields = append(cerr.Fields, FieldError{
			Field:   e.Field(),
			Message: formatValidationError(e),
		})
	}
	return cerr
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
