package logger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// Config contains logging configuration.
type Config struct {
	// Level is any zerolog level name; "debug" when the service runs in debug mode.
	Level string `yaml:"level" mapstructure:"level"`
	// Format is json, console or pretty.
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json console pretty"`
	// Output is stdout or stderr.
	Output    string `yaml:"output" mapstructure:"output" validate:"omitempty,oneof=stdout stderr"`
	NoColor   bool   `yaml:"no_color" mapstructure:"no_color"`
	Timestamp bool   `yaml:"timestamp" mapstructure:"timestamp"`
	Caller    bool   `yaml:"caller" mapstructure:"caller"`
}

var (
	formats = []string{FormatJSON, FormatConsole, FormatPretty}
	outputs = []string{"stdout", "stderr"}
)

// ApplyDefaults applies default values to logging configuration.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = zerolog.InfoLevel.String()
	}
	if c.Format == "" {
		c.Format = FormatConsole
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	c.Timestamp = true
}

// Validate validates logging configuration.
func (c *Config) Validate() error {
	if lvl, err := zerolog.ParseLevel(c.Level); err != nil || lvl == zerolog.NoLevel || lvl > zerolog.ErrorLevel {
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error (got: %s)", c.Level)
	}
	if !slices.Contains(formats, strings.ToLower(c.Format)) {
		return fmt.Errorf("logging.format must be one of %v (got: %s)", formats, c.Format)
	}
	if c.Output != "" && !slices.Contains(outputs, strings.ToLower(c.Output)) {
		return fmt.Errorf("logging.output must be one of %v (got: %s)", outputs, c.Output)
	}
	return nil
}
