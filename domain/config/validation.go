package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates driver configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *DriverConfig) ValidationErrors {
	v.errors = nil

	v.validateDriver(config)
	v.validateLogging(config.Logging)
	v.validateTracing(config.Tracing)
	v.validateWasmTools(config.WasmTools)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateDriver(config *DriverConfig) {
	if strings.ContainsAny(config.Name, `/\ `) {
		v.addError("name", fmt.Sprintf("invalid driver name: %q", config.Name))
	}
	if config.Workers < 0 {
		v.addError("workers", "workers must be non-negative")
	}
}

func (v *Validator) validateLogging(logging LoggingConfig) {
	if logging.Level != "" {
		validLevels := map[string]bool{
			"trace": true, "debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[strings.ToLower(logging.Level)] {
			v.addError("logging.level", fmt.Sprintf("invalid level: %s", logging.Level))
		}
	}
	switch logging.Format {
	case "", "console", "json":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", logging.Format))
	}
}

func (v *Validator) validateTracing(tracing TracingConfig) {
	switch tracing.Exporter {
	case "", "noop", "stdout":
	case "otlp":
		if tracing.Endpoint == "" {
			v.addError("tracing.endpoint", "endpoint is required for otlp exporter")
		}
	default:
		v.addError("tracing.exporter", fmt.Sprintf("unknown exporter: %s", tracing.Exporter))
	}
	if r := tracing.SampleRate; r != nil && (*r < 0 || *r > 1) {
		v.addError("tracing.sample_rate", "sample_rate must be between 0 and 1")
	}
}

func (v *Validator) validateWasmTools(tools []WasmToolConfig) {
	seen := make(map[string]bool, len(tools))
	for i, tool := range tools {
		path := fmt.Sprintf("wasm_tools[%d]", i)
		if tool.Name == "" {
			v.addError(path+".name", "tool name is required")
		} else if seen[strings.ToLower(tool.Name)] {
			v.addError(path+".name", fmt.Sprintf("duplicate tool name: %s", tool.Name))
		}
		seen[strings.ToLower(tool.Name)] = true

		if tool.Path == "" {
			v.addError(path+".path", "path is required for wasm tool")
		}
	}
}
