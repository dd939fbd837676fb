// Package config provides the configuration model of the multi-call driver.
package config

// DriverConfig is the complete driver configuration.
type DriverConfig struct {
	// Name overrides the generic driver name used for "<name> <tool>"
	// invocations.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// InProcess permits commands to run embedded tools in-process.
	// Nil means the default, true.
	InProcess *bool `json:"in_process,omitempty" yaml:"in_process,omitempty"`

	// GenDiagnostics forces every command into its own process so a
	// failing one can be re-run for a crash report.
	GenDiagnostics bool `json:"gen_diagnostics,omitempty" yaml:"gen_diagnostics,omitempty"`

	// Workers sizes the shared worker pool. Zero selects one worker per CPU.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Logging configures log output.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`

	// Tracing configures span export.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`

	// WasmTools registers WebAssembly modules as additional tools.
	WasmTools []WasmToolConfig `json:"wasm_tools,omitempty" yaml:"wasm_tools,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum level (trace, debug, info, warn, error).
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is console or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter is stdout, otlp or empty for none.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	// Endpoint is the OTLP endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Insecure disables TLS for OTLP.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	// SampleRate is the sampling rate between 0 and 1.
	SampleRate *float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// WasmToolConfig registers one WebAssembly tool.
type WasmToolConfig struct {
	// Name is the tool name matched against the invocation name.
	Name string `json:"name" yaml:"name"`
	// Path is the location of the .wasm module.
	Path string `json:"path" yaml:"path"`
	// Description is shown in help output.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *DriverConfig {
	return &DriverConfig{
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// InProcessEnabled reports whether in-process commands are permitted.
func (c *DriverConfig) InProcessEnabled() bool {
	return c.InProcess == nil || *c.InProcess
}

// ApplyDefaults fills unset fields from Default.
func (c *DriverConfig) ApplyDefaults() {
	d := Default()
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}
