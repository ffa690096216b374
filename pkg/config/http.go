package config

// HTTPConfig tunes the HTTP API surface: listen port and the origins
// allowed to make cross-origin requests (e.g. a browser-based SSE
// client).
type HTTPConfig struct {
	Port         int      `yaml:"port" validate:"required,min=1,max=65535"`
	CORSOrigins  []string `yaml:"cors_origins,omitempty"`
	ReadTimeoutS int      `yaml:"read_timeout_seconds,omitempty"`
}

// DefaultHTTPConfig returns the built-in HTTP defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Port:         8080,
		CORSOrigins:  []string{"*"},
		ReadTimeoutS: 30,
	}
}
