package config

// Config is the structured form of a configdesk document. Field order
// matches the schema's declaration order.
type Config struct {
	// Server holds the web server settings.
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging holds the log output settings.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig configures the web server.
type ServerConfig struct {
	// Host is the hostname or IP address to bind to.
	Host string `yaml:"host" json:"host" validate:"required"`

	// Port is the TCP port (1-65535).
	Port int `yaml:"port" json:"port" validate:"min=1,max=65535"`

	// UseSSL enables TLS.
	UseSSL bool `yaml:"use_ssl" json:"use_ssl"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level" validate:"required,oneof=debug info warn error"`

	// File is the path of the log output file.
	File string `yaml:"file" json:"file" validate:"required"`
}

// DefaultConfig returns the configuration written on first load.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:   "127.0.0.1",
			Port:   3000,
			UseSSL: true,
		},
		Logging: LoggingConfig{
			Level: "debug",
			File:  "./debug.log",
		},
	}
}
