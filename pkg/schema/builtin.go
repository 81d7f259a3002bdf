package schema

// Log levels accepted by logging.level, in declaration order.
var LogLevels = []string{"debug", "info", "warn", "error"}

var defaultSchema = Section("", "", "configdesk configuration",
	Section("server", "Server configuration block",
		"Configure the web server settings including host, port, and SSL",
		Scalar("host", TypeString, "string - Hostname or IP address",
			"The hostname or IP address to bind to"),
		Scalar("port", TypeInteger, "integer - Port number",
			"The port number (1-65535)"),
		Scalar("use_ssl", TypeBoolean, "boolean - Enable SSL",
			"Whether to enable SSL/TLS encryption"),
	),
	Section("logging", "Logging configuration block",
		"Configure logging settings including level and output file",
		Enum("level", LogLevels, "enum - Log level",
			"Log level: debug, info, warn, error"),
		Scalar("file", TypeString, "string - Log file path",
			"Path to the log output file"),
	),
)

// Default returns the built-in configuration schema:
//
//	server:  host (string), port (integer), use_ssl (boolean)
//	logging: level (enum), file (string)
func Default() *Node {
	return defaultSchema
}
