// Package logging builds the hclog loggers used across boxmux.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Config is used to set up logging.
type Config struct {
	// LogLevel is the minimum level to be logged.
	LogLevel string

	// LogJSON controls outputing logs in a JSON format.
	LogJSON bool

	// Name is the name the returned logger will use to prefix log lines.
	Name string
}

var allowedLogLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERR", "ERROR"}

// ValidateLogLevel verifies that a log level is valid.
func ValidateLogLevel(level string) bool {
	level = strings.ToUpper(level)
	for _, allowed := range allowedLogLevels {
		if allowed == level {
			return true
		}
	}
	return false
}

// LevelFromString accepts ERR as an alias of ERROR.
func LevelFromString(level string) hclog.Level {
	if strings.ToUpper(level) == "ERR" {
		level = "ERROR"
	}
	return hclog.LevelFromString(level)
}

// Setup returns a logger writing to out, or stderr when out is nil.
func Setup(config Config, out io.Writer) (hclog.InterceptLogger, error) {
	if !ValidateLogLevel(config.LogLevel) {
		return nil, fmt.Errorf("Invalid log level: %s. Valid log levels are: %v",
			config.LogLevel, allowedLogLevels)
	}
	if out == nil {
		out = os.Stderr
	}
	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Level:      LevelFromString(config.LogLevel),
		Name:       config.Name,
		Output:     out,
		JSONFormat: config.LogJSON,
	}), nil
}
