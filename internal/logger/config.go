package logger

import (
	"io"
	"os"
)

// Config holds logger configuration.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // explicit output, overrides file settings
	ServiceName string    // service name for log tagging
	Environment string    // local, dev, prod

	// File output, used outside the local environment
	File     string
	FileOnly bool

	// Rotation, passed to lumberjack
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns sensible defaults.
// Parameters: none.
// Returns:
//   - *Config: default logger configuration writing JSON to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stdout,
		ServiceName: "reelsense",
		Environment: "local",
		MaxSize:     100,
		MaxBackups:  7,
		MaxAge:      30,
		Compress:    true,
	}
}

// writesToFile reports whether the configuration routes output to a rotated file.
func (c *Config) writesToFile() bool {
	return c.Output == nil && c.Environment != "local" && c.File != ""
}

// writesToStdout reports whether the configuration routes output to stdout.
func (c *Config) writesToStdout() bool {
	if c.Output != nil {
		return false
	}
	return c.Environment == "local" || !c.FileOnly || c.File == ""
}
