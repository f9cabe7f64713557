package config

import "dossier/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`   // empty = stderr
}

// ToLogging converts to the logging package's config.
func (l LoggingConfig) ToLogging() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format, File: l.File}
}
