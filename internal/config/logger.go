package config

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// CreateLogger builds the process logger. debug forces development output
// regardless of the file setting.
func (c *Config) CreateLogger(debug bool) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error
	if debug || c.Logger.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	return logger, errors.Wrap(err, "create logger")
}
