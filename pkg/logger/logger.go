// Package logger builds zap loggers from configuration.
package logger

import (
	"fmt"

	"github.com/alecthomas/units"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Path string `yaml:"path"`
	// If Path is a file, Mode determines how the log file is managed.
	Mode FileMode `yaml:"mode,omitempty"`
	// MaxSize is the size past which a rotated log file is rotated,
	// as "10MB" or "1GiB".
	MaxSize string        `yaml:"max_size,omitempty"`
	Level   zapcore.Level `yaml:"level"`
	// Development makes DPanic panic.
	Development bool `yaml:"development"`
}

func NewCore(conf Config) (zapcore.Core, error) {
	var maxSize units.Base2Bytes
	if conf.MaxSize != "" {
		n, err := units.ParseStrictBytes(conf.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("log max_size: %w", err)
		}
		maxSize = units.Base2Bytes(n)
	}
	w, err := OpenFile(conf.Path, conf.Mode, maxSize)
	if err != nil {
		return nil, err
	}
	return zapcore.NewCore(jsonEncoder(), w, conf.Level), nil
}

func New(conf Config) (*zap.Logger, error) {
	core, err := NewCore(conf)
	if err != nil {
		return nil, err
	}
	var opts []zap.Option
	if conf.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}

func jsonEncoder() zapcore.Encoder {
	conf := zap.NewProductionEncoderConfig()
	conf.CallerKey = ""
	return zapcore.NewJSONEncoder(conf)
}
