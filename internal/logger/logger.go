package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level and output format of the process logger.
type Options struct {
	Level       string
	Production  bool
	Service     string
	Environment string
}

// New builds the process logger and installs it as the zap global.
func New(opts Options) (*zap.Logger, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

// buildConfig returns sampled JSON for production and unsampled console
// output everywhere else.
func buildConfig(opts Options) (zap.Config, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if raw := strings.ToLower(strings.TrimSpace(opts.Level)); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return zap.Config{}, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var cfg zap.Config
	if opts.Production {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.Sampling = nil
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	fields := map[string]any{}
	if opts.Service != "" {
		fields["service"] = opts.Service
	}
	if opts.Environment != "" {
		fields["env"] = opts.Environment
	}
	if len(fields) > 0 {
		cfg.InitialFields = fields
	}
	return cfg, nil
}
