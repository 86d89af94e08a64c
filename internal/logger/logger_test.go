package logger

import (
	"testing"

	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewParsesLevel(t *testing.T) {
	log, err := New(Options{Level: "DEBUG"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(Options{})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestBuildConfigByEnvironment(t *testing.T) {
	prod, err := buildConfig(Options{Level: "warn", Production: true, Service: "freightpay", Environment: "production"})
	require.NoError(t, err)
	assert.Equal(t, "json", prod.Encoding)
	assert.NotNil(t, prod.Sampling)
	assert.Equal(t, zapcore.WarnLevel, prod.Level.Level())
	assert.Equal(t, map[string]any{"service": "freightpay", "env": "production"}, prod.InitialFields)

	dev, err := buildConfig(Options{Environment: "development"})
	require.NoError(t, err)
	assert.Equal(t, "console", dev.Encoding)
	assert.Nil(t, dev.Sampling)
	assert.False(t, dev.Development)
	assert.Equal(t, map[string]any{"env": "development"}, dev.InitialFields)
}

func TestNewFromConfig(t *testing.T) {
	log, err := NewFromConfig(config.Config{AppName: "freightpay", Environment: "production", LogLevel: "error"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, log.Core().Enabled(zapcore.ErrorLevel))
}
