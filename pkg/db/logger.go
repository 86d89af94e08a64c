package db

import (
	"context"
	"errors"
	"strings"
	"time"

	obslogger "github.com/smallbiznis/freightpay/internal/observability/logger"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// zapLogger adapts gorm logging onto zap. Bound parameters are never logged.
type zapLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newZapLogger(log *zap.Logger, level gormlogger.LogLevel, slow time.Duration) gormlogger.Interface {
	return &zapLogger{log: log.Named("gorm"), level: level, slowThreshold: slow}
}

func (l *zapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *zapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		obslogger.WithContext(ctx, l.log).Sugar().Infof(msg, data...)
	}
}

func (l *zapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		obslogger.WithContext(ctx, l.log).Sugar().Warnf(msg, data...)
	}
}

func (l *zapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		obslogger.WithContext(ctx, l.log).Sugar().Errorf(msg, data...)
	}
}

func (l *zapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("rows_affected", rows),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	log := obslogger.WithContext(ctx, l.log)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		log.Error("gorm.query", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		log.Warn("gorm.slow_query", fields...)
	case l.level >= gormlogger.Info:
		log.Debug("gorm.query", fields...)
	}
}

func (l *zapLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}
