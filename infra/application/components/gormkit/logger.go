package gormkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
)

// gormLogger 把 gorm 日志转发到 logging 组件；debug 级别会输出每条 SQL。
type gormLogger struct {
	level         logger.LogLevel
	debug         bool
	slowThreshold time.Duration
}

func NewLogger(level string, slow time.Duration) logger.Interface {
	l := &gormLogger{level: logger.Warn, slowThreshold: 200 * time.Millisecond}
	switch strings.ToLower(level) {
	case "silent":
		l.level = logger.Silent
	case "error":
		l.level = logger.Error
	case "info":
		l.level = logger.Info
	case "debug":
		l.level, l.debug = logger.Info, true
	}
	if slow > 0 {
		l.slowThreshold = slow
	}
	return l
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	nl := *l
	nl.level = level
	return &nl
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		logging.Infof(ctx, "[gorm] "+msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		logging.Warnf(ctx, "[gorm] "+msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		logging.Errorf(ctx, "[gorm] "+msg, data...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		logging.Error(ctx, "gorm_query_error", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql), zap.Error(err))
	case elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		logging.Warn(ctx, "gorm_slow_query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.debug:
		sql, rows := fc()
		logging.Debug(ctx, "gorm_query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}
