package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func query() (string, int64) { return "SELECT 1", 1 }

func TestLogger_Trace(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		begin time.Time
		err   error
		want  string
	}{
		{name: "failure", begin: time.Now(), err: errors.New("connection reset"), want: "level=ERROR"},
		{name: "missing row", begin: time.Now(), err: gorm.ErrRecordNotFound, want: "level=DEBUG"},
		{name: "slow", begin: time.Now().Add(-time.Second), want: "level=WARN"},
		{name: "fast", begin: time.Now(), want: "level=DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newTestLogger(&buf).Trace(ctx, tt.begin, query, tt.err)
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "SELECT 1")
		})
	}
}

func TestLogger_LogModeSilent(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf).LogMode(gormlogger.Silent)
	l.Trace(context.Background(), time.Now(), query, errors.New("boom"))
	l.Error(context.Background(), "boom %d", 1)
	assert.Empty(t, buf.String())
}
