package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
)

func newBufferedQueryLogger(buf *bytes.Buffer, slow time.Duration) gormlogger.Interface {
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: logger.ParseLevel("debug"), Output: buf})
	return newQueryLogger(logg, slow)
}

func TestQueryLoggerReportsSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	ql := newBufferedQueryLogger(buf, 10*time.Millisecond)

	ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM quotes", 3
	}, nil)

	out := buf.String()
	if !strings.Contains(out, "db.query.slow") || !strings.Contains(out, "SELECT * FROM quotes") {
		t.Fatalf("expected slow query entry; got %s", out)
	}
}

func TestQueryLoggerIgnoresFastAndNotFound(t *testing.T) {
	buf := &bytes.Buffer{}
	ql := newBufferedQueryLogger(buf, time.Hour)

	sql := func() (string, int64) { return "SELECT 1", 1 }
	ql.Trace(context.Background(), time.Now(), sql, nil)
	ql.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("expected no output; got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now(), sql, errors.New("syntax error"))
	if !strings.Contains(buf.String(), "db.query.failed") {
		t.Fatalf("expected failed query entry; got %s", buf.String())
	}
}

func TestQueryLoggerSilentMode(t *testing.T) {
	buf := &bytes.Buffer{}
	ql := newBufferedQueryLogger(buf, time.Millisecond).LogMode(gormlogger.Silent)

	ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 1 }, nil)
	if buf.Len() != 0 {
		t.Fatalf("silent mode should drop everything; got %s", buf.String())
	}
}

func TestNewQueryLoggerWithoutLoggerDiscards(t *testing.T) {
	if newQueryLogger(nil, 0) != gormlogger.Discard {
		t.Fatalf("expected discard logger when no service logger is configured")
	}
}
