package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/paydesk/internal/observability/context"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLoggerSlowStatementCarriesTableAndEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{SlowThreshold: 10 * time.Millisecond}, zap.New(core))

	ctx := obscontext.WithEventID(context.Background(), "evt_123")
	sql := "UPDATE `transactions` SET `status`=?,`updated_at`=? WHERE id = ? AND status = ?"
	l.Trace(ctx, time.Now().Add(-50*time.Millisecond), statement(sql, 1), nil)

	entries := logs.FilterMessage("db.statement").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	require.Equal(t, "transactions", fields["table"])
	require.Equal(t, "UPDATE", fields["operation"])
	require.Equal(t, int64(1), fields["rows_affected"])
	require.Equal(t, "evt_123", fields["event_id"])
	require.Equal(t, sql, fields["sql"])
}

func TestGormLoggerSkipsFastStatementsAndMisses(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{}, zap.New(core))

	l.Trace(context.Background(), time.Now(), statement("SELECT * FROM `idempotency_records` WHERE key = ?", 0), nil)
	l.Trace(context.Background(), time.Now(), statement("SELECT * FROM `transactions` WHERE id = ?", 0), gormlogger.ErrRecordNotFound)

	require.Equal(t, 0, logs.Len())
}

func TestGormLoggerErrorOmitsSQLUnlessVerbose(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{}, zap.New(core))

	l.Trace(context.Background(), time.Now(), statement("INSERT INTO `webhook_events` (`id`) VALUES (?)", 0), errors.New("disk I/O error"))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	require.Equal(t, "webhook_events", fields["table"])
	require.Equal(t, "INSERT", fields["operation"])
	require.Equal(t, "disk I/O error", fields["error"])
	require.NotContains(t, fields, "sql")

	verbose := l.LogMode(gormlogger.Info)
	verbose.Trace(context.Background(), time.Now(), statement("SELECT * FROM `payment_links`", 2), nil)
	require.Equal(t, 2, logs.Len())
	require.Equal(t, zapcore.DebugLevel, logs.All()[1].Level)
	require.Equal(t, "SELECT * FROM `payment_links`", logs.All()[1].ContextMap()["sql"])
}

func TestGormLoggerDropsBoundValues(t *testing.T) {
	l := NewGormLogger(GormLoggerConfig{}, nil)
	sql, params := l.ParamsFilter(context.Background(), "SELECT * FROM transactions WHERE customer_phone = ?", "+15550100")
	require.Equal(t, "SELECT * FROM transactions WHERE customer_phone = ?", sql)
	require.Nil(t, params)
}

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM `transactions` WHERE id = ?":                "transactions",
		`INSERT INTO "transaction_transitions" ("id") VALUES ($1)`: "transaction_transitions",
		"UPDATE `payment_links` SET `status`=?":                    "payment_links",
		"DELETE FROM idempotency_records WHERE expires_at < ?":     "idempotency_records",
		`SELECT count(*) FROM "public"."receipts"`:                 "receipts",
		"SELECT * FROM (SELECT 1) t":                               "unknown",
		"":                                                         "unknown",
	}
	for sql, want := range cases {
		require.Equal(t, want, tableFromSQL(sql), sql)
	}
}

func TestOperationFromSQL(t *testing.T) {
	require.Equal(t, "UPDATE", operationFromSQL("UPDATE transactions SET status = ?"))
	require.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	require.Equal(t, "UNKNOWN", operationFromSQL(""))
}
