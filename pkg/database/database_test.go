package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ---------------------------------------------------------------------------
// Migrations
// ---------------------------------------------------------------------------

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"000002_add_index.up.sql":       {Data: []byte("CREATE INDEX idx ON orders (created_at);")},
		"000001_create_orders.up.sql":   {Data: []byte("CREATE TABLE orders (id UUID);")},
		"000001_create_orders.down.sql": {Data: []byte("DROP TABLE orders;")},
	}
}

func TestPendingMigrations_SortedUpOnly(t *testing.T) {
	names, err := PendingMigrations(testMigrations())
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_orders.up.sql", "000002_add_index.up.sql"}, names)
}

func TestRunMigrations_AppliesNewAndSkipsApplied(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("000001_create_orders.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("000002_add_index.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("000002_add_index.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), mock, testMigrations(), newTestLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorNotRetried(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("000001_create_orders.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE orders").WillReturnError(errors.New(`syntax error at or near "UUID"`))
	mock.ExpectRollback()

	start := time.Now()
	err = RunMigrations(context.Background(), mock, testMigrations(), newTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 000001_create_orders.up.sql")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.False(t, isConnectionError(errors.New("duplicate key value violates unique constraint")))
}

func TestRetryBackoff_WithinJitter(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		got := retryBackoff(attempt)
		assert.GreaterOrEqual(t, got, time.Duration(float64(base)*0.75))
		assert.LessOrEqual(t, got, time.Duration(float64(base)*1.25))
	}
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	err := withRetry(context.Background(), nil, "op", func(error) bool { return false }, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, nil, "op", nil, func() error { return errors.New("down") })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

func TestTraceQuery_SlowQueryLogged(t *testing.T) {
	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "CreateOrder", "INSERT INTO orders")
	time.Sleep(time.Millisecond)
	end(errors.New("conflict"))

	out := buf.String()
	assert.Contains(t, out, "slow query detected")
	assert.Contains(t, out, "operation=CreateOrder")
	assert.Contains(t, out, "db_system=postgresql")
	assert.Contains(t, out, "error=conflict")
}

func TestTraceOp_DisabledLogsNothing(t *testing.T) {
	var buf bytes.Buffer
	SetSlowQueryLogging(0, slog.New(slog.NewTextHandler(&buf, nil)))

	_, end := TraceOp(context.Background(), "redis", "GetBackup")
	end(nil)
	assert.Empty(t, buf.String())
}

// ---------------------------------------------------------------------------
// Pool metrics
// ---------------------------------------------------------------------------

type fakeStats struct{}

func (fakeStats) AcquiredConns() int32     { return 3 }
func (fakeStats) IdleConns() int32         { return 2 }
func (fakeStats) TotalConns() int32        { return 5 }
func (fakeStats) MaxConns() int32          { return 25 }
func (fakeStats) AcquireCount() int64      { return 100 }
func (fakeStats) EmptyAcquireCount() int64 { return 4 }

func TestPoolStatsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(newPoolStatsCollector(func() PoolStats { return fakeStats{} }, "storefront")))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		m := mf.GetMetric()[0]
		assert.Equal(t, "storefront", m.GetLabel()[0].GetValue())
		if g := m.GetGauge(); g != nil {
			values[mf.GetName()] = g.GetValue()
		}
		if c := m.GetCounter(); c != nil {
			values[mf.GetName()] = c.GetValue()
		}
	}

	assert.Len(t, values, 6)
	assert.Equal(t, float64(3), values["db_pool_acquired_connections"])
	assert.Equal(t, float64(25), values["db_pool_max_connections"])
	assert.Equal(t, float64(4), values["db_pool_empty_acquire_count_total"])
	for name := range values {
		assert.True(t, strings.HasPrefix(name, "db_pool_"))
	}
}
