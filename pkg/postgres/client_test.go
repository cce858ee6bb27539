package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
)

func skipIfNoPostgres(t *testing.T) *Client {
	t.Helper()
	c, err := New(context.Background(), testConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// testConfig returns connection settings for integration tests, taken from
// TEST_POSTGRES_* variables.
func testConfig() config.PostgresConfig {
	port := 5432
	if v := os.Getenv("TEST_POSTGRES_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "textindex_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "textindex"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestInTx_RollsBackOnError(t *testing.T) {
	c := skipIfNoPostgres(t)
	ctx := context.Background()
	_, err := c.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tx_probe (n INT)`)
	require.NoError(t, err)
	t.Cleanup(func() { c.DB.Exec(`DROP TABLE IF EXISTS tx_probe`) })
	_, err = c.DB.ExecContext(ctx, `DELETE FROM tx_probe`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tx_probe VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, c.DB.QueryRowContext(ctx, `SELECT count(*) FROM tx_probe`).Scan(&n))
	assert.Zero(t, n)
}

func TestNew_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build catalog 127.0.0.1:1/"+cfg.Database+" unreachable")
	assert.NotContains(t, err.Error(), cfg.Password)
}

func TestClient_PingAndTarget(t *testing.T) {
	c := skipIfNoPostgres(t)
	cfg := testConfig()
	assert.Equal(t, cfg.Target(), c.Target())
	assert.NoError(t, c.Ping(context.Background()))
}
