// Package postgres connects to the build catalog database through lib/pq
// and runs catalog writes inside transactions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
)

const pingTimeout = 5 * time.Second

type Client struct {
	DB     *sql.DB
	target string
}

// New opens a pool against the catalog described by cfg and verifies it
// answers before returning.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	target := cfg.Target()
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening build catalog %s: %w", target, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{DB: db, target: target}
	if err := c.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Target names the catalog as host:port/database, without credentials.
func (c *Client) Target() string { return c.target }

func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.DB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("build catalog %s unreachable: %w", c.target, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in one transaction: committed when fn returns nil, rolled
// back otherwise. A failed rollback is reported alongside fn's error.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning catalog transaction on %s: %w", c.target, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing catalog transaction on %s: %w", c.target, err)
	}
	return nil
}
