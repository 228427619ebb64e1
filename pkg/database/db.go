package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds the PostgreSQL connection settings. DSN wins over the
// individual parts when both are set.
type Config struct {
	DSN         string        `env:"DATABASE_URL"`
	Host        string        `env:"DB_HOST, default=localhost"`
	Port        int           `env:"DB_PORT, default=5432"`
	Name        string        `env:"DB_NAME, default=postgres"`
	User        string        `env:"DB_USER, default=postgres"`
	Password    string        `env:"DB_PASSWORD"`
	SSLMode     string        `env:"DB_SSLMODE, default=disable"`
	MaxConns    int           `env:"DB_MAX_CONNS, default=20"`
	Timeout     time.Duration `env:"DB_TIMEOUT, default=5s"`
	TimeZone    string        `env:"DATABASE_TIMEZONE"`
	AutoMigrate bool          `env:"DB_AUTO_MIGRATE, default=true"`
}

// ConnString returns the DSN, assembling it from the parts if needed.
// The listener opens its own connection with the same string.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.TimeZone != "" {
		q.Set("timezone", c.TimeZone)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect opens a pooled *sqlx.DB and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 20
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// QuoteLiteral escapes single quotes and wraps the value in single quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
