package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"auditstore/internal/config"
)

// ApplicationName is reported to Postgres for every connection.
const ApplicationName = "auditstore"

// MinOpenConns is the smallest usable pool. A save holds one connection for
// its transaction while the validator's domain lookup needs another.
const MinOpenConns = 2

const defaultConnectTimeout = 5 * time.Second

var sqlOpen = sql.Open

// BuildPostgresDSN renders c as a postgres:// URL. Every connection is tagged
// with ApplicationName so audit writes can be told apart in pg_stat_activity.
func BuildPostgresDSN(c config.DatabaseConfig) (string, error) {
	if c.Host == "" || c.Port == "" || c.User == "" || c.Name == "" {
		return "", fmt.Errorf("invalid database config: host, port, user, and name are required")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + c.Port,
		Path:   c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}

	q := u.Query()
	q.Set("application_name", ApplicationName)
	if c.ConnectTimeoutSec > 0 {
		q.Set("connect_timeout", strconv.Itoa(c.ConnectTimeoutSec))
	}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// spanAttributes describe the store on every otelsql span.
func spanAttributes(c config.DatabaseConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		semconv.DBName(c.Name),
		semconv.ServerAddress(c.Host),
	}
	if port, err := strconv.Atoi(c.Port); err == nil {
		attrs = append(attrs, semconv.ServerPort(port))
	}
	return attrs
}

// pool holds the connection limits NewPostgres applies.
type pool struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func poolFor(c config.DatabaseConfig) pool {
	p := pool{
		maxOpen:     c.MaxOpenConns,
		maxIdle:     c.MaxIdleConns,
		maxLifetime: time.Duration(c.ConnMaxLifetimeSec) * time.Second,
	}
	if p.maxOpen < MinOpenConns {
		p.maxOpen = MinOpenConns
	}
	if p.maxIdle <= 0 || p.maxIdle > p.maxOpen {
		p.maxIdle = p.maxOpen
	}
	return p
}

func (p pool) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.maxOpen)
	db.SetMaxIdleConns(p.maxIdle)
	if p.maxLifetime > 0 {
		db.SetConnMaxLifetime(p.maxLifetime)
	}
}

// NewPostgres opens the process-wide connection handle using the pgx stdlib
// driver wrapped by otelsql, then pings it within the connect timeout.
// Transactions are never implicit: writers thread a *Tx explicitly, see InTx.
func NewPostgres(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := BuildPostgresDSN(c)
	if err != nil {
		return nil, err
	}

	driverName, err := otelsql.Register("pgx",
		otelsql.WithAttributes(spanAttributes(c)...),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	poolFor(c).apply(db)

	timeout := defaultConnectTimeout
	if c.ConnectTimeoutSec > 0 {
		timeout = time.Duration(c.ConnectTimeoutSec) * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}
