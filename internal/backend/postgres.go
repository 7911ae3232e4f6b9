package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmstand/farmstand/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresClient runs scripts over a direct connection pool. There is no
// exec_sql indirection, so ExecSQL never reports KindUndefinedFunction for
// the entry point itself.
type PostgresClient struct {
	db *database.DB
}

// NewPostgresClient wraps an open database.
func NewPostgresClient(db *database.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// Name returns the client name.
func (c *PostgresClient) Name() string { return "postgres" }

// ExecSQL executes the script. Without arguments pgx uses the simple
// protocol, so multi-statement scripts and DO blocks are accepted.
func (c *PostgresClient) ExecSQL(ctx context.Context, sql string) error {
	_, err := c.db.Pool.Exec(ctx, sql)
	return fromPgError(err)
}

// Probe runs SELECT <column> FROM <table> LIMIT 0.
func (c *PostgresClient) Probe(ctx context.Context, table, column string) error {
	if !validIdent(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	sel := "*"
	if column != "" {
		if !validIdent(column) {
			return fmt.Errorf("invalid column name %q", column)
		}
		sel = pgx.Identifier{column}.Sanitize()
	}
	query := fmt.Sprintf(`SELECT %s FROM %s LIMIT 0`, sel, pgx.Identifier{"public", table}.Sanitize())
	_, err := c.db.Pool.Exec(ctx, query)
	return fromPgError(err)
}

// Ping checks the pool.
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.db.HealthCheck(ctx)
}

func fromPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{
			Kind:    Classify(pgErr.Code, pgErr.Message),
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	return err
}
