package schema

import (
	"context"

	"github.com/farmstand/farmstand/internal/backend"
	"github.com/rs/zerolog"
)

// Checker answers "does this relation/column exist" with a zero-row read.
// It fails open: only a does-not-exist error naming the queried object
// counts as absent, anything else is logged and treated as present so a
// flaky probe never triggers a redundant create.
type Checker struct {
	client backend.Client
	log    zerolog.Logger
}

func NewChecker(client backend.Client, log zerolog.Logger) *Checker {
	return &Checker{client: client, log: log}
}

// TableExists reports whether public.<table> exists.
func (c *Checker) TableExists(ctx context.Context, table string) bool {
	err := c.client.Probe(ctx, table, "")
	if err == nil {
		return true
	}
	if backend.IsMissing(err, backend.KindUndefinedTable, table) {
		return false
	}
	c.log.Warn().Err(err).Str("table", table).Msg("existence check failed, assuming table exists")
	return true
}

// ColumnExists reports whether public.<table>.<column> exists. A missing
// table also means a missing column.
func (c *Checker) ColumnExists(ctx context.Context, table, column string) bool {
	err := c.client.Probe(ctx, table, column)
	if err == nil {
		return true
	}
	if backend.IsMissing(err, backend.KindUndefinedColumn, column) ||
		backend.IsMissing(err, backend.KindUndefinedTable, table) {
		return false
	}
	c.log.Warn().Err(err).
		Str("table", table).
		Str("column", column).
		Msg("existence check failed, assuming column exists")
	return true
}
