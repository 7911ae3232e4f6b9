// Package backend talks to the hosted Postgres that owns the storefront schema.
//
// Two clients are provided: RESTClient speaks PostgREST (the hosted SDK
// surface, authenticated with the project's API key) and PostgresClient
// holds a direct pgx pool. Both normalize failures into *Error so callers
// can branch on Kind instead of on message wording.
package backend

import (
	"context"
	"regexp"
)

// ExecFunction is the name of the database function that runs arbitrary SQL.
// It has to be installed once by an administrator; see ExecFunctionSQL.
const ExecFunction = "exec_sql"

// ExecFunctionSQL creates the exec_sql entry point. It cannot be applied
// through the entry point itself, so it is printed for operators instead.
const ExecFunctionSQL = `CREATE OR REPLACE FUNCTION public.exec_sql(sql text)
RETURNS void
LANGUAGE plpgsql
SECURITY DEFINER
SET search_path = public
AS $$
BEGIN
  EXECUTE sql;
END;
$$;

REVOKE ALL ON FUNCTION public.exec_sql(text) FROM PUBLIC, anon, authenticated;
GRANT EXECUTE ON FUNCTION public.exec_sql(text) TO service_role;`

// Client is the subset of the hosted database SDK the bootstrap layer needs.
type Client interface {
	// ExecSQL submits a script through the generic "run SQL" entry point.
	ExecSQL(ctx context.Context, sql string) error

	// Probe performs a zero-row read of table. If column is non-empty only
	// that column is selected. A nil error means the object exists.
	Probe(ctx context.Context, table, column string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Name returns "rest" or "postgres".
	Name() string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validIdent reports whether s is a plain SQL identifier. Probe targets are
// hardcoded by callers, but they end up in URLs and SQL text.
func validIdent(s string) bool {
	return identRe.MatchString(s)
}
