package schema

import (
	"context"
	"fmt"

	"github.com/farmstand/farmstand/internal/backend"
	"github.com/rs/zerolog"
)

// Script is one idempotent DDL block and the object whose existence proves
// it has been applied.
type Script struct {
	Name    string // migration name
	Table   string
	Column  string // empty for table-level scripts
	SQL     string
	Success string // message reported when the script runs cleanly
}

// Object describes the target, e.g. "table profiles" or "column products.quantity".
func (s Script) Object() string {
	if s.Column != "" {
		return fmt.Sprintf("column %s.%s", s.Table, s.Column)
	}
	return "table " + s.Table
}

// Result is the outcome of one ensure operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// ManualSQL is set when an administrator must apply the script by hand.
	ManualSQL string `json:"manual_sql,omitempty"`
}

// Executor submits scripts through the backend's exec_sql entry point.
type Executor struct {
	client  backend.Client
	checker *Checker
	log     zerolog.Logger
}

func NewExecutor(client backend.Client, checker *Checker, log zerolog.Logger) *Executor {
	return &Executor{client: client, checker: checker, log: log}
}

// Apply runs the script once. If exec_sql itself is unavailable it falls
// back to probing the target: present counts as success, absent is reported
// with instructions to apply the script manually.
func (e *Executor) Apply(ctx context.Context, s Script) Result {
	log := e.log.With().Str("migration", s.Name).Logger()

	err := e.client.ExecSQL(ctx, s.SQL)
	if err == nil {
		log.Info().Str("object", s.Object()).Msg("schema script applied")
		return Result{Success: true, Message: s.Success}
	}

	switch {
	case backend.KindOf(err) == backend.KindDuplicateObject:
		log.Debug().Err(err).Msg("object already exists")
		return Result{Success: true, Message: fmt.Sprintf("%s already exists", s.Object())}

	case backend.IsMissing(err, backend.KindUndefinedFunction, backend.ExecFunction):
		if e.exists(ctx, s) {
			log.Info().Msg("exec_sql unavailable but target already present")
			return Result{Success: true, Message: fmt.Sprintf("%s already exists", s.Object())}
		}
		log.Warn().Str("object", s.Object()).Msg("exec_sql unavailable and target missing, manual setup required")
		return Result{
			Success: false,
			Message: fmt.Sprintf(
				"%s does not exist and cannot be created automatically because the %s function is not installed. "+
					"An administrator must run the setup SQL in the database SQL editor, then retry.",
				s.Object(), backend.ExecFunction),
			ManualSQL: s.SQL,
		}

	default:
		log.Error().Err(err).Msg("schema script failed")
		return Result{Success: false, Message: err.Error(), ManualSQL: s.SQL}
	}
}

func (e *Executor) exists(ctx context.Context, s Script) bool {
	if s.Column != "" {
		return e.checker.ColumnExists(ctx, s.Table, s.Column)
	}
	return e.checker.TableExists(ctx, s.Table)
}
