package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/farmstand/farmstand/internal/backend"
	"github.com/farmstand/farmstand/internal/schema"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [names...]",
	Short: "Apply schema migrations once and exit",
	Long: `Apply the selected schema migrations (all of them, or SETUP_MIGRATIONS,
when no names are given). Exits non-zero if any migration fails and prints
the SQL an administrator must run.`,
	RunE: runMigrate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var sqlCmd = &cobra.Command{
	Use:   "sql <name>",
	Short: "Print a migration's SQL, or exec_sql for the setup function itself",
	Args:  cobra.ExactArgs(1),
	RunE:  runSQL,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	a.connectMQTT()

	runner := a.runner
	if len(args) > 0 {
		runner, err = schema.NewRunner(a.runner.Bootstrapper(), args, a.log.With().Str("component", "schema").Logger())
		if err != nil {
			return err
		}
		runner.OnResult = a.runner.OnResult
	}

	report := runner.Run(ctx)
	out := cmd.OutOrStdout()
	for _, o := range report.Results {
		mark := "ok  "
		if !o.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "%s %-28s %s\n", mark, o.Name, o.Message)
	}
	return report.Err()
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tAPPLIED\tDESCRIPTION")
	for _, s := range a.runner.Status(cmd.Context()) {
		fmt.Fprintf(w, "%s\t%t\t%s\n", s.Name, s.Applied, s.Description)
	}
	return w.Flush()
}

// runSQL needs no configuration, so operators can fetch scripts before
// the service can reach the database.
func runSQL(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == backend.ExecFunction {
		fmt.Fprintln(cmd.OutOrStdout(), backend.ExecFunctionSQL)
		return nil
	}
	m, ok := schema.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown migration %q (known: %s, %s)", name, strings.Join(schema.Names(), ", "), backend.ExecFunction)
	}
	sql := m.SQL()
	if sql == "" {
		return fmt.Errorf("%s has no SQL: it is applied through the storage API", name)
	}
	fmt.Fprintln(cmd.OutOrStdout(), sql)
	return nil
}
