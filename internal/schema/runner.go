package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/farmstand/farmstand/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one migration inside a run.
type Outcome struct {
	Name string `json:"name"`
	Result
}

// Report summarizes a run. Success is true only if every selected
// migration succeeded.
type Report struct {
	Success  bool      `json:"success"`
	Results  []Outcome `json:"results"`
	Failures []Outcome `json:"failures"`
}

// Err returns a *SetupError describing the failures, or nil.
func (r Report) Err() error {
	if r.Success {
		return nil
	}
	return &SetupError{Failures: r.Failures}
}

// Status is the applied state of one migration, as seen by its Check.
type Status struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
}

// Runner executes a selected subset of Migrations in declaration order.
type Runner struct {
	boot       *Bootstrapper
	migrations []Migration
	log        zerolog.Logger

	// OnResult, if set, is called after every migration outcome while the run
	// holds its lock, so it must not block.
	OnResult func(Outcome)

	mu sync.Mutex // serializes Run and RunOne
}

// NewRunner selects migrations by name. An empty or all-blank selection means
// all of them.
// Unknown names are a configuration error.
func NewRunner(boot *Bootstrapper, names []string, log zerolog.Logger) (*Runner, error) {
	selected, err := selectMigrations(Migrations, names)
	if err != nil {
		return nil, err
	}
	return &Runner{boot: boot, migrations: selected, log: log}, nil
}

func selectMigrations(all []Migration, names []string) ([]Migration, error) {
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := Lookup(n); !ok {
			return nil, fmt.Errorf("unknown migration %q (known: %s)", n, strings.Join(Names(), ", "))
		}
		want[n] = true
	}
	if len(want) == 0 {
		return all, nil
	}
	var selected []Migration
	for _, m := range all {
		if want[m.Name] {
			selected = append(selected, m)
		}
	}
	return selected, nil
}

// Bootstrapper returns the bootstrapper the runner applies migrations with.
func (r *Runner) Bootstrapper() *Bootstrapper {
	return r.boot
}

// Migrations returns the selected migrations.
func (r *Runner) Migrations() []Migration {
	return r.migrations
}

// Run applies every selected migration, one after another. A failure does
// not stop the remaining migrations; the entities are independent.
func (r *Runner) Run(ctx context.Context) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	report := Report{Success: true, Results: []Outcome{}, Failures: []Outcome{}}
	for _, m := range r.migrations {
		o := r.apply(ctx, m)
		report.Results = append(report.Results, o)
		if !o.Success {
			report.Success = false
			report.Failures = append(report.Failures, o)
		}
	}
	metrics.SetupRunDuration.Observe(time.Since(start).Seconds())

	ev := r.log.Info()
	if !report.Success {
		ev = r.log.Warn()
	}
	ev.Int("migrations", len(report.Results)).
		Int("failed", len(report.Failures)).
		Dur("duration", time.Since(start)).
		Msg("schema setup run complete")
	return report
}

// RunOne applies a single migration by name, whether or not it is part of
// the configured selection.
func (r *Runner) RunOne(ctx context.Context, name string) (Outcome, error) {
	m, ok := Lookup(name)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown migration %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, m), nil
}

func (r *Runner) apply(ctx context.Context, m Migration) Outcome {
	o := Outcome{Name: m.Name, Result: m.Apply(r.boot, ctx)}
	result := "applied"
	if !o.Success {
		result = "failed"
	}
	metrics.SetupMigrationsTotal.WithLabelValues(m.Name, result).Inc()
	if r.OnResult != nil {
		r.OnResult(o)
	}
	return o
}

// Status runs every selected migration's Check. Checks are read-only, so
// they run concurrently.
func (r *Runner) Status(ctx context.Context) []Status {
	statuses := make([]Status, len(r.migrations))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, m := range r.migrations {
		i, m := i, m
		g.Go(func() error {
			statuses[i] = Status{
				Name:        m.Name,
				Description: m.Description,
				Applied:     m.Check(r.boot, ctx),
			}
			return nil
		})
	}
	g.Wait()
	return statuses
}

// SetupError lists migrations that could not be applied, with the SQL an
// administrator needs to run.
type SetupError struct {
	Failures []Outcome
}

func (e *SetupError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d schema migration(s) failed:\n", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "  - %s: %s\n", f.Name, f.Message)
	}
	var manual []Outcome
	for _, f := range e.Failures {
		if f.ManualSQL != "" {
			manual = append(manual, f)
		}
	}
	if len(manual) > 0 {
		b.WriteString("\nRun the following SQL as a database administrator to fix this:\n")
		for _, f := range manual {
			fmt.Fprintf(&b, "\n-- %s\n%s\n", f.Name, f.ManualSQL)
		}
		b.WriteString("\nThen retry setup.")
	}
	return b.String()
}
