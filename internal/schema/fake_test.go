package schema

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/farmstand/farmstand/internal/backend"
)

var (
	createTableRe = regexp.MustCompile(`CREATE TABLE IF NOT EXISTS public\.(\w+)`)
	addColumnRe   = regexp.MustCompile(`ALTER TABLE public\.(\w+) ADD COLUMN IF NOT EXISTS (\w+)`)
	renameRe      = regexp.MustCompile(`ALTER TABLE public\.(\w+) RENAME COLUMN (\w+) TO (\w+)`)
)

// fakeBackend is an in-memory backend.Client. ExecSQL understands just
// enough of the setup scripts to create tables and add or rename columns.
type fakeBackend struct {
	mu       sync.Mutex
	tables   map[string]map[string]bool
	execErr  error // returned by every ExecSQL when set
	probeErr error // returned by every Probe when set
	execs    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{tables: make(map[string]map[string]bool)}
}

// withTable adds a table with the given columns.
func (f *fakeBackend) withTable(name string, columns ...string) *fakeBackend {
	cols := map[string]bool{"id": true}
	for _, c := range columns {
		cols[c] = true
	}
	f.tables[name] = cols
	return f
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }

func (f *fakeBackend) ExecSQL(ctx context.Context, sql string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if f.execErr != nil {
		return f.execErr
	}
	for _, m := range createTableRe.FindAllStringSubmatch(sql, -1) {
		if _, ok := f.tables[m[1]]; !ok {
			f.tables[m[1]] = map[string]bool{"id": true}
		}
	}
	for _, m := range renameRe.FindAllStringSubmatch(sql, -1) {
		cols, ok := f.tables[m[1]]
		if !ok {
			return missingTable(m[1])
		}
		// The rename script guards each rename on the old column existing.
		if cols[m[2]] {
			delete(cols, m[2])
			cols[m[3]] = true
		}
	}
	for _, m := range addColumnRe.FindAllStringSubmatch(sql, -1) {
		cols, ok := f.tables[m[1]]
		if !ok {
			return missingTable(m[1])
		}
		cols[m[2]] = true
	}
	return nil
}

func (f *fakeBackend) Probe(ctx context.Context, table, column string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return f.probeErr
	}
	cols, ok := f.tables[table]
	if !ok {
		return missingTable(table)
	}
	if column != "" && !cols[column] {
		return &backend.Error{
			Kind:    backend.KindUndefinedColumn,
			Code:    "42703",
			Message: fmt.Sprintf("column %s.%s does not exist", table, column),
		}
	}
	return nil
}

func (f *fakeBackend) hasColumn(table, column string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table][column]
}

func (f *fakeBackend) hasTable(table string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[table]
	return ok
}

func missingTable(table string) error {
	return &backend.Error{
		Kind:    backend.KindUndefinedTable,
		Code:    "42P01",
		Message: fmt.Sprintf(`relation "public.%s" does not exist`, table),
	}
}

// errExecUnavailable is what PostgREST returns when exec_sql is not installed.
var errExecUnavailable = &backend.Error{
	Kind:    backend.KindUndefinedFunction,
	Code:    "PGRST202",
	Message: "Could not find the function public.exec_sql(sql) in the schema cache",
	Status:  404,
}

// fakeBuckets is an in-memory BucketEnsurer.
type fakeBuckets struct {
	exists bool
	err    error
}

func (b *fakeBuckets) Bucket() string { return "avatars" }

func (b *fakeBuckets) BucketExists(ctx context.Context) bool { return b.exists }

func (b *fakeBuckets) EnsureBucket(ctx context.Context) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	if b.exists {
		return false, nil
	}
	b.exists = true
	return true, nil
}

var errNetwork = errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
