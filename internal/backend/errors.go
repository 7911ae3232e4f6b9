package backend

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the normalized category of a backend error.
type Kind int

const (
	KindUnknown Kind = iota
	KindUndefinedTable
	KindUndefinedColumn
	KindUndefinedFunction
	KindDuplicateObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefinedTable:
		return "undefined_table"
	case KindUndefinedColumn:
		return "undefined_column"
	case KindUndefinedFunction:
		return "undefined_function"
	case KindDuplicateObject:
		return "duplicate_object"
	default:
		return "unknown"
	}
}

// Error is a backend failure normalized across the REST and Postgres clients.
type Error struct {
	Kind    Kind
	Code    string // SQLSTATE or PostgREST code, may be empty
	Message string
	Details string
	Hint    string
	Status  int // HTTP status for REST errors, 0 otherwise
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// Mentions reports whether the error text names the given object as a
// whole word, e.g. "profiles" matches `relation "public.profiles" does not exist`.
func (e *Error) Mentions(name string) bool {
	if name == "" {
		return false
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(e.Message) || re.MatchString(e.Details)
}

// codeKinds maps structured error codes to kinds. SQLSTATE codes come from
// Postgres directly; PGRST codes are PostgREST's schema-cache errors.
var codeKinds = map[string]Kind{
	"42P01":    KindUndefinedTable,
	"PGRST205": KindUndefinedTable,
	"42703":    KindUndefinedColumn,
	"PGRST204": KindUndefinedColumn,
	"42883":    KindUndefinedFunction,
	"PGRST202": KindUndefinedFunction,
	"42P07":    KindDuplicateObject, // duplicate_table
	"42710":    KindDuplicateObject, // duplicate_object
	"42701":    KindDuplicateObject, // duplicate_column
}

// messagePatterns is the only place backend wording is matched. It is
// consulted when an error carries no recognized code.
var messagePatterns = []struct {
	re   *regexp.Regexp
	kind Kind
}{
	// Column patterns first: `column "x" of relation "t" does not exist`
	// also contains the table wording.
	{regexp.MustCompile(`(?i)column "?[\w.]+"? (of relation "?[\w.]+"? )?does not exist`), KindUndefinedColumn},
	{regexp.MustCompile(`(?i)could not find the '[^']+' column`), KindUndefinedColumn},
	{regexp.MustCompile(`(?i)relation "?[\w.]+"? does not exist`), KindUndefinedTable},
	{regexp.MustCompile(`(?i)could not find the table`), KindUndefinedTable},
	{regexp.MustCompile(`(?i)function [\w.]+\(.*\) does not exist`), KindUndefinedFunction},
	{regexp.MustCompile(`(?i)could not find the function`), KindUndefinedFunction},
	{regexp.MustCompile(`(?i)already exists`), KindDuplicateObject},
}

// Classify derives a Kind from a code and message.
func Classify(code, message string) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	for _, p := range messagePatterns {
		if p.re.MatchString(message) {
			return p.kind
		}
	}
	return KindUnknown
}

// KindOf returns the Kind of err, or KindUnknown if err is not a *Error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsMissing reports whether err says the named object does not exist.
// Both the kind and the object name must match.
func IsMissing(err error, kind Kind, name string) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == kind && be.Mentions(name)
}
