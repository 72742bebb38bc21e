package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ErrNotReadOnly is returned for any statement that is not a single SELECT.
var ErrNotReadOnly = eris.New("db: only SELECT statements are allowed")

// ReadOnly wraps a Querier and refuses anything that is not a SELECT.
type ReadOnly struct {
	q Querier
}

// NewReadOnly wraps q.
func NewReadOnly(q Querier) *ReadOnly {
	return &ReadOnly{q: q}
}

// Query runs sql after CheckReadOnly.
func (r *ReadOnly) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := CheckReadOnly(sql); err != nil {
		return nil, err
	}
	return r.q.Query(ctx, sql, args...)
}

// QueryRow runs sql after CheckReadOnly. A rejected statement surfaces its
// error from Scan.
func (r *ReadOnly) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if err := CheckReadOnly(sql); err != nil {
		return errRow{err: err}
	}
	return r.q.QueryRow(ctx, sql, args...)
}

type errRow struct{ err error }

func (e errRow) Scan(...any) error { return e.err }

// CheckReadOnly accepts a single SELECT (optionally behind a WITH clause and
// leading comments) and rejects everything else.
func CheckReadOnly(sql string) error {
	body := strings.TrimSpace(stripComments(sql))
	body = strings.TrimSuffix(body, ";")
	if body == "" {
		return eris.Wrap(ErrNotReadOnly, "empty statement")
	}
	if strings.Contains(body, ";") {
		return eris.Wrap(ErrNotReadOnly, "multiple statements")
	}

	first := strings.ToUpper(firstWord(body))
	switch first {
	case "SELECT":
		return nil
	case "WITH":
		upper := strings.ToUpper(body)
		for _, kw := range []string{"INSERT ", "UPDATE ", "DELETE ", "MERGE "} {
			if strings.Contains(upper, kw) {
				return eris.Wrapf(ErrNotReadOnly, "data-modifying CTE (%s)", strings.TrimSpace(kw))
			}
		}
		return nil
	default:
		return eris.Wrapf(ErrNotReadOnly, "statement starts with %q", first)
	}
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '(' {
			return s[:i]
		}
	}
	return s
}

// stripComments removes -- line comments and /* */ block comments.
func stripComments(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "--"):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return b.String()
			}
			i += nl
			b.WriteByte('\n')
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			b.WriteByte(' ')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
