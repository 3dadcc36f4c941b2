// Package postgres is the Postgres result sink. Payloads are stored as JSONB.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qretaio/html2json/internal/metrics"
	"github.com/qretaio/html2json/internal/sink"
)

// maxParams is the Postgres wire protocol limit on bind parameters.
const maxParams = 65535

func init() {
	sink.Register("postgres", New)
}

// Repo implements sink.Sink for Postgres.
type Repo struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a pool for cfg.DSN. Connections are established lazily.
func New(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, table: cfg.Table}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTable creates the results table if missing.
func (r *Repo) EnsureTable(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", r.table, err)
	}
	return nil
}

// Insert writes recs in one transaction.
func (r *Repo) Insert(ctx context.Context, recs []sink.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows, err := sink.Rows(recs)
	if err != nil {
		return 0, err
	}

	var total int64
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, batch := range sink.Batches(rows, maxParams) {
			q, args := buildInsertSQL(r.table, batch)
			tag, err := tx.Exec(ctx, q, args...)
			if err != nil {
				return err
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: insert into %s: %w", r.table, err)
	}

	metrics.RecordSinkRows("postgres", int(total))
	return total, nil
}

func pgIdent(id string) string {
	return pgx.Identifier{id}.Sanitize()
}

func tableIdent(name string) string {
	return pgx.Identifier(sink.SplitTable(name)).Sanitize()
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id BIGSERIAL PRIMARY KEY,
  source TEXT NOT NULL,
  extracted_at TIMESTAMPTZ NOT NULL,
  payload JSONB NOT NULL
)`, tableIdent(table))
}

// buildInsertSQL renders a multi-row INSERT with numbered placeholders. The
// payload placeholder is cast to jsonb so text arguments are accepted.
//
// It is pure so placeholder numbering can be tested without a database.
func buildInsertSQL(table string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range sink.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(sink.Columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d, $%d::jsonb)", p, p+1, p+2)
		p += len(sink.Columns)
		args = append(args, row...)
	}
	return b.String(), args
}
