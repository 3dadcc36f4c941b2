package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/qretaio/html2json/internal/metrics"
	"github.com/qretaio/html2json/internal/sink"
)

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER for older builds.
const maxParams = 999

// Repo implements sink.Sink for SQLite.
//
// SQLite has no timestamp type, so extracted_at is stored as RFC3339Nano text
// which sorts correctly and round-trips exactly.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	sink.Register("sqlite", New)
}

// New opens the database at cfg.DSN and verifies it with a ping.
func New(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.Table}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTable creates the results table if missing.
func (r *Repo) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// Insert writes recs in batches inside one transaction.
func (r *Repo) Insert(ctx context.Context, recs []sink.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows, err := sink.Rows(recs)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		row[1] = row[1].(time.Time).Format(time.RFC3339Nano)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, batch := range sink.Batches(rows, maxParams) {
		q, args := buildInsertSQL(r.table, batch)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", r.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	metrics.RecordSinkRows("sqlite", int(total))
	return total, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func tableIdent(name string) string {
	parts := sink.SplitTable(name)
	for i, p := range parts {
		parts[i] = sqlIdent(p)
	}
	return strings.Join(parts, ".")
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" INTEGER PRIMARY KEY,
  "source" TEXT NOT NULL,
  "extracted_at" TEXT NOT NULL,
  "payload" TEXT NOT NULL
)`, tableIdent(table))
}

// buildInsertSQL renders a multi-row INSERT with ? placeholders.
func buildInsertSQL(table string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range sink.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	rowPH := "(" + strings.TrimRight(strings.Repeat("?, ", len(sink.Columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(sink.Columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowPH)
		args = append(args, row...)
	}
	return b.String(), args
}
