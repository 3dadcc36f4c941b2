// Package mssql is the Microsoft SQL Server result sink.
//
// Payloads are stored as NVARCHAR(MAX) JSON text; SQL Server's JSON functions
// (JSON_VALUE, OPENJSON) work on that column directly.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/qretaio/html2json/internal/metrics"
	"github.com/qretaio/html2json/internal/sink"
)

// maxParams stays under SQL Server's 2100 parameter limit per request.
const maxParams = 2097

func init() {
	sink.Register("mssql", New)
}

// Repo implements sink.Sink for SQL Server.
type Repo struct {
	db    *sql.DB
	table string
}

// New opens a "sqlserver" connection pool and pings it.
func New(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: raw, table: cfg.Table}, nil
}

// Close releases database resources.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTable creates the results table when OBJECT_ID finds nothing.
func (r *Repo) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", r.table, err)
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
			return 0, fmt.Errorf("mssql: insert into %s: %w", r.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	metrics.RecordSinkRows("mssql", int(total))
	return total, nil
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent bracket-quotes each part of a schema-qualified name.
//
//	"dbo.results" -> [dbo].[results]
func mssqlTableIdent(name string) string {
	parts := sink.SplitTable(name)
	for i, p := range parts {
		parts[i] = mssqlIdent(p)
	}
	return strings.Join(parts, ".")
}

func buildCreateSQL(table string) string {
	lit := strings.ReplaceAll(table, "'", "''")
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
  [id] BIGINT IDENTITY(1,1) PRIMARY KEY,
  [source] NVARCHAR(2048) NOT NULL,
  [extracted_at] DATETIME2 NOT NULL,
  [payload] NVARCHAR(MAX) NOT NULL
)`, lit, mssqlTableIdent(table))
}

// buildInsertSQL renders a multi-row INSERT with @pN placeholders.
func buildInsertSQL(table string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	for i, c := range sink.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(sink.Columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range sink.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args, row...)
	}
	return b.String(), args
}
