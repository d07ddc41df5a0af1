package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// dialect captures the differences between SQL backends that matter for
// loading: identifier quoting, bind placeholders, and column type names.
type dialect struct {
	quote       func(string) string
	placeholder func(n int) string
	typeName    func(ColumnType) string
	// boolAsInt stores booleans as 0/1.
	boolAsInt bool
}

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func questionMark(int) string { return "?" }

var sqliteDialect = dialect{
	quote:       doubleQuote,
	placeholder: questionMark,
	typeName:    func(t ColumnType) string { return string(t) },
	boolAsInt:   true,
}

var postgresDialect = dialect{
	quote:       doubleQuote,
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	typeName: func(t ColumnType) string {
		switch t {
		case ColumnInteger:
			return "BIGINT"
		case ColumnReal:
			return "DOUBLE PRECISION"
		case ColumnBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	},
}

var mysqlDialect = dialect{
	quote:       func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
	placeholder: questionMark,
	typeName: func(t ColumnType) string {
		switch t {
		case ColumnInteger:
			return "BIGINT"
		case ColumnReal:
			return "DOUBLE"
		case ColumnBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	},
}

// createTableSQL builds the CREATE TABLE statement for cols.
func (d dialect) createTableSQL(table string, cols []Column, ifNotExists bool) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.quote(c.Name) + " " + d.typeName(c.Type)
	}
	verb := "CREATE TABLE "
	if ifNotExists {
		verb = "CREATE TABLE IF NOT EXISTS "
	}
	return verb + d.quote(table) + " (" + strings.Join(defs, ", ") + ")"
}

// insertSQL builds a single-row INSERT statement for cols.
func (d dialect) insertSQL(table string, cols []Column) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = d.quote(c.Name)
		marks[i] = d.placeholder(i + 1)
	}
	return "INSERT INTO " + d.quote(table) + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

// sqlLoader is the shared Loader for MySQL, Postgres, and SQLite.
type sqlLoader struct {
	driverName string
	db         *sql.DB
	dialect    dialect
}

func newSQLLoader(driverName, dsn string, d dialect) (*sqlLoader, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s: dsn is required", driverName)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlLoader{driverName: driverName, db: db, dialect: d}, nil
}

func (l *sqlLoader) ReplaceTable(ctx context.Context, table string, cols []Column, rows [][]any) (int, error) {
	return l.write(ctx, table, cols, rows, true)
}

func (l *sqlLoader) AppendTable(ctx context.Context, table string, cols []Column, rows [][]any) (int, error) {
	return l.write(ctx, table, cols, rows, false)
}

// write runs DDL and inserts in one transaction. MySQL commits DDL
// implicitly, so there a failed insert can leave an empty table behind.
func (l *sqlLoader) write(ctx context.Context, table string, cols []Column, rows [][]any, replace bool) (int, error) {
	if table == "" {
		return 0, fmt.Errorf("table name is required")
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("table %s: no columns", table)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+l.dialect.quote(table)); err != nil {
			return 0, fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, l.dialect.createTableSQL(table, cols, !replace)); err != nil {
		return 0, fmt.Errorf("create %s: %w", table, err)
	}

	written := 0
	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, l.dialect.insertSQL(table, cols))
		if err != nil {
			return 0, fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		args := make([]any, len(cols))
		for i, row := range rows {
			for j := range args {
				args[j] = nil
				if j < len(row) {
					args[j] = l.bindValue(row[j])
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return written, fmt.Errorf("insert row %d: %w", i, err)
			}
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func (l *sqlLoader) bindValue(v any) any {
	if b, ok := v.(bool); ok && l.dialect.boolAsInt {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (l *sqlLoader) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+l.dialect.quote(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (l *sqlLoader) Preview(ctx context.Context, table string, limit int) (*QueryPage, error) {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", l.dialect.quote(table), limit))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	page := &QueryPage{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for j, v := range values {
			values[j] = formatValue(v)
		}
		page.Rows = append(page.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return page, nil
}

func (l *sqlLoader) Close() error {
	return l.db.Close()
}

func formatValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
