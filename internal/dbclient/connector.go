package dbclient

import (
	"context"
	"errors"
	"fmt"

	"etlbranching/internal/domain"
)

var ErrUnsupportedDriver = errors.New("unsupported driver")

// ColumnType is the storage type inferred for a loaded column.
type ColumnType string

const (
	ColumnInteger ColumnType = "INTEGER"
	ColumnReal    ColumnType = "REAL"
	ColumnBoolean ColumnType = "BOOLEAN"
	ColumnText    ColumnType = "TEXT"
)

// Column describes one column of a table being loaded.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// QueryPage is a batch of rows read back from a table.
type QueryPage struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Loader writes tabular data into a store and reads it back.
type Loader interface {
	// ReplaceTable drops the table if present, recreates it from cols and
	// inserts rows. Each row holds one value per column, in cols order.
	ReplaceTable(ctx context.Context, table string, cols []Column, rows [][]any) (int, error)

	// AppendTable inserts rows, creating the table first if it is missing.
	AppendTable(ctx context.Context, table string, cols []Column, rows [][]any) (int, error)

	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int, error)

	// Preview returns up to limit rows of table.
	Preview(ctx context.Context, table string, limit int) (*QueryPage, error)

	Close() error
}

// NewLoader creates a Loader for the given driver. For sqlite the DSN is a
// file path; the parent directory is created if needed.
func NewLoader(driver domain.DatabaseDriver, dsn string) (Loader, error) {
	switch driver {
	case domain.DatabaseDriverSQLite, "":
		return newSQLiteLoader(dsn)
	case domain.DatabaseDriverMySQL:
		return newSQLLoader("mysql", dsn, mysqlDialect)
	case domain.DatabaseDriverPostgres:
		return newSQLLoader("postgres", dsn, postgresDialect)
	case domain.DatabaseDriverMongoDB:
		return newMongoLoader(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}
