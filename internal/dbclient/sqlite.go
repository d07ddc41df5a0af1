package dbclient

import (
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteDSNOptions are modernc.org/sqlite connection pragmas.
const sqliteDSNOptions = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// newSQLiteLoader opens (creating if needed) a SQLite store file.
// Opens in WAL mode with busy timeout for concurrent access.
func newSQLiteLoader(path string) (*sqlLoader, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	l, err := newSQLLoader("sqlite", path+sqliteDSNOptions, sqliteDialect)
	if err != nil {
		return nil, err
	}
	l.db.SetMaxOpenConns(1)
	return l, nil
}
