package domain

// DatabaseDriver represents the type of store a dataset is loaded into.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// StoreTarget describes where the load task writes a dataset.
// For sqlite the DSN is a file path; for the others it is a server DSN
// shared by all datasets, each dataset getting its own table.
type StoreTarget struct {
	Driver DatabaseDriver `json:"driver"`
	DSN    string         `json:"dsn"`
	Table  string         `json:"table"`
}
