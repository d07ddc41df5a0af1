package dbclient

// MySQL DSNs use the go-sql-driver form:
// user:password@tcp(host:3306)/dbname?parseTime=true&charset=utf8mb4

import _ "github.com/go-sql-driver/mysql"
