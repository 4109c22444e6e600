package domain

import (
	"fmt"
	"strings"
	"time"
)

// DatabaseDriver names the engine behind an import connection.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// ParseDatabaseDriver accepts the usual aliases ("postgresql", "mongo").
func ParseDatabaseDriver(s string) (DatabaseDriver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return DatabaseDriverMySQL, nil
	case "postgres", "postgresql", "pg":
		return DatabaseDriverPostgres, nil
	case "mongodb", "mongo":
		return DatabaseDriverMongoDB, nil
	case "sqlite", "sqlite3":
		return DatabaseDriverSQLite, nil
	}
	return "", fmt.Errorf("%w: unsupported driver %q", ErrValidation, s)
}

// DefaultPort is used when a connection leaves Port at 0.
func (d DatabaseDriver) DefaultPort() int {
	switch d {
	case DatabaseDriverMySQL:
		return 3306
	case DatabaseDriverPostgres:
		return 5432
	case DatabaseDriverMongoDB:
		return 27017
	}
	return 0
}

// FileBased reports whether Host is a local file path.
func (d DatabaseDriver) FileBased() bool { return d == DatabaseDriverSQLite }

// DatabaseConnection is an external database that campaign rows can be
// imported from. The password lives in the secret store, keyed by ID.
type DatabaseConnection struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Driver    DatabaseDriver `json:"driver"`
	Host      string         `json:"host"` // file path for sqlite
	Port      int            `json:"port"`
	Database  string         `json:"database"`
	Username  string         `json:"username"`
	SSLMode   string         `json:"sslMode"`
	ExtraJSON string         `json:"extraJson"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// PortOrDefault returns Port, or the driver's default when unset.
func (c *DatabaseConnection) PortOrDefault() int {
	if c.Port > 0 {
		return c.Port
	}
	return c.Driver.DefaultPort()
}
