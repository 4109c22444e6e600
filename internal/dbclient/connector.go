// Package dbclient reads rows from external databases for campaign imports.
// Connectors are read-only: statements that would modify data are rejected.
package dbclient

import (
	"context"
	"fmt"

	"qrstudio/internal/domain"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"`
	HasMore      bool     `json:"hasMore"`
}

// SchemaInfo lists tables (or collections) and their columns, used to help
// users write import queries.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector is a live, read-only connection to an external database.
type Connector interface {
	TestConnection(ctx context.Context) error

	// Query opens a cursor and returns the first fetchSize rows.
	Query(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues the cursor opened by the last Query.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	Introspect(ctx context.Context) (*SchemaInfo, error)

	Close() error
}

const defaultFetchSize = 100

// NewConnector opens a connector for conn. The password comes from the
// secret store.
func NewConnector(conn *domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLConnector("sqlite", sqliteDSN(conn))
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", mysqlDSN(conn, password))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", postgresDSN(conn, password))
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", domain.ErrValidation, conn.Driver)
	}
}
