package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"qrstudio/internal/domain"
)

// sqlConnector serves MySQL, Postgres and SQLite through database/sql.
type sqlConnector struct {
	driverName string
	db         *sql.DB

	mu      sync.Mutex
	rows    *sql.Rows
	cancel  context.CancelFunc
	columns []string
	fetched int
}

func newSQLConnector(driverName, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return &sqlConnector{driverName: driverName, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}
	return nil
}

// isReadQuery reports whether query starts with a statement that only reads.
func isReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA", "VALUES"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

func (c *sqlConnector) Query(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	if !isReadQuery(query) {
		return nil, fmt.Errorf("%w: import queries must be read-only", domain.ErrValidation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCursorLocked()

	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}

	// The cursor outlives this call, so it gets its own context.
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
	rows, err := c.db.QueryContext(qctx, query)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("query: %w: %v", domain.ErrRemote, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		cancel()
		return nil, fmt.Errorf("columns: %w", err)
	}
	c.rows, c.cancel, c.columns, c.fetched = rows, cancel, cols, 0
	return c.fetchLocked(fetchSize)
}

func (c *sqlConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rows == nil {
		return nil, fmt.Errorf("%w: no active cursor", domain.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		c.closeCursorLocked()
		return nil, err
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	return c.fetchLocked(fetchSize)
}

func (c *sqlConnector) fetchLocked(fetchSize int) (*QueryPage, error) {
	n := len(c.columns)
	var out [][]any
	for len(out) < fetchSize && c.rows.Next() {
		values := make([]any, n)
		ptrs := make([]any, n)
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			c.closeCursorLocked()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for j, v := range values {
			values[j] = formatValue(v)
		}
		out = append(out, values)
	}
	if err := c.rows.Err(); err != nil {
		c.closeCursorLocked()
		return nil, fmt.Errorf("iterate: %w: %v", domain.ErrRemote, err)
	}
	c.fetched += len(out)

	page := &QueryPage{Columns: c.columns, Rows: out, TotalFetched: c.fetched, HasMore: len(out) == fetchSize}
	if !page.HasMore {
		c.closeCursorLocked()
	}
	return page, nil
}

func formatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func (c *sqlConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var tablesQ, colsQ string
	switch c.driverName {
	case "sqlite":
		tablesQ = `SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name NOT LIKE 'sqlite_%' ORDER BY name`
		colsQ = `SELECT name, type FROM pragma_table_info(?)`
	case "postgres":
		tablesQ = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
		colsQ = `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`
	default:
		tablesQ = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`
		colsQ = `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
	}

	names, err := c.tableNames(ctx, tablesQ)
	if err != nil {
		return nil, err
	}
	schema := &SchemaInfo{}
	for _, tbl := range names {
		table := TableInfo{Name: tbl}
		rows, err := c.db.QueryContext(ctx, colsQ, tbl)
		if err == nil {
			for rows.Next() {
				var ci ColumnInfo
				if rows.Scan(&ci.Name, &ci.Type) == nil {
					table.Columns = append(table.Columns, ci)
				}
			}
			rows.Close()
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func (c *sqlConnector) tableNames(ctx context.Context, q string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w: %v", domain.ErrRemote, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *sqlConnector) Close() error {
	c.mu.Lock()
	c.closeCursorLocked()
	c.mu.Unlock()
	return c.db.Close()
}

func (c *sqlConnector) closeCursorLocked() {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
