package sources

import (
	"context"
	"fmt"

	"qrstudio/internal/domain"
	"qrstudio/internal/etl"
)

// QueryPage is one batch of rows from an external database.
type QueryPage struct {
	Columns []string
	Rows    [][]any
	HasMore bool
}

// DBProvider runs queries on saved connections. The app injects it at
// startup so this package does not import the connection layer.
type DBProvider interface {
	ExecuteImportQuery(ctx context.Context, connID, query string, fetchSize int) (*QueryPage, error)
	FetchMoreImportRows(ctx context.Context, connID string, fetchSize int) (*QueryPage, error)
}

var dbProvider DBProvider

func SetDBProvider(p DBProvider) { dbProvider = p }

const dbFetchSize = 500

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		Icon:  "IconDatabase",
		ConfigFields: []etl.ConfigField{
			{Key: "connectionId", Label: "Connection", Type: "connection", Required: true},
			{Key: "query", Label: "Query", Type: "textarea", Required: true, Help: "SELECT statement, or a JSON filter for MongoDB"},
		},
	}
}

func resolveDBConfig(cfg etl.SourceConfig) (string, string, error) {
	connID, query := cfg.String("connectionId"), cfg.String("query")
	if connID == "" || query == "" {
		return "", "", fmt.Errorf("%w: connectionId and query are required", domain.ErrValidation)
	}
	if dbProvider == nil {
		return "", "", fmt.Errorf("database provider not initialized")
	}
	return connID, query, nil
}

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	connID, query, err := resolveDBConfig(cfg)
	if err != nil {
		return nil, err
	}
	page, err := dbProvider.ExecuteImportQuery(ctx, connID, query, 1)
	if err != nil {
		return nil, err
	}
	schema := &etl.Schema{Fields: make([]etl.Field, len(page.Columns))}
	for i, col := range page.Columns {
		typ := "text"
		if len(page.Rows) > 0 && i < len(page.Rows[0]) {
			if t := inferType(page.Rows[0][i]); t != "" {
				typ = t
			}
		}
		schema.Fields[i] = etl.Field{Name: col, Type: typ}
	}
	return schema, nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		connID, query, err := resolveDBConfig(cfg)
		if err != nil {
			errCh <- err
			return
		}
		page, err := dbProvider.ExecuteImportQuery(ctx, connID, query, dbFetchSize)
		if err != nil {
			errCh <- fmt.Errorf("execute: %w", err)
			return
		}
		for {
			if !emitPage(ctx, out, page) {
				errCh <- ctx.Err()
				return
			}
			if !page.HasMore {
				return
			}
			if page, err = dbProvider.FetchMoreImportRows(ctx, connID, dbFetchSize); err != nil {
				errCh <- fmt.Errorf("fetch more: %w", err)
				return
			}
		}
	}()

	return out, errCh
}

func emitPage(ctx context.Context, out chan<- etl.Record, page *QueryPage) bool {
	for _, row := range page.Rows {
		data := make(map[string]any, len(page.Columns))
		for i, col := range page.Columns {
			if i < len(row) {
				data[col] = row[i]
			}
		}
		select {
		case out <- etl.Record{Data: data}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
