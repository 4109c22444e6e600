package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"qrstudio/internal/dbclient"
	"qrstudio/internal/domain"
	"qrstudio/internal/etl/sources"
	"qrstudio/internal/secret"
	"qrstudio/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Connection Service: external databases used as import sources
// ─────────────────────────────────────────────────────────────

// ConnectionInput is the DTO for creating and updating connections.
type ConnectionInput struct {
	Name      string `json:"name"`
	Driver    string `json:"driver"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SSLMode   string `json:"sslMode"`
	ExtraJSON string `json:"extraJson"`
}

// validate checks the input and returns its normalized driver.
func (in ConnectionInput) validate() (domain.DatabaseDriver, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", fmt.Errorf("%w: connection name is required", domain.ErrValidation)
	}
	driver, err := domain.ParseDatabaseDriver(in.Driver)
	if err != nil {
		return "", err
	}
	if in.Host == "" {
		if driver.FileBased() {
			return "", fmt.Errorf("%w: database file is required", domain.ErrValidation)
		}
		return "", fmt.Errorf("%w: host is required", domain.ErrValidation)
	}
	return driver, nil
}

// connectorFactory opens a live connector. Tests replace it.
type connectorFactory func(conn *domain.DatabaseConnection, password string) (dbclient.Connector, error)

// ConnectionService manages saved connections and keeps one live connector
// per connection. It implements sources.DBProvider.
type ConnectionService struct {
	store   *storage.DBConnectionStore
	secrets secret.SecretStore
	open    connectorFactory

	mu     sync.Mutex
	active map[string]*connEntry
}

type connEntry struct {
	connector dbclient.Connector
	createdAt time.Time
}

var _ sources.DBProvider = (*ConnectionService)(nil)

func NewConnectionService(store *storage.DBConnectionStore, secrets secret.SecretStore) *ConnectionService {
	return &ConnectionService{
		store:   store,
		secrets: secrets,
		open:    dbclient.NewConnector,
		active:  make(map[string]*connEntry),
	}
}

func secretKey(id string) string { return "db:" + id }

// ── Connection CRUD ────────────────────────────────────────

func (s *ConnectionService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.store.ListConnections()
}

func (s *ConnectionService) CreateConnection(input ConnectionInput) (*domain.DatabaseConnection, error) {
	driver, err := input.validate()
	if err != nil {
		return nil, err
	}
	conn := &domain.DatabaseConnection{
		Name:      input.Name,
		Driver:    driver,
		Host:      input.Host,
		Port:      input.Port,
		Database:  input.Database,
		Username:  input.Username,
		SSLMode:   input.SSLMode,
		ExtraJSON: input.ExtraJSON,
	}
	if err := s.store.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if err := s.savePassword(conn.ID, input.Password); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *ConnectionService) UpdateConnection(id string, input ConnectionInput) error {
	driver, err := input.validate()
	if err != nil {
		return err
	}
	conn, err := s.store.GetConnection(id)
	if err != nil {
		return err
	}
	conn.Name = input.Name
	conn.Driver = driver
	conn.Host = input.Host
	conn.Port = input.Port
	conn.Database = input.Database
	conn.Username = input.Username
	conn.SSLMode = input.SSLMode
	conn.ExtraJSON = input.ExtraJSON
	if err := s.store.UpdateConnection(conn); err != nil {
		return err
	}
	if err := s.savePassword(id, input.Password); err != nil {
		return err
	}
	// The next query reconnects with the new settings.
	s.drop(id)
	return nil
}

func (s *ConnectionService) DeleteConnection(id string) error {
	s.drop(id)
	if s.secrets != nil {
		if err := s.secrets.Delete(secretKey(id)); err != nil {
			log.Printf("[Database] delete password of %s: %v", id, err)
		}
	}
	return s.store.DeleteConnection(id)
}

func (s *ConnectionService) savePassword(id, password string) error {
	if password == "" || s.secrets == nil {
		return nil
	}
	if err := s.secrets.Set(secretKey(id), []byte(password)); err != nil {
		return fmt.Errorf("save connection password: %w", err)
	}
	return nil
}

// ── Test + Introspect ──────────────────────────────────────

func (s *ConnectionService) TestConnection(ctx context.Context, id string) error {
	c, err := s.connector(id)
	if err != nil {
		return err
	}
	if err := c.TestConnection(ctx); err != nil {
		s.drop(id)
		return err
	}
	return nil
}

func (s *ConnectionService) Introspect(ctx context.Context, id string) (*dbclient.SchemaInfo, error) {
	c, err := s.connector(id)
	if err != nil {
		return nil, err
	}
	return c.Introspect(ctx)
}

// ── Import queries (sources.DBProvider) ───────────────────

func (s *ConnectionService) ExecuteImportQuery(ctx context.Context, connID, query string, fetchSize int) (*sources.QueryPage, error) {
	c, err := s.connector(connID)
	if err != nil {
		return nil, err
	}
	page, err := c.Query(ctx, query, fetchSize)
	if err != nil {
		return nil, fmt.Errorf("run import query: %w", err)
	}
	return &sources.QueryPage{Columns: page.Columns, Rows: page.Rows, HasMore: page.HasMore}, nil
}

func (s *ConnectionService) FetchMoreImportRows(ctx context.Context, connID string, fetchSize int) (*sources.QueryPage, error) {
	s.mu.Lock()
	e, ok := s.active[connID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no active query for connection %s", domain.ErrValidation, connID)
	}
	page, err := e.connector.FetchMore(ctx, fetchSize)
	if err != nil {
		return nil, err
	}
	return &sources.QueryPage{Columns: page.Columns, Rows: page.Rows, HasMore: page.HasMore}, nil
}

// ── Connector Pool ─────────────────────────────────────────

func (s *ConnectionService) connector(id string) (dbclient.Connector, error) {
	s.mu.Lock()
	if e, ok := s.active[id]; ok {
		s.mu.Unlock()
		return e.connector, nil
	}
	s.mu.Unlock()

	conn, err := s.store.GetConnection(id)
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}
	var password string
	if s.secrets != nil {
		if pw, err := s.secrets.Get(secretKey(id)); err == nil {
			password = string(pw)
		}
	}
	c, err := s.open(conn, password)
	if err != nil {
		return nil, fmt.Errorf("open connection %s: %w", conn.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.active[id]; ok {
		c.Close()
		return e.connector, nil
	}
	s.active[id] = &connEntry{connector: c, createdAt: time.Now()}
	return c, nil
}

func (s *ConnectionService) drop(id string) {
	s.mu.Lock()
	e, ok := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()
	if ok {
		_ = e.connector.Close()
	}
}

// Close tears down all live connectors.
func (s *ConnectionService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.active {
		_ = e.connector.Close()
		delete(s.active, id)
	}
}
