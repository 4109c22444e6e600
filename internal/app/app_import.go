package app

import (
	"qrstudio/internal/dbclient"
	"qrstudio/internal/domain"
	"qrstudio/internal/etl"
	"qrstudio/internal/service"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ============================================================
// Campaign imports
// ============================================================

func (a *App) ListImportSources() []etl.SourceSpec {
	return a.imports.ListSources()
}

func (a *App) ListImportJobs(campaignID string) ([]etl.ImportJob, error) {
	return a.imports.ListJobs(campaignID)
}

func (a *App) CreateImportJob(in service.ImportJobInput) (j *etl.ImportJob, err error) {
	err = a.bound("create import job", true, func() error {
		j, err = a.imports.CreateJob(a.ctx, in)
		return err
	})
	return j, err
}

func (a *App) UpdateImportJob(id string, in service.ImportJobInput) (j *etl.ImportJob, err error) {
	err = a.bound("update import job", true, func() error {
		j, err = a.imports.UpdateJob(a.ctx, id, in)
		return err
	})
	return j, err
}

func (a *App) DeleteImportJob(id string) error {
	return a.bound("delete import job", true, func() error {
		return a.imports.DeleteJob(a.ctx, id)
	})
}

// RunImportJob runs a job now. The outcome is also emitted as campaign:sync.
func (a *App) RunImportJob(id string) (res *etl.ImportResult, err error) {
	err = a.bound("run import", true, func() error {
		res, err = a.imports.RunJob(a.ctx, id)
		return err
	})
	return res, err
}

func (a *App) ListImportRuns(jobID string) ([]etl.ImportRunLog, error) {
	return a.imports.ListRunLogs(jobID)
}

func (a *App) PreviewImportSource(sourceType, configJSON string) (p *service.PreviewResult, err error) {
	err = a.bound("preview source", true, func() error {
		p, err = a.imports.PreviewSource(a.ctx, sourceType, configJSON)
		return err
	})
	return p, err
}

func (a *App) DiscoverImportSchema(sourceType, configJSON string) (s *etl.Schema, err error) {
	err = a.bound("discover schema", true, func() error {
		s, err = a.imports.DiscoverSchema(a.ctx, sourceType, configJSON)
		return err
	})
	return s, err
}

// PickImportFile opens a native file picker for CSV or JSON sources.
func (a *App) PickImportFile() (string, error) {
	return wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title: "Select Data File",
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: "CSV", Pattern: "*.csv;*.tsv"},
			{DisplayName: "JSON", Pattern: "*.json;*.ndjson"},
			{DisplayName: "All Files", Pattern: "*.*"},
		},
	})
}

// ============================================================
// External database connections
// ============================================================

func (a *App) ListDatabaseConnections() ([]domain.DatabaseConnection, error) {
	return a.connections.ListConnections()
}

func (a *App) CreateDatabaseConnection(in service.ConnectionInput) (c *domain.DatabaseConnection, err error) {
	err = a.bound("create connection", true, func() error {
		c, err = a.connections.CreateConnection(in)
		return err
	})
	return c, err
}

func (a *App) UpdateDatabaseConnection(id string, in service.ConnectionInput) error {
	return a.bound("update connection", true, func() error {
		return a.connections.UpdateConnection(id, in)
	})
}

func (a *App) DeleteDatabaseConnection(id string) error {
	return a.bound("delete connection", true, func() error {
		return a.connections.DeleteConnection(id)
	})
}

func (a *App) TestDatabaseConnection(id string) error {
	return a.bound("test connection", false, func() error {
		return a.connections.TestConnection(a.ctx, id)
	})
}

func (a *App) IntrospectDatabase(id string) (s *dbclient.SchemaInfo, err error) {
	err = a.bound("introspect", true, func() error {
		s, err = a.connections.Introspect(a.ctx, id)
		return err
	})
	return s, err
}

// PickDatabaseFile opens a native file picker for selecting a database file.
func (a *App) PickDatabaseFile() (string, error) {
	return wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title: "Select Database File",
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: "Database Files", Pattern: "*.db;*.sqlite;*.sqlite3;*.s3db"},
			{DisplayName: "All Files", Pattern: "*.*"},
		},
	})
}
