package etl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"etlbranching/internal/dbclient"
	"etlbranching/internal/domain"
	"etlbranching/internal/telemetry"
)

// Source types used by the pipeline tasks. Both are registered by the
// etl/sources package, which the binary imports.
const (
	SourceKaggle  = "kaggle"
	SourceCSVFile = "csv_file"
)

// Runner holds what the extract and load tasks need.
type Runner struct {
	Catalog domain.Catalog
	DataDir string
	// Target picks the store for a dataset; nil means data/{dataset}.db.
	Target func(domain.Dataset) domain.StoreTarget
	// Connect opens a store; nil means dbclient.NewLoader.
	Connect func(driver domain.DatabaseDriver, dsn string) (dbclient.Loader, error)
}

// LoadResult describes a completed load.
type LoadResult struct {
	Dataset domain.Dataset `json:"dataset"`
	File    string         `json:"file"` // store file name, e.g. walmart.db
	Table   string         `json:"table"`
	Rows    int            `json:"rows"`
}

// String returns the store file name, which is what the load task reports.
func (r *LoadResult) String() string { return r.File }

// Extract downloads the dataset, locates its known file and writes the
// staging CSV. It returns the staging path.
func (r *Runner) Extract(ctx context.Context, name domain.Dataset) (string, error) {
	spec, err := r.Catalog.Lookup(name)
	if err != nil {
		return "", err
	}
	log := telemetry.FromContext(ctx).With("dataset", string(name))

	path := domain.StagingPath(r.DataDir, name)
	engine := &Engine{Dest: &CSVFileWriter{}}
	res, err := engine.RunSync(ctx, &SyncJob{
		ID:         "extract_" + string(name),
		SourceType: SourceKaggle,
		SourceCfg:  SourceConfig{"handle": spec.Handle, "file": spec.File},
		Target:     path,
		SyncMode:   SyncReplace,
	})
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}

	log.Info("dataset staged", "path", path, "rows", res.RowsWritten, "duration", res.Duration)
	return path, nil
}

// Load replaces the dataset table with the contents of the staging CSV.
func (r *Runner) Load(ctx context.Context, name domain.Dataset) (*LoadResult, error) {
	if _, err := r.Catalog.Lookup(name); err != nil {
		return nil, err
	}
	log := telemetry.FromContext(ctx).With("dataset", string(name))

	path := domain.StagingPath(r.DataDir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: staging file %s: %w", name, path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	target := r.target(name)
	connect := r.Connect
	if connect == nil {
		connect = dbclient.NewLoader
	}
	loader, err := connect(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("load %s: open store: %w", name, err)
	}
	defer loader.Close()

	engine := &Engine{Dest: &TableWriter{Loader: loader}}
	res, err := engine.RunSync(ctx, &SyncJob{
		ID:         "load_" + string(name),
		SourceType: SourceCSVFile,
		SourceCfg:  SourceConfig{"filePath": path},
		Target:     target.Table,
		SyncMode:   SyncReplace,
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	out := &LoadResult{
		Dataset: name,
		File:    domain.StoreFileName(name),
		Table:   target.Table,
		Rows:    res.RowsWritten,
	}
	log.Info("dataset loaded", "driver", string(target.Driver), "table", out.Table, "rows", out.Rows, "duration", res.Duration)
	return out, nil
}

// PreviewTable reads back up to limit rows of the loaded dataset table.
func (r *Runner) PreviewTable(ctx context.Context, name domain.Dataset, limit int) (*dbclient.QueryPage, error) {
	if _, err := r.Catalog.Lookup(name); err != nil {
		return nil, err
	}
	target := r.target(name)
	if target.Driver == domain.DatabaseDriverSQLite {
		if _, err := os.Stat(target.DSN); err != nil {
			return nil, fmt.Errorf("preview %s: %w", name, err)
		}
	}
	connect := r.Connect
	if connect == nil {
		connect = dbclient.NewLoader
	}
	loader, err := connect(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("preview %s: open store: %w", name, err)
	}
	defer loader.Close()
	return loader.Preview(ctx, target.Table, limit)
}

// PreviewStaging reads up to limit records of the staging CSV.
func (r *Runner) PreviewStaging(ctx context.Context, name domain.Dataset, limit int) ([]Record, *Schema, error) {
	if _, err := r.Catalog.Lookup(name); err != nil {
		return nil, nil, err
	}
	return Preview(ctx, SourceCSVFile, SourceConfig{"filePath": domain.StagingPath(r.DataDir, name)}, limit)
}

func (r *Runner) target(name domain.Dataset) domain.StoreTarget {
	if r.Target != nil {
		return r.Target(name)
	}
	return domain.StoreTarget{
		Driver: domain.DatabaseDriverSQLite,
		DSN:    domain.StorePath(r.DataDir, name),
		Table:  string(name),
	}
}
