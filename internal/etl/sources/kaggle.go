package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"etlbranching/internal/etl"
)

// ── Kaggle Dataset Source ───────────────────────────────────
// Downloads a dataset through the dataset host client, then reads one CSV
// file inside the downloaded directory.

// Downloader makes a dataset handle available locally and returns the
// directory holding its files.
type Downloader interface {
	DatasetDownload(ctx context.Context, handle string) (string, error)
}

var downloader Downloader

// SetDownloader is called by the app at startup.
func SetDownloader(d Downloader) { downloader = d }

type kaggleSource struct{}

func init() { etl.RegisterSource(&kaggleSource{}) }

func (s *kaggleSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  etl.SourceKaggle,
		Label: "Kaggle Dataset",
		ConfigFields: []etl.ConfigField{
			{Key: "handle", Label: "Dataset Handle", Required: true, Help: "owner/slug or owner/slug/versions/N"},
			{Key: "file", Label: "File", Required: true, Help: "CSV file inside the dataset, e.g. wmt_data.csv"},
		},
	}
}

func (s *kaggleSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	if err := resolveKaggleFile(ctx, cfg); err != nil {
		return nil, err
	}
	return (&csvFileSource{}).Discover(ctx, cfg)
}

func (s *kaggleSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	if err := resolveKaggleFile(ctx, cfg); err != nil {
		out := make(chan etl.Record)
		errCh := make(chan error, 1)
		close(out)
		errCh <- err
		close(errCh)
		return out, errCh
	}
	return (&csvFileSource{}).Read(ctx, cfg)
}

// resolveKaggleFile downloads the dataset once per config and records the
// local file as cfg["filePath"] for the CSV reader.
func resolveKaggleFile(ctx context.Context, cfg etl.SourceConfig) error {
	if p, ok := cfg["filePath"].(string); ok && p != "" {
		return nil
	}
	handle, _ := cfg["handle"].(string)
	file, _ := cfg["file"].(string)
	if handle == "" || file == "" {
		return fmt.Errorf("handle and file are required")
	}
	if downloader == nil {
		return fmt.Errorf("kaggle source: no downloader configured")
	}

	dir, err := downloader.DatasetDownload(ctx, handle)
	if err != nil {
		return fmt.Errorf("download %s: %w", handle, err)
	}

	path := filepath.Join(dir, file)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s in %s", etl.ErrDatasetFileNotFound, file, dir)
		}
		return err
	}
	cfg["filePath"] = path
	return nil
}
