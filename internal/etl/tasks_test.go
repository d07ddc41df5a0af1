package etl_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"etlbranching/internal/dbclient"
	"etlbranching/internal/domain"
	"etlbranching/internal/etl"
	"etlbranching/internal/etl/sources"
)

// fakeDownloader serves datasets from a local directory tree:
// root/{owner}/{slug}/...
type fakeDownloader struct {
	root  string
	calls int
	err   error
}

func (f *fakeDownloader) DatasetDownload(ctx context.Context, handle string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(f.root, filepath.FromSlash(handle)), nil
}

const walmartCSV = "Date,Open,Close,Volume\n2024-01-02,160.1,161.2,100\n2024-01-03,161.5,,200\n"

func setup(t *testing.T) (*etl.Runner, *fakeDownloader) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "umerhaddii", "walmart-stock-data-2024")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wmt_data.csv"), []byte(walmartCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	// The instagram dataset downloads but lacks its expected file.
	if err := os.MkdirAll(filepath.Join(root, "ankulsharma150", "marketing-analytics-project"), 0o755); err != nil {
		t.Fatal(err)
	}

	dl := &fakeDownloader{root: root}
	sources.SetDownloader(dl)
	t.Cleanup(func() { sources.SetDownloader(nil) })

	return &etl.Runner{Catalog: domain.DefaultCatalog(), DataDir: filepath.Join(t.TempDir(), "data")}, dl
}

func TestExtract_WritesStagingFile(t *testing.T) {
	r, dl := setup(t)

	path, err := r.Extract(context.Background(), domain.DatasetWalmart)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if want := filepath.Join(r.DataDir, "walmart.csv"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(data) != walmartCSV {
		t.Errorf("staged file differs from source:\n%s", data)
	}
	if dl.calls != 1 {
		t.Errorf("expected one download, got %d", dl.calls)
	}
}

func TestExtract_UnknownDataset(t *testing.T) {
	r, dl := setup(t)

	_, err := r.Extract(context.Background(), "netflix")
	if !errors.Is(err, etl.ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
	if dl.calls != 0 {
		t.Errorf("unknown dataset must not download, got %d calls", dl.calls)
	}
}

func TestExtract_MissingFileInDownload(t *testing.T) {
	r, _ := setup(t)

	_, err := r.Extract(context.Background(), domain.DatasetInstagram)
	if !errors.Is(err, etl.ErrDatasetFileNotFound) {
		t.Fatalf("expected ErrDatasetFileNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.DataDir, "instagram.csv")); !errors.Is(err, fs.ErrNotExist) {
		t.Error("staging file must not be written on failure")
	}
}

func TestExtract_DownloadError(t *testing.T) {
	r, dl := setup(t)
	boom := errors.New("network down")
	dl.err = boom

	if _, err := r.Extract(context.Background(), domain.DatasetWalmart); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped download error, got %v", err)
	}
}

func TestLoad_ReplacesTable(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	if _, err := r.Extract(ctx, domain.DatasetWalmart); err != nil {
		t.Fatalf("extract: %v", err)
	}
	for i := 0; i < 2; i++ {
		res, err := r.Load(ctx, domain.DatasetWalmart)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if res.File != "walmart.db" || res.String() != "walmart.db" {
			t.Errorf("unexpected result file %q", res.File)
		}
		if res.Rows != 2 {
			t.Errorf("expected 2 rows, got %d", res.Rows)
		}
	}

	loader, err := dbclient.NewLoader(domain.DatabaseDriverSQLite, filepath.Join(r.DataDir, "walmart.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer loader.Close()

	n, err := loader.Count(ctx, "walmart")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected table replaced (2 rows), got %d", n)
	}

	page, err := loader.Preview(ctx, "walmart", 10)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if got := strings.Join(page.Columns, ","); got != "Date,Open,Close,Volume" {
		t.Errorf("columns = %s", got)
	}
	if page.Rows[1][2] != nil {
		t.Errorf("empty cell should load as NULL, got %v", page.Rows[1][2])
	}
	if page.Rows[0][3] != int64(100) {
		t.Errorf("volume should load as integer, got %v (%T)", page.Rows[0][3], page.Rows[0][3])
	}
}

func TestLoad_MissingStagingFile(t *testing.T) {
	r, _ := setup(t)

	_, err := r.Load(context.Background(), domain.DatasetWalmart)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestLoad_HeaderOnlyCreatesEmptyTable(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()
	if err := os.MkdirAll(r.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(domain.StagingPath(r.DataDir, domain.DatasetInstagram), []byte("Post ID,Likes\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := r.Load(ctx, domain.DatasetInstagram)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Rows != 0 {
		t.Errorf("expected 0 rows, got %d", res.Rows)
	}
	page, err := r.PreviewTable(ctx, domain.DatasetInstagram, 5)
	if err != nil {
		t.Fatalf("preview table: %v", err)
	}
	if len(page.Columns) != 2 || len(page.Rows) != 0 {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestPreviewStaging(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()
	if _, err := r.Extract(ctx, domain.DatasetWalmart); err != nil {
		t.Fatalf("extract: %v", err)
	}

	records, schema, err := r.PreviewStaging(ctx, domain.DatasetWalmart, 1)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Data["Date"] != "2024-01-02" {
		t.Errorf("unexpected first record %v", records[0].Data)
	}
	if len(schema.Fields) != 4 {
		t.Errorf("expected 4 fields, got %d", len(schema.Fields))
	}
}
