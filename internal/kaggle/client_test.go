package kaggle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"etlbranching/internal/secret"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseHandle(t *testing.T) {
	tests := []struct {
		in      string
		want    Handle
		wantErr bool
	}{
		{"umerhaddii/walmart-stock-data-2024", Handle{Owner: "umerhaddii", Slug: "walmart-stock-data-2024"}, false},
		{"owner/slug/versions/3", Handle{Owner: "owner", Slug: "slug", Version: 3}, false},
		{"owner", Handle{}, true},
		{"owner/slug/revisions/3", Handle{}, true},
		{"owner/slug/versions/x", Handle{}, true},
		{"../slug", Handle{}, true},
		{"", Handle{}, true},
	}
	for _, tt := range tests {
		got, err := ParseHandle(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidHandle) {
				t.Errorf("ParseHandle(%q): expected ErrInvalidHandle, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHandle(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHandle(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDatasetDownload_ExtractsAndCaches(t *testing.T) {
	archive := zipBytes(t, map[string]string{"wmt_data.csv": "date,close\n2024-01-02,160.1\n"})
	var hits atomic.Int32
	var gotUser, gotKey, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotUser, gotKey, _ = r.BasicAuth()
		gotPath = r.URL.Path
		w.Write(archive)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, t.TempDir(), secret.Credentials{Username: "alice", Key: "k"})
	dir, err := c.DatasetDownload(context.Background(), "umerhaddii/walmart-stock-data-2024")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if gotPath != "/datasets/download/umerhaddii/walmart-stock-data-2024" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotUser != "alice" || gotKey != "k" {
		t.Errorf("expected basic auth alice:k, got %q:%q", gotUser, gotKey)
	}
	data, err := os.ReadFile(filepath.Join(dir, "wmt_data.csv"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("date,close")) {
		t.Errorf("unexpected content %q", data)
	}

	again, err := c.DatasetDownload(context.Background(), "umerhaddii/walmart-stock-data-2024")
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if again != dir {
		t.Errorf("expected same dir, got %q vs %q", again, dir)
	}
	if hits.Load() != 1 {
		t.Errorf("expected cache reuse, server hit %d times", hits.Load())
	}

	c.Force = true
	if _, err := c.DatasetDownload(context.Background(), "umerhaddii/walmart-stock-data-2024"); err != nil {
		t.Fatalf("forced download: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected forced re-download, server hit %d times", hits.Load())
	}
}

func TestDatasetDownload_VersionQuery(t *testing.T) {
	archive := zipBytes(t, map[string]string{"a.csv": "x\n1\n"})
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("datasetVersionNumber")
		w.Write(archive)
	}))
	defer srv.Close()

	cache := t.TempDir()
	dir, err := NewClient(srv.URL, cache, secret.Credentials{}).DatasetDownload(context.Background(), "o/s/versions/2")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if gotQuery != "2" {
		t.Errorf("expected datasetVersionNumber=2, got %q", gotQuery)
	}
	if want := filepath.Join(cache, "datasets", "o", "s", "versions", "2"); dir != want {
		t.Errorf("dir = %q, want %q", dir, want)
	}
}

func TestDatasetDownload_LatestKeepsPinnedVersions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := "latest.csv"
		if r.URL.Query().Get("datasetVersionNumber") != "" {
			name = "pinned.csv"
		}
		w.Write(zipBytes(t, map[string]string{name: "x\n1\n"}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, t.TempDir(), secret.Credentials{})
	ctx := context.Background()
	pinned, err := c.DatasetDownload(ctx, "o/s/versions/2")
	if err != nil {
		t.Fatalf("pinned download: %v", err)
	}
	latest, err := c.DatasetDownload(ctx, "o/s")
	if err != nil {
		t.Fatalf("latest download: %v", err)
	}
	if latest == pinned {
		t.Fatalf("latest and pinned share %q", latest)
	}
	if _, err := os.Stat(filepath.Join(pinned, "pinned.csv")); err != nil {
		t.Errorf("pinned copy removed by latest download: %v", err)
	}
	if _, err := os.Stat(pinned + completeMarker); err != nil {
		t.Errorf("pinned marker removed by latest download: %v", err)
	}
	if _, err := os.Stat(filepath.Join(latest, "latest.csv")); err != nil {
		t.Errorf("latest file missing: %v", err)
	}
}

func TestDatasetDownload_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrDatasetNotFound},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		_, err := NewClient(srv.URL, t.TempDir(), secret.Credentials{}).DatasetDownload(context.Background(), "o/s")
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestDatasetDownload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, t.TempDir(), secret.Credentials{}).DatasetDownload(context.Background(), "o/s")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("500 should not map to a sentinel: %v", err)
	}
}

func TestDatasetDownload_RejectsZipSlip(t *testing.T) {
	archive := zipBytes(t, map[string]string{"../../evil.csv": "x"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	cache := t.TempDir()
	_, err := NewClient(srv.URL, cache, secret.Credentials{}).DatasetDownload(context.Background(), "o/s")
	if !errors.Is(err, ErrUnsafeArchive) {
		t.Fatalf("expected ErrUnsafeArchive, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cache, "datasets", "o", "s", "latest"+completeMarker)); err == nil {
		t.Error("marker must not be written for a rejected archive")
	}
}
