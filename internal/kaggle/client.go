package kaggle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"etlbranching/internal/secret"
	"etlbranching/internal/telemetry"
)

// DefaultEndpoint is the public dataset host API.
const DefaultEndpoint = "https://www.kaggle.com/api/v1"

const completeMarker = ".complete"

// Client downloads datasets into a local cache.
type Client struct {
	Endpoint string
	CacheDir string
	Creds    secret.Credentials
	HTTP     *http.Client
	// Force re-downloads even when a complete cached copy exists.
	Force bool
}

// NewClient creates a client with a default HTTP timeout.
func NewClient(endpoint, cacheDir string, creds secret.Credentials) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint: endpoint,
		CacheDir: cacheDir,
		Creds:    creds,
		HTTP:     &http.Client{Timeout: 10 * time.Minute},
	}
}

// DatasetDownload makes the dataset available locally and returns the
// directory holding its files.
func (c *Client) DatasetDownload(ctx context.Context, handle string) (string, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return "", err
	}
	log := telemetry.FromContext(ctx).With("handle", h.String())

	dir := h.cachePath(c.CacheDir)
	marker := dir + completeMarker
	if !c.Force {
		if _, err := os.Stat(marker); err == nil {
			log.Debug("dataset cache hit", "path", dir)
			return dir, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat cache marker: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	os.Remove(marker)

	archive, err := c.fetch(ctx, h, filepath.Dir(dir))
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	staging, err := os.MkdirTemp(filepath.Dir(dir), h.Slug+".extract-*")
	if err != nil {
		return "", fmt.Errorf("create extract dir: %w", err)
	}
	if err := unzip(archive, staging); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("clear cache dir: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("install dataset: %w", err)
	}
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return "", fmt.Errorf("write cache marker: %w", err)
	}

	log.Info("dataset downloaded", "path", dir)
	return dir, nil
}

// fetch streams the dataset archive to a temp file in dir and returns its path.
func (c *Client) fetch(ctx context.Context, h Handle, dir string) (string, error) {
	u := fmt.Sprintf("%s/datasets/download/%s/%s", c.Endpoint, url.PathEscape(h.Owner), url.PathEscape(h.Slug))
	if h.Version > 0 {
		u += "?datasetVersionNumber=" + strconv.Itoa(h.Version)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.Creds.Valid() {
		req.SetBasicAuth(c.Creds.Username, c.Creds.Key)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", h, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", fmt.Errorf("download %s: %w: %v", h, ErrUnauthorized, statusErr)
		case http.StatusNotFound:
			return "", fmt.Errorf("download %s: %w: %v", h, ErrDatasetNotFound, statusErr)
		}
		return "", fmt.Errorf("download %s: %w", h, statusErr)
	}

	tmp, err := os.CreateTemp(dir, h.Slug+"-*.zip")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
