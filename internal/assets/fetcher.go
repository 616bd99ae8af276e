package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultBaseURL is the Hugging Face hub endpoint.
const DefaultBaseURL = "https://huggingface.co"

// FetchResult reports the outcome for one asset.
type FetchResult struct {
	Filename string
	Path     string
	Bytes    int64
	Cached   bool
	Duration time.Duration
}

// Fetcher downloads pinned assets into a local cache directory.
type Fetcher struct {
	baseDir string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewFetcher creates a fetcher rooted at baseDir.
func NewFetcher(baseDir string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		baseDir: baseDir,
		baseURL: DefaultBaseURL,
		client: &http.Client{
			// Model weights run to gigabytes; the timeout bounds a
			// stalled transfer, not a slow one
			Timeout: 30 * time.Minute,
		},
		logger: logger,
	}
}

// SetBaseURL overrides the hub endpoint. Used for mirrors and tests.
func (f *Fetcher) SetBaseURL(url string) {
	f.baseURL = url
}

// LocalPath returns where an asset lives on disk.
func (f *Fetcher) LocalPath(a Asset) string {
	return filepath.Join(f.baseDir, a.Repo, a.Filename)
}

// Ensure makes every manifest asset present and valid on disk.
// Assets already present with a matching hash are skipped.
func (f *Fetcher) Ensure(ctx context.Context, m Manifest) ([]FetchResult, error) {
	results := make([]FetchResult, 0, len(m.Assets))

	for _, asset := range m.Assets {
		result, err := f.ensureOne(ctx, asset)
		if err != nil {
			return results, fmt.Errorf("asset %s/%s: %w", asset.Repo, asset.Filename, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// ensureOne checks the cache and downloads on miss.
func (f *Fetcher) ensureOne(ctx context.Context, a Asset) (FetchResult, error) {
	start := time.Now()
	path := f.LocalPath(a)

	if info, err := os.Stat(path); err == nil {
		valid := true
		if a.SHA256 != "" {
			sum, err := fileSHA256(path)
			valid = err == nil && sum == a.SHA256
		}
		if valid {
			f.logger.Debug("asset_cached", "file", a.Filename, "bytes", info.Size())
			return FetchResult{
				Filename: a.Filename,
				Path:     path,
				Bytes:    info.Size(),
				Cached:   true,
				Duration: time.Since(start),
			}, nil
		}
		f.logger.Warn("asset_checksum_mismatch_redownloading", "file", a.Filename)
	}

	n, err := f.download(ctx, a, path)
	if err != nil {
		return FetchResult{}, err
	}

	f.logger.Info("asset_fetched",
		"file", a.Filename,
		"bytes", n,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)

	return FetchResult{
		Filename: a.Filename,
		Path:     path,
		Bytes:    n,
		Duration: time.Since(start),
	}, nil
}

// download fetches the asset to a tmp file, verifies the hash, and
// renames into place.
func (f *Fetcher) download(ctx context.Context, a Asset, path string) (int64, error) {
	url := f.baseURL + "/" + a.resolvePath()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if closeErr != nil {
		return 0, closeErr
	}

	if a.SHA256 != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if sum != a.SHA256 {
			return 0, fmt.Errorf("checksum mismatch: got %s, want %s", sum, a.SHA256)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, err
	}

	return n, nil
}

// fileSHA256 hashes a file on disk.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
