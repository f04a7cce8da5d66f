// Package portal is the client for a CKAN action API: paginated
// dataset-id listing and per-dataset detail fetch, with an on-disk
// response cache shared across scan runs.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/digimosa/cpf-portal-scan/internal/retry"
)

const listPageSize = 1000

// Dataset is the portion of a CKAN package the scanner cares about.
type Dataset struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Organization Organization `json:"organization"`
	Resources    []Resource   `json:"resources"`
}

type Organization struct {
	Title string `json:"title"`
}

// Resource is one downloadable file belonging to a dataset.
type Resource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

type Client struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	cacheDir string
	cacheTTL time.Duration
	policy   retry.Policy
	verbose  bool

	// now is replaceable so cache-expiry tests do not sleep.
	now func() time.Time
}

type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheDir string
	CacheTTL time.Duration
	Policy   retry.Policy
	Verbose  bool
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		client:   &http.Client{Timeout: timeout},
		cacheDir: opts.CacheDir,
		cacheTTL: opts.CacheTTL,
		policy:   opts.Policy,
		verbose:  opts.Verbose,
		now:      time.Now,
	}
}

// ListAllDatasetIDs pages through package_list until an empty page.
func (c *Client) ListAllDatasetIDs(ctx context.Context) ([]string, error) {
	var all []string
	for offset := 0; ; offset += listPageSize {
		endpoint := fmt.Sprintf("%s/api/3/action/package_list?limit=%d&offset=%d",
			c.baseURL, listPageSize, offset)

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("list datasets (offset %d): %w", offset, err)
		}

		var page struct {
			Result *[]string `json:"result"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("list datasets (offset %d): %w", offset, err)
		}
		if page.Result == nil {
			return nil, fmt.Errorf("list datasets (offset %d): response has no result array", offset)
		}

		if len(*page.Result) == 0 {
			break
		}
		all = append(all, *page.Result...)
	}
	return all, nil
}

// DatasetDetails fetches one package's detail, honoring the on-disk
// cache. A failure here is non-fatal to the scan; the caller skips the
// dataset.
func (c *Client) DatasetDetails(ctx context.Context, id string) (*Dataset, error) {
	if body, ok := c.readCache(id); ok {
		if ds, err := decodeDataset(body); err == nil {
			return ds, nil
		}
		// Corrupt cache entry: fall through to a fresh fetch.
	}

	endpoint := fmt.Sprintf("%s/api/3/action/package_show?id=%s", c.baseURL, url.QueryEscape(id))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}

	ds, err := decodeDataset(body)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}

	c.writeCache(id, body)
	return ds, nil
}

func decodeDataset(body []byte) (*Dataset, error) {
	var detail struct {
		Result *Dataset `json:"result"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, err
	}
	if detail.Result == nil {
		return nil, fmt.Errorf("response has no result object")
	}
	return detail.Result, nil
}

// get performs a GET with the shared retry policy. 4xx statuses are
// non-transient and never retried; 5xx and network failures are.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte

	err := c.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

func (c *Client) cachePath(id string) string {
	// Dataset ids are slugs, but keep path traversal impossible anyway.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
	return filepath.Join(c.cacheDir, safe+".json")
}

func (c *Client) readCache(id string) ([]byte, bool) {
	if c.cacheDir == "" || c.cacheTTL <= 0 {
		return nil, false
	}
	path := c.cachePath(id)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(info.ModTime()) >= c.cacheTTL {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if c.verbose {
		log.Printf("[CACHE] hit for dataset %s", id)
	}
	return data, true
}

// writeCache stores the raw response with a write-then-rename so a
// concurrent reader never observes a partial file.
func (c *Client) writeCache(id string, body []byte) {
	if c.cacheDir == "" || c.cacheTTL <= 0 {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return
	}

	path := c.cachePath(id)
	tmp, err := os.CreateTemp(c.cacheDir, ".tmp-*")
	if err != nil {
		return
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
	}
}
