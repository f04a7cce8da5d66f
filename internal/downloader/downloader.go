// Package downloader fetches one resource URL to a scratch file, with
// content validation before and after the write. On failure no file is
// left behind.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/digimosa/cpf-portal-scan/internal/models"
	"github.com/digimosa/cpf-portal-scan/internal/retry"
	"github.com/digimosa/cpf-portal-scan/internal/validator"
)

type Downloader struct {
	client    *http.Client
	validator *validator.ContentValidator
	userAgent string

	maxFileSize int64
	diskMargin  int64

	// freeSpace reports available bytes for the destination directory.
	// Injectable so tests do not depend on the host's disk.
	freeSpace func(dir string) (int64, error)

	verbose bool
}

type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	MaxFileSize  int64
	DiskMargin   int64
	Verbose      bool
}

func New(opts Options) *Downloader {
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	v := validator.New()
	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = validator.DefaultMaxSize
	}
	v.MaxSize = maxFileSize

	return &Downloader{
		client:      client,
		validator:   v,
		userAgent:   opts.UserAgent,
		maxFileSize: maxFileSize,
		diskMargin:  opts.DiskMargin,
		freeSpace:   statfsFree,
		verbose:     opts.Verbose,
	}
}

func statfsFree(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}

// Download fetches url into dest, validating the payload both before
// and after the write. It makes exactly one attempt.
func (d *Downloader) Download(ctx context.Context, rawURL, dest, expectedFormat string) models.DownloadResult {
	fail := func(reason models.FailureReason) models.DownloadResult {
		return models.DownloadResult{Reason: reason, Attempts: 1}
	}

	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fail(models.ReasonInvalidURL)
	}

	if d.diskMargin > 0 {
		free, err := d.freeSpace(filepath.Dir(dest))
		if err == nil && free < d.maxFileSize+d.diskMargin {
			return fail(models.ReasonInsufficientDisk)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail(models.ReasonInvalidURL)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fail(models.ReasonNetworkError)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(models.ReasonNetworkError)
	}

	// One byte past the cap is enough to know the payload is oversized
	// without buffering the rest.
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxFileSize+1))
	if err != nil {
		return fail(models.ReasonNetworkError)
	}
	if int64(len(data)) > d.maxFileSize {
		return fail(models.ReasonTooLarge)
	}

	if res := d.validator.ValidateContent(data, expectedFormat); !res.Valid {
		if d.verbose {
			log.Printf("[SKIP] %s rejected before write: %s", rawURL, res.Reason)
		}
		return fail(res.Reason)
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fail(models.ReasonWriteFailed)
	}

	// Defends against partial or truncated writes.
	if res := d.validator.ValidateFile(dest, expectedFormat); !res.Valid {
		os.Remove(dest)
		return fail(res.Reason)
	}

	return models.DownloadResult{
		Success:  true,
		Path:     dest,
		Size:     int64(len(data)),
		Attempts: 1,
	}
}

// DownloadWithRetry retries transient failures under the given policy.
// Validation rejections are final: the same URL yields the same bytes.
func (d *Downloader) DownloadWithRetry(ctx context.Context, rawURL, dest, expectedFormat string, policy retry.Policy) models.DownloadResult {
	var last models.DownloadResult
	attempts := 0

	err := policy.Do(ctx, func() error {
		attempts++
		last = d.Download(ctx, rawURL, dest, expectedFormat)
		if last.Success {
			return nil
		}
		err := fmt.Errorf("download %s: %s", rawURL, last.Reason)
		if !last.Reason.Transient() {
			return retry.Permanent(err)
		}
		return err
	})

	last.Attempts = attempts
	if err != nil && last.Reason == models.ReasonNone {
		// Cancellation between attempts.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			last.Reason = models.ReasonNetworkError
		}
	}
	return last
}
