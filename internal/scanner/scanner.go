// Package scanner drives the scan: enumerate datasets, download each
// resource, extract text, find CPFs, persist findings. One bad resource
// or dataset never aborts the run; only a failed dataset listing does.
package scanner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digimosa/cpf-portal-scan/internal/extractor"
	"github.com/digimosa/cpf-portal-scan/internal/models"
	"github.com/digimosa/cpf-portal-scan/internal/obs"
	"github.com/digimosa/cpf-portal-scan/internal/parser"
	"github.com/digimosa/cpf-portal-scan/internal/portal"
	"github.com/digimosa/cpf-portal-scan/internal/progress"
	"github.com/digimosa/cpf-portal-scan/internal/retry"
)

// PortalAPI is the upstream CKAN boundary.
type PortalAPI interface {
	ListAllDatasetIDs(ctx context.Context) ([]string, error)
	DatasetDetails(ctx context.Context, id string) (*portal.Dataset, error)
}

// FindingStore persists findings. UpsertFinding must not panic or
// propagate transient failures; it reports them as false.
type FindingStore interface {
	UpsertFinding(f models.ScanFinding) bool
}

// ResourceDownloader fetches one URL to a scratch path.
type ResourceDownloader interface {
	DownloadWithRetry(ctx context.Context, url, dest, expectedFormat string, policy retry.Policy) models.DownloadResult
}

type Options struct {
	// Workers > 1 enables the bounded pool over a dataset's resources.
	Workers int
	Policy  retry.Policy
	// ScratchRoot hosts the per-run temp directory; default os.TempDir().
	ScratchRoot string
	Verbose     bool
}

type Scanner struct {
	portal     PortalAPI
	store      FindingStore
	downloader ResourceDownloader
	sink       progress.Sink

	workers     int
	policy      retry.Policy
	scratchRoot string
	verbose     bool

	mu       sync.Mutex
	progress models.ScanProgress
}

func New(api PortalAPI, store FindingStore, dl ResourceDownloader, sink progress.Sink, opts Options) *Scanner {
	if sink == nil {
		sink = progress.NopSink{}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	scratchRoot := opts.ScratchRoot
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Scanner{
		portal:      api,
		store:       store,
		downloader:  dl,
		sink:        sink,
		workers:     workers,
		policy:      opts.Policy,
		scratchRoot: scratchRoot,
		verbose:     opts.Verbose,
	}
}

// Scan runs one full pass over the portal. It holds no durable state:
// a crashed run is simply re-run, and idempotent upserts make the
// repeat safe. The returned snapshot carries the final counters.
func (s *Scanner) Scan(ctx context.Context) (models.ScanProgress, error) {
	s.mu.Lock()
	s.progress = models.ScanProgress{
		Status:    models.StatusRunning,
		StartTime: time.Now(),
	}
	s.mu.Unlock()
	s.emit("listing datasets")

	ids, err := s.portal.ListAllDatasetIDs(ctx)
	if err != nil {
		// The only scan-level fatal error.
		s.finish(models.StatusFailed, fmt.Sprintf("dataset listing failed: %v", err))
		return s.snapshot(), err
	}

	if len(ids) == 0 {
		// Zero work is a successful scan, not a failure.
		s.finish(models.StatusCompleted, "completed: portal has no datasets")
		return s.snapshot(), nil
	}

	scratch := filepath.Join(s.scratchRoot, "cpf-scan-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		s.finish(models.StatusFailed, fmt.Sprintf("scratch dir: %v", err))
		return s.snapshot(), err
	}
	// Cleanup runs on every exit path: completion, cancellation, fatal.
	defer os.RemoveAll(scratch)

	for i, id := range ids {
		// Cancellation is polled between resources and datasets, never
		// mid-download.
		if ctx.Err() != nil {
			s.finish(models.StatusCancelled, fmt.Sprintf("cancelled at dataset %d/%d", i+1, len(ids)))
			return s.snapshot(), ctx.Err()
		}

		s.emit(fmt.Sprintf("dataset %d/%d: %s", i+1, len(ids), id))
		s.processDataset(ctx, id, scratch)

		s.mu.Lock()
		s.progress.DatasetsProcessed++
		s.mu.Unlock()
		obs.IncDatasets()
	}

	s.finish(models.StatusCompleted, "completed")
	return s.snapshot(), nil
}

// processDataset absorbs every per-dataset failure, including panics
// out of the parsing libraries, so the loop always reaches the next
// dataset.
func (s *Scanner) processDataset(ctx context.Context, id, scratch string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] dataset %s: panic during processing: %v", id, r)
			s.mu.Lock()
			s.progress.ResourceErrors++
			s.mu.Unlock()
		}
	}()

	ds, err := s.portal.DatasetDetails(ctx, id)
	if err != nil {
		log.Printf("[SKIP] dataset %s: detail fetch failed: %v", id, err)
		return
	}
	if ds == nil || len(ds.Resources) == 0 {
		if s.verbose {
			log.Printf("[SCAN] dataset %s: no resources", id)
		}
		return
	}

	resources := make([]models.ResourceDescriptor, 0, len(ds.Resources))
	for _, r := range ds.Resources {
		resources = append(resources, models.ResourceDescriptor{
			ResourceID:       r.ID,
			DatasetID:        id,
			DatasetName:      ds.Title,
			OrganizationName: ds.Organization.Title,
			Name:             r.Name,
			URL:              r.URL,
			Format:           strings.ToLower(strings.TrimSpace(r.Format)),
		})
	}

	if s.workers <= 1 {
		for _, res := range resources {
			if ctx.Err() != nil {
				return
			}
			s.processResource(ctx, res, scratch)
		}
		return
	}

	// Bounded pool: at most s.workers in-flight resources. Counter and
	// sink updates stay serialized behind s.mu.
	jobs := make(chan models.ResourceDescriptor)
	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for res := range jobs {
				if ctx.Err() != nil {
					continue
				}
				s.processResource(ctx, res, scratch)
			}
		}()
	}
	for _, res := range resources {
		jobs <- res
	}
	close(jobs)
	wg.Wait()
}

// processResource runs one resource through download, validation,
// parsing and extraction. The scratch file is removed on every path.
func (s *Scanner) processResource(ctx context.Context, res models.ResourceDescriptor, scratch string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] resource %s (dataset %s): panic: %v", res.ResourceID, res.DatasetID, r)
			s.account(res, 0, false, true)
		}
	}()

	if res.URL == "" {
		if s.verbose {
			log.Printf("[SKIP] resource %s (dataset %s): no url", res.ResourceID, res.DatasetID)
		}
		s.account(res, 0, true, false)
		return
	}

	dest := filepath.Join(scratch, scratchName(res))
	defer os.Remove(dest)

	result := s.downloader.DownloadWithRetry(ctx, res.URL, dest, res.Format, s.policy)
	if !result.Success {
		log.Printf("[SKIP] resource %s (dataset %s) url=%s: download failed after %d attempt(s): %s",
			res.ResourceID, res.DatasetID, res.URL, result.Attempts, result.Reason)
		obs.IncSkipped(string(result.Reason))
		s.account(res, 0, false, true)
		return
	}

	text, err := parser.ForFormat(res.Format).Text(dest)
	if err != nil {
		// ParseError and TimeoutError both end here: not retried, the
		// root cause logged with the file.
		log.Printf("[ERROR] resource %s (dataset %s) url=%s: %v", res.ResourceID, res.DatasetID, res.URL, err)
		obs.IncSkipped("parse_error")
		s.account(res, 0, false, true)
		return
	}

	if strings.TrimSpace(text) == "" {
		if s.verbose {
			log.Printf("[SCAN] resource %s: no extractable text", res.ResourceID)
		}
		s.account(res, 0, true, false)
		return
	}

	cpfs := extractor.Extract(text)
	if len(cpfs) == 0 {
		s.account(res, 0, true, false)
		return
	}

	finding := models.ScanFinding{
		ResourceID:       res.ResourceID,
		DatasetID:        res.DatasetID,
		OrganizationName: res.OrganizationName,
		CPFs:             cpfs,
		Count:            len(cpfs),
		Metadata: map[string]string{
			"resource_name": res.Name,
			"resource_url":  res.URL,
			"format":        res.Format,
			"dataset_name":  res.DatasetName,
		},
		VerifiedAt: time.Now(),
	}

	if !s.store.UpsertFinding(finding) {
		// Logged by the store; the finding is lost for this run and a
		// future rescan regenerates it.
		log.Printf("[ERROR] resource %s (dataset %s): finding not persisted", res.ResourceID, res.DatasetID)
		s.account(res, 0, false, true)
		return
	}

	if s.verbose {
		log.Printf("[FOUND] resource %s (%s): %d valid CPF(s)", res.ResourceID, res.Name, len(cpfs))
	}
	obs.IncFindings()
	obs.AddCPFs(len(cpfs))
	s.account(res, len(cpfs), false, false)
}

// account updates the counters for one finished resource and pushes a
// snapshot to the sink. Exactly one of the three outcomes applies:
// a finding (cpfs > 0), a skip, or an error.
func (s *Scanner) account(res models.ResourceDescriptor, cpfs int, skipped, failed bool) {
	s.mu.Lock()
	s.progress.ResourcesProcessed++
	switch {
	case failed:
		s.progress.ResourceErrors++
	case skipped:
		s.progress.ResourcesSkipped++
	default:
		s.progress.ResourcesWithFindings++
		s.progress.TotalCPFs += int64(cpfs)
	}
	s.progress.CurrentStep = fmt.Sprintf("processed resource %s of dataset %s", res.ResourceID, res.DatasetID)
	s.progress.UpdatedAt = time.Now()
	snapshot := s.progress
	s.mu.Unlock()

	obs.IncResources()
	s.sink.Update(snapshot)
}

func (s *Scanner) emit(step string) {
	s.mu.Lock()
	s.progress.CurrentStep = step
	s.progress.UpdatedAt = time.Now()
	snapshot := s.progress
	s.mu.Unlock()
	s.sink.Update(snapshot)
}

func (s *Scanner) finish(status models.ScanStatus, step string) {
	s.mu.Lock()
	s.progress.Status = status
	s.progress.EndTime = time.Now()
	s.mu.Unlock()
	s.emit(step)
}

func (s *Scanner) snapshot() models.ScanProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// scratchName builds a safe scratch filename carrying the format label
// as extension so parser dispatch by path also works.
func scratchName(res models.ResourceDescriptor) string {
	id := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(res.ResourceID)
	if id == "" {
		id = uuid.NewString()
	}
	ext := strings.TrimPrefix(res.Format, ".")
	if ext == "" {
		return id
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return id
		}
	}
	return id + "." + ext
}
