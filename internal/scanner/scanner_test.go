package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digimosa/cpf-portal-scan/internal/models"
	"github.com/digimosa/cpf-portal-scan/internal/portal"
	"github.com/digimosa/cpf-portal-scan/internal/progress"
	"github.com/digimosa/cpf-portal-scan/internal/retry"
)

type fakePortal struct {
	ids      []string
	listErr  error
	datasets map[string]*portal.Dataset
	failIDs  map[string]bool
}

func (f *fakePortal) ListAllDatasetIDs(ctx context.Context) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakePortal) DatasetDetails(ctx context.Context, id string) (*portal.Dataset, error) {
	if f.failIDs[id] {
		return nil, errors.New("detail fetch blew up")
	}
	return f.datasets[id], nil
}

type fakeStore struct {
	mu       sync.Mutex
	findings map[string]models.ScanFinding
	fail     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{findings: make(map[string]models.ScanFinding)}
}

func (f *fakeStore) UpsertFinding(finding models.ScanFinding) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false
	}
	f.findings[finding.ResourceID] = finding
	return true
}

// fakeDownloader writes canned content per URL instead of hitting the
// network.
type fakeDownloader struct {
	mu       sync.Mutex
	content  map[string][]byte
	failURLs map[string]models.FailureReason
	calls    int
}

func (f *fakeDownloader) DownloadWithRetry(ctx context.Context, url, dest, format string, policy retry.Policy) models.DownloadResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if reason, ok := f.failURLs[url]; ok {
		return models.DownloadResult{Reason: reason, Attempts: 1}
	}
	data, ok := f.content[url]
	if !ok {
		return models.DownloadResult{Reason: models.ReasonNetworkError, Attempts: 1}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return models.DownloadResult{Reason: models.ReasonWriteFailed, Attempts: 1}
	}
	return models.DownloadResult{Success: true, Path: dest, Size: int64(len(data)), Attempts: 1}
}

func zeroSleepPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 1, Backoff: retry.ExponentialBackoff, Sleep: func(time.Duration) {}}
}

func csvDataset(id string) *portal.Dataset {
	ds := &portal.Dataset{ID: id, Title: "Servidores " + id}
	ds.Organization.Title = "Prefeitura"
	ds.Resources = []portal.Resource{
		{ID: id + "-r1", Name: "folha", URL: "http://portal/" + id + "/folha.csv", Format: "CSV"},
	}
	return ds
}

// End-to-end: one CSV resource with one mathematically valid CPF and
// one repeated-digit sequence. Only the valid one is persisted.
func TestScanEndToEndCSV(t *testing.T) {
	api := &fakePortal{
		ids:      []string{"ds1"},
		datasets: map[string]*portal.Dataset{"ds1": csvDataset("ds1")},
	}
	store := newFakeStore()
	dl := &fakeDownloader{content: map[string][]byte{
		"http://portal/ds1/folha.csv": []byte("João,123.456.789-09\nMaria,000.000.000-00\n"),
	}}
	sink := &progress.MemorySink{}

	s := New(api, store, dl, sink, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})
	final, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, int64(1), final.DatasetsProcessed)
	assert.Equal(t, int64(1), final.ResourcesProcessed)
	assert.Equal(t, int64(1), final.ResourcesWithFindings)
	assert.Equal(t, int64(1), final.TotalCPFs)
	assert.False(t, final.EndTime.IsZero())

	finding, ok := store.findings["ds1-r1"]
	require.True(t, ok)
	assert.Equal(t, []string{"12345678909"}, finding.CPFs)
	assert.Equal(t, 1, finding.Count)
	assert.Equal(t, "ds1", finding.DatasetID)
	assert.Equal(t, "Prefeitura", finding.OrganizationName)
	assert.Equal(t, "csv", finding.Metadata["format"])

	// The sink saw the listing step plus the resource.
	assert.GreaterOrEqual(t, sink.Updates(), 2)
}

// An empty portal completes with zero counters and touches neither the
// downloader nor the store.
func TestScanEmptyPortal(t *testing.T) {
	api := &fakePortal{ids: nil}
	store := newFakeStore()
	dl := &fakeDownloader{}

	s := New(api, store, dl, &progress.MemorySink{}, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})
	final, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Zero(t, final.DatasetsProcessed)
	assert.Zero(t, final.ResourcesProcessed)
	assert.Zero(t, final.TotalCPFs)
	assert.Zero(t, dl.calls)
	assert.Empty(t, store.findings)
}

// Dataset #2's detail fetch throwing must not stop datasets #1 and #3.
func TestScanSurvivesFailingDataset(t *testing.T) {
	api := &fakePortal{
		ids: []string{"ds1", "ds2", "ds3"},
		datasets: map[string]*portal.Dataset{
			"ds1": csvDataset("ds1"),
			"ds3": csvDataset("ds3"),
		},
		failIDs: map[string]bool{"ds2": true},
	}
	store := newFakeStore()
	dl := &fakeDownloader{content: map[string][]byte{
		"http://portal/ds1/folha.csv": []byte("x,529.982.247-25\n"),
		"http://portal/ds3/folha.csv": []byte("y,111.444.777-35\n"),
	}}

	s := New(api, store, dl, nil, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})
	final, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, int64(3), final.DatasetsProcessed)
	assert.Equal(t, int64(2), final.ResourcesWithFindings)
	assert.Len(t, store.findings, 2)
}

func TestScanListingFailureIsFatal(t *testing.T) {
	api := &fakePortal{listErr: errors.New("portal unreachable")}
	s := New(api, newFakeStore(), &fakeDownloader{}, nil, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})

	final, err := s.Scan(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.StatusFailed, final.Status)
}

func TestScanSkipsResourceWithoutURL(t *testing.T) {
	ds := csvDataset("ds1")
	ds.Resources = append(ds.Resources, portal.Resource{ID: "ds1-r2", Name: "sem url", Format: "csv"})
	api := &fakePortal{ids: []string{"ds1"}, datasets: map[string]*portal.Dataset{"ds1": ds}}
	store := newFakeStore()
	dl := &fakeDownloader{content: map[string][]byte{
		"http://portal/ds1/folha.csv": []byte("sem cpf aqui\n"),
	}}

	s := New(api, store, dl, nil, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})
	final, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), final.ResourcesProcessed)
	assert.Equal(t, int64(2), final.ResourcesSkipped) // no-text + no-url
	assert.Zero(t, final.ResourceErrors)
	assert.Equal(t, 1, dl.calls)
}

func TestScanCountsDownloadFailureAsError(t *testing.T) {
	api := &fakePortal{ids: []string{"ds1"}, datasets: map[string]*portal.Dataset{"ds1": csvDataset("ds1")}}
	store := newFakeStore()
	dl := &fakeDownloader{failURLs: map[string]models.FailureReason{
		"http://portal/ds1/folha.csv": models.ReasonHTMLErrorPage,
	}}

	s := New(api, store, dl, nil, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})
	final, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, int64(1), final.ResourceErrors)
	assert.Empty(t, store.findings)
}

func TestScanPersistenceFailureIsAbsorbed(t *testing.T) {
	api := &fakePortal{ids: []string{"ds1"}, datasets: map[string]*portal.Dataset{"ds1": csvDataset("ds1")}}
	store := newFakeStore()
	store.fail = true
	dl := &fakeDownloader{content: map[string][]byte{
		"http://portal/ds1/folha.csv": []byte("a,123.456.789-09\n"),
	}}

	s := New(api, store, dl, nil, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})
	final, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Zero(t, final.ResourcesWithFindings)
	assert.Equal(t, int64(1), final.ResourceErrors)
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &fakePortal{ids: []string{"ds1"}, datasets: map[string]*portal.Dataset{"ds1": csvDataset("ds1")}}
	s := New(api, newFakeStore(), &fakeDownloader{}, nil, Options{Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})

	final, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusCancelled, final.Status)
}

// The scratch directory must be gone after the scan, success or not.
func TestScanCleansScratchDir(t *testing.T) {
	root := t.TempDir()
	api := &fakePortal{ids: []string{"ds1"}, datasets: map[string]*portal.Dataset{"ds1": csvDataset("ds1")}}
	dl := &fakeDownloader{content: map[string][]byte{
		"http://portal/ds1/folha.csv": []byte("a,123.456.789-09\n"),
	}}

	s := New(api, newFakeStore(), dl, nil, Options{Policy: zeroSleepPolicy(), ScratchRoot: root})
	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// Worker-pool mode: counters must reflect exactly the completed set,
// never double counted, never skipped.
func TestScanWorkerPoolCounters(t *testing.T) {
	const resources = 40
	ds := &portal.Dataset{ID: "ds1", Title: "grande"}
	ds.Organization.Title = "Org"
	content := make(map[string][]byte, resources)
	for i := 0; i < resources; i++ {
		url := fmt.Sprintf("http://portal/ds1/res%02d.csv", i)
		ds.Resources = append(ds.Resources, portal.Resource{
			ID: fmt.Sprintf("r%02d", i), Name: "res", URL: url, Format: "csv",
		})
		if i%2 == 0 {
			content[url] = []byte("a,123.456.789-09\n")
		} else {
			content[url] = []byte("sem cpf\n")
		}
	}

	api := &fakePortal{ids: []string{"ds1"}, datasets: map[string]*portal.Dataset{"ds1": ds}}
	store := newFakeStore()
	dl := &fakeDownloader{content: content}
	sink := &progress.MemorySink{}

	s := New(api, store, dl, sink, Options{Workers: 8, Policy: zeroSleepPolicy(), ScratchRoot: t.TempDir()})
	final, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(resources), final.ResourcesProcessed)
	assert.Equal(t, int64(resources/2), final.ResourcesWithFindings)
	assert.Equal(t, int64(resources/2), final.ResourcesSkipped)
	assert.Equal(t, int64(resources/2), final.TotalCPFs)
	assert.Len(t, store.findings, resources/2)
}

func TestScratchName(t *testing.T) {
	res := models.ResourceDescriptor{ResourceID: "abc-123", Format: "csv"}
	assert.Equal(t, "abc-123.csv", scratchName(res))

	res = models.ResourceDescriptor{ResourceID: "../../etc/passwd", Format: "weird format!"}
	name := scratchName(res)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "..")
}
