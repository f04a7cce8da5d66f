// Package progress externalizes scan state. The orchestrator calls the
// sink after every resource; where the snapshot lands (file, memory,
// nothing) is the sink's business.
package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/digimosa/cpf-portal-scan/internal/models"
)

// Sink receives progress snapshots. Implementations must tolerate
// being called once per resource without slowing the scan down.
type Sink interface {
	Update(p models.ScanProgress)
}

// NopSink discards snapshots.
type NopSink struct{}

func (NopSink) Update(models.ScanProgress) {}

// MemorySink keeps the latest snapshot. Used by tests and the CLI's
// final summary.
type MemorySink struct {
	mu      sync.Mutex
	last    models.ScanProgress
	updates int
}

func (s *MemorySink) Update(p models.ScanProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = p
	s.updates++
}

func (s *MemorySink) Last() models.ScanProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *MemorySink) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// FileSink rewrites a JSON status file on every update so external
// dashboards can poll it. Write-then-rename keeps readers from seeing
// a half-written snapshot.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Update(p models.ScanProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
	}
}

// Fanout forwards each snapshot to every sink.
func Fanout(sinks ...Sink) Sink {
	return fanout(sinks)
}

type fanout []Sink

func (f fanout) Update(p models.ScanProgress) {
	for _, s := range f {
		s.Update(p)
	}
}
