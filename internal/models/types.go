package models

import "time"

// FailureReason classifies why a download or content check was rejected.
// The set is closed; the orchestrator switches on it to decide skip vs retry.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonInvalidURL       FailureReason = "INVALID_URL"
	ReasonInsufficientDisk FailureReason = "INSUFFICIENT_DISK_SPACE"
	ReasonNetworkError     FailureReason = "NETWORK_ERROR"
	ReasonEmpty            FailureReason = "EMPTY"
	ReasonTooSmall         FailureReason = "TOO_SMALL"
	ReasonTooLarge         FailureReason = "TOO_LARGE"
	ReasonBadMagicHeader   FailureReason = "BAD_MAGIC_HEADER"
	ReasonHTMLErrorPage    FailureReason = "HTML_ERROR_PAGE"
	ReasonFileUnreadable   FailureReason = "FILE_UNREADABLE"
	ReasonWriteFailed      FailureReason = "WRITE_FAILED"
)

// Transient reports whether the failure is worth retrying. Validation
// rejections are final: fetching the same URL again yields the same bytes.
func (r FailureReason) Transient() bool {
	switch r {
	case ReasonNetworkError, ReasonWriteFailed:
		return true
	default:
		return false
	}
}

// ResourceDescriptor identifies one downloadable file within a dataset.
// Produced by the portal client, consumed by the orchestrator, discarded
// after the resource has been processed.
type ResourceDescriptor struct {
	ResourceID       string
	DatasetID        string
	DatasetName      string
	OrganizationName string
	Name             string
	URL              string
	Format           string // free-text label from the portal, lower-cased for dispatch
}

// DownloadResult is the outcome of fetching one resource.
type DownloadResult struct {
	Success  bool
	Path     string // scratch file on success
	Size     int64
	Reason   FailureReason
	Attempts int
}

// ScanFinding is the unit of persisted output: one resource that
// contained at least one checksum-valid CPF.
type ScanFinding struct {
	ResourceID       string            `json:"resource_id"`
	DatasetID        string            `json:"dataset_id"`
	OrganizationName string            `json:"organization_name"`
	CPFs             []string          `json:"cpfs"` // normalized 11-digit strings, deduplicated
	Count            int               `json:"count"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	VerifiedAt       time.Time         `json:"verified_at"`
}

// ScanStatus is the orchestrator's in-flight or terminal state.
type ScanStatus string

const (
	StatusNotStarted ScanStatus = "NotStarted"
	StatusRunning    ScanStatus = "Running"
	StatusCompleted  ScanStatus = "Completed"
	StatusCancelled  ScanStatus = "Cancelled"
	StatusFailed     ScanStatus = "Failed"
)

// ScanProgress is a snapshot of orchestration state handed to the
// progress sink after every resource. The core only writes it.
type ScanProgress struct {
	Status                ScanStatus `json:"status"`
	DatasetsProcessed     int64      `json:"datasets_processed"`
	ResourcesProcessed    int64      `json:"resources_processed"`
	ResourcesWithFindings int64      `json:"resources_with_findings"`
	ResourcesSkipped      int64      `json:"resources_skipped"` // processed but yielded nothing
	ResourceErrors        int64      `json:"resource_errors"`   // failed with a logged error
	TotalCPFs             int64      `json:"total_cpfs"`
	CurrentStep           string     `json:"current_step"`
	StartTime             time.Time  `json:"start_time"`
	UpdatedAt             time.Time  `json:"updated_at"`
	EndTime               time.Time  `json:"end_time"`
}
