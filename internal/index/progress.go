package index

import (
	"sync"
	"time"

	"github.com/Aman-CERP/storyvec/internal/document"
)

// Status is the overall state of the latest indexing run.
type Status string

const (
	// StatusIdle means no run has started yet.
	StatusIdle Status = "idle"
	// StatusIndexing indicates a run is in progress.
	StatusIndexing Status = "indexing"
	// StatusReady means the last run finished with every batch stored.
	StatusReady Status = "ready"
	// StatusPartial means the last run finished with failed batches.
	StatusPartial Status = "partial"
	// StatusError means the last run could not complete.
	StatusError Status = "error"
)

// Stage is the current stage of a run.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageEmbedding  Stage = "embedding"
	StageDone       Stage = "done"
)

// ProgressSnapshot is an immutable copy of Progress.
type ProgressSnapshot struct {
	Status           string  `json:"status"`
	Stage            string  `json:"stage,omitempty"`
	ContentType      string  `json:"content_type,omitempty"`
	DocumentsTotal   int     `json:"documents_total"`
	DocumentsIndexed int     `json:"documents_indexed"`
	BatchesTotal     int     `json:"batches_total"`
	BatchesDone      int     `json:"batches_done"`
	BatchesFailed    int     `json:"batches_failed"`
	ProgressPct      float64 `json:"progress_pct"`
	ElapsedSeconds   int     `json:"elapsed_seconds"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// StatusReport is the latest run of every content type plus an overall
// status: the most pressing one among them.
type StatusReport struct {
	Status string                      `json:"status"`
	Types  map[string]ProgressSnapshot `json:"types"`
}

// statusPrecedence orders statuses from most to least pressing.
var statusPrecedence = []Status{StatusIndexing, StatusError, StatusPartial, StatusReady}

// NewStatusReport combines per-type snapshots.
func NewStatusReport(snaps map[document.ContentType]ProgressSnapshot) StatusReport {
	report := StatusReport{
		Status: string(StatusIdle),
		Types:  make(map[string]ProgressSnapshot, len(snaps)),
	}
	for ct, snap := range snaps {
		report.Types[string(ct)] = snap
	}
	for _, st := range statusPrecedence {
		for _, snap := range snaps {
			if snap.Status == string(st) {
				report.Status = string(st)
				return report
			}
		}
	}
	return report
}

// Progress tracks the latest indexing run over one content type. It is
// safe for concurrent use; the server reads it while a background run
// writes it.
type Progress struct {
	mu sync.RWMutex

	status           Status
	stage            Stage
	contentType      document.ContentType
	documentsTotal   int
	documentsIndexed int
	batchesTotal     int
	batchesDone      int
	batchesFailed    int
	startTime        time.Time
	endTime          time.Time
	errorMessage     string
}

// NewProgress creates an idle tracker.
func NewProgress() *Progress {
	return &Progress{status: StatusIdle}
}

// Start resets the tracker for a run over ct.
func (p *Progress) Start(ct document.ContentType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.stage = StageExtracting
	p.contentType = ct
	p.documentsTotal, p.documentsIndexed = 0, 0
	p.batchesTotal, p.batchesDone, p.batchesFailed = 0, 0, 0
	p.startTime = time.Now()
	p.endTime = time.Time{}
	p.errorMessage = ""
}

// SetBatches enters the embedding stage with the given totals.
func (p *Progress) SetBatches(documents, batches int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = StageEmbedding
	p.documentsTotal = documents
	p.batchesTotal = batches
}

// BatchDone records a finished batch of n documents.
func (p *Progress) BatchDone(n int, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batchesDone++
	if failed {
		p.batchesFailed++
		return
	}
	p.documentsIndexed += n
}

// Finish marks the run complete.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = StageDone
	p.endTime = time.Now()
	if p.batchesFailed > 0 {
		p.status = StatusPartial
	} else {
		p.status = StatusReady
	}
}

// SetError marks the run as failed with an error message.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.endTime = time.Now()
	p.errorMessage = message
}

// IsIndexing returns true while a run is in progress.
func (p *Progress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns an immutable copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.batchesTotal > 0 {
		progressPct = float64(p.batchesDone) / float64(p.batchesTotal) * 100.0
	}

	var elapsed time.Duration
	switch {
	case p.startTime.IsZero():
	case p.endTime.IsZero():
		elapsed = time.Since(p.startTime)
	default:
		elapsed = p.endTime.Sub(p.startTime)
	}

	return ProgressSnapshot{
		Status:           string(p.status),
		Stage:            string(p.stage),
		ContentType:      string(p.contentType),
		DocumentsTotal:   p.documentsTotal,
		DocumentsIndexed: p.documentsIndexed,
		BatchesTotal:     p.batchesTotal,
		BatchesDone:      p.batchesDone,
		BatchesFailed:    p.batchesFailed,
		ProgressPct:      progressPct,
		ElapsedSeconds:   int(elapsed.Seconds()),
		ErrorMessage:     p.errorMessage,
	}
}
