package index

import (
	"time"

	"github.com/Aman-CERP/storyvec/internal/document"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/extract"
)

// Summary reports one indexing run over a content type.
type Summary struct {
	ContentType   document.ContentType `json:"content_type"`
	Collection    string               `json:"collection"`
	Model         string               `json:"model"`
	Dimensions    int                  `json:"dimensions"`
	Documents     int                  `json:"documents"` // documents sent to batches
	Indexed       int                  `json:"indexed"`
	Skipped       int                  `json:"skipped"`   // units rejected during extraction or normalization
	Unchanged     int                  `json:"unchanged"` // files left alone by incremental mode
	Failed        int                  `json:"failed"`    // documents in failed batches
	Batches       int                  `json:"batches"`
	FailedBatches []BatchFailure       `json:"failed_batches"`
	SkippedUnits  []extract.Skip       `json:"skipped_units,omitempty"`
	Duration      time.Duration        `json:"duration_ns"`

	// Error is set when the collection could not be prepared for the run.
	Error string `json:"error,omitempty"`

	preflightErr error
}

// BatchFailure records a batch that still failed after its retry.
type BatchFailure struct {
	Index int      `json:"index"`
	IDs   []string `json:"ids"`
	Code  string   `json:"code,omitempty"`
	Kind  string   `json:"kind"`
	Error string   `json:"error"`

	err error
}

// Err returns the error that failed the batch.
func (f BatchFailure) Err() error {
	return f.err
}

// OK reports whether the collection was prepared and every batch succeeded.
func (s *Summary) OK() bool {
	return len(s.FailedBatches) == 0 && s.preflightErr == nil
}

func newBatchFailure(index int, ids []string, err error) BatchFailure {
	return BatchFailure{
		Index: index,
		IDs:   ids,
		Code:  sverrors.GetCode(err),
		Kind:  string(sverrors.KindOf(err)),
		Error: err.Error(),
		err:   err,
	}
}
