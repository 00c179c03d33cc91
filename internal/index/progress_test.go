package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/storyvec/internal/document"
)

func TestProgress_Lifecycle(t *testing.T) {
	p := NewProgress()
	assert.Equal(t, string(StatusIdle), p.Snapshot().Status)
	assert.False(t, p.IsIndexing())

	p.Start(document.ContentTypeCaptions)
	assert.True(t, p.IsIndexing())
	assert.Equal(t, string(StageExtracting), p.Snapshot().Stage)

	p.SetBatches(130, 3)
	p.BatchDone(64, false)
	p.BatchDone(64, true)

	snap := p.Snapshot()
	assert.Equal(t, string(StageEmbedding), snap.Stage)
	assert.Equal(t, "captions", snap.ContentType)
	assert.Equal(t, 130, snap.DocumentsTotal)
	assert.Equal(t, 64, snap.DocumentsIndexed)
	assert.Equal(t, 2, snap.BatchesDone)
	assert.Equal(t, 1, snap.BatchesFailed)
	assert.InDelta(t, 66.67, snap.ProgressPct, 0.01)

	p.BatchDone(2, false)
	p.Finish()
	snap = p.Snapshot()
	assert.Equal(t, string(StatusPartial), snap.Status)
	assert.Equal(t, string(StageDone), snap.Stage)
	assert.False(t, p.IsIndexing())
}

func TestProgress_StartResets(t *testing.T) {
	p := NewProgress()
	p.Start(document.ContentTypeCaptions)
	p.SetBatches(10, 1)
	p.BatchDone(10, false)
	p.SetError("boom")

	p.Start(document.ContentTypeStories)
	p.SetBatches(0, 0)
	p.Finish()

	snap := p.Snapshot()
	assert.Equal(t, string(StatusReady), snap.Status)
	assert.Equal(t, "stories", snap.ContentType)
	assert.Zero(t, snap.DocumentsIndexed)
	assert.Empty(t, snap.ErrorMessage)
}

func TestProgress_ConcurrentAccess(t *testing.T) {
	p := NewProgress()
	p.Start(document.ContentTypeCaptions)
	p.SetBatches(1000, 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.BatchDone(10, false)
		}()
		go func() {
			defer wg.Done()
			_ = p.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, p.Snapshot().DocumentsIndexed)
}

func TestNewStatusReport_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		captions Status
		stories  Status
		want     Status
	}{
		{"nothing ran", StatusIdle, StatusIdle, StatusIdle},
		{"one ready", StatusReady, StatusIdle, StatusReady},
		{"running wins", StatusReady, StatusIndexing, StatusIndexing},
		{"error over partial", StatusError, StatusPartial, StatusError},
		{"partial over ready", StatusPartial, StatusReady, StatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewStatusReport(map[document.ContentType]ProgressSnapshot{
				document.ContentTypeCaptions: {Status: string(tt.captions)},
				document.ContentTypeStories:  {Status: string(tt.stories)},
			})

			assert.Equal(t, string(tt.want), report.Status)
			assert.Equal(t, string(tt.captions), report.Types["captions"].Status)
			assert.Equal(t, string(tt.stories), report.Types["stories"].Status)
		})
	}
}
