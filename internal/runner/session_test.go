package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/models"
)

func newTestTracker() *SessionTracker {
	return NewSessionTracker(logger.NewRunLogger(quietLogger()))
}

func TestSessionTrackerStart(t *testing.T) {
	tracker := newTestTracker()

	summary := tracker.Start("nightly")
	assert.Equal(t, "nightly", summary.Name)
	assert.Equal(t, 0, summary.Total)

	_, active := tracker.Snapshot()
	assert.True(t, active)
}

func TestSessionTrackerStartGeneratesName(t *testing.T) {
	tracker := newTestTracker()

	summary := tracker.Start("")
	assert.Contains(t, summary.Name, "Session_")
}

func TestSessionTrackerRecordsResults(t *testing.T) {
	tracker := newTestTracker()
	tracker.Start("batch")

	tracker.RecordResult(true)
	tracker.RecordResult(true)
	snapshot := tracker.RecordResult(false)

	assert.Equal(t, 3, snapshot.Total)
	assert.Equal(t, 2, snapshot.Succeeded)
	assert.Equal(t, 1, snapshot.Failed)
	assert.InDelta(t, 66.66, snapshot.SuccessRate(), 0.01)
}

func TestSessionTrackerIgnoresResultsWhenIdle(t *testing.T) {
	tracker := newTestTracker()

	snapshot := tracker.RecordResult(true)
	assert.Equal(t, 0, snapshot.Total)
}

func TestSessionTrackerFinish(t *testing.T) {
	tracker := newTestTracker()
	tracker.Start("batch")
	tracker.RecordResult(true)

	final := tracker.Finish()
	assert.Equal(t, 1, final.Total)

	_, active := tracker.Snapshot()
	assert.False(t, active)

	after := tracker.RecordResult(true)
	assert.Equal(t, 1, after.Total)
}

func TestSessionTrackerPublishesSnapshots(t *testing.T) {
	tracker := newTestTracker()

	var published []models.SessionSummary
	tracker.Subscribe(func(snapshot models.SessionSummary) {
		published = append(published, snapshot)
	})

	tracker.Start("batch")
	tracker.RecordResult(true)
	tracker.RecordResult(false)

	assert.Len(t, published, 2)
	assert.Equal(t, 1, published[0].Total)
	assert.Equal(t, 2, published[1].Total)
	assert.Equal(t, 1, published[1].Failed)
}
