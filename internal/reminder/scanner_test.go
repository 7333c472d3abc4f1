package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMTS-backend/internal/lending"
	"SMTS-backend/internal/notify"
	"SMTS-backend/internal/platform/logger"
	"SMTS-backend/internal/platform/metrics"
)

type fakeLister struct {
	mu       sync.Mutex
	records  []lending.DueRecord
	err      error
	horizons []time.Duration
}

func (f *fakeLister) ListOverdueOrSoonDue(_ context.Context, horizon time.Duration) ([]lending.DueRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.horizons = append(f.horizons, horizon)
	return f.records, f.err
}

func (f *fakeLister) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.horizons)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *fakePublisher) Publish(ev notify.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

// every は固定間隔の cron.Schedule
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func TestScanOncePublishesOneReminderPerRecord(t *testing.T) {
	due := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	lister := &fakeLister{records: []lending.DueRecord{
		{RecordID: 1, PackageCode: "QFN-001", BorrowerName: "eng", BorrowerEmail: "eng@example.com", DueAt: due},
		{RecordID: 2, PackageCode: "QFN-002", BorrowerName: "eng2", BorrowerEmail: "eng2@example.com", DueAt: due},
	}}
	pub := &fakePublisher{}
	m := metrics.New()
	s := NewScanner(lister, pub, every(time.Hour), 2*time.Hour, m, logger.Discard())

	n, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []time.Duration{2 * time.Hour}, lister.horizons)

	require.Len(t, pub.events, 2)
	for i, ev := range pub.events {
		assert.Equal(t, notify.KindReturnReminder, ev.Kind)
		assert.Equal(t, lister.records[i].RecordID, ev.RecordID)
		assert.Equal(t, lister.records[i].BorrowerEmail, ev.Borrower.Email)
		assert.True(t, due.Equal(ev.DueAt))
	}

	g, err := testutil.GatherAndCount(m.Registry(), "lending_overdue_records")
	require.NoError(t, err)
	assert.Equal(t, 1, g)
}

func TestScanOnceReturnsListError(t *testing.T) {
	pub := &fakePublisher{}
	s := NewScanner(&fakeLister{err: errors.New("db down")}, pub, every(time.Hour), time.Hour, nil, logger.Discard())

	_, err := s.ScanOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, pub.events)
}

func TestRunScansOnScheduleUntilCancelled(t *testing.T) {
	lister := &fakeLister{}
	s := NewScanner(lister, &fakePublisher{}, every(10*time.Millisecond), time.Hour, nil, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return lister.calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop")
	}
}
