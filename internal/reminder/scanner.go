// Package reminder periodically looks for borrow records that are overdue or
// due soon and queues a return reminder for each borrower.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"SMTS-backend/internal/lending"
	"SMTS-backend/internal/notify"
	"SMTS-backend/internal/platform/metrics"
)

// DueLister は lending.Service が満たす
type DueLister interface {
	ListOverdueOrSoonDue(ctx context.Context, horizon time.Duration) ([]lending.DueRecord, error)
}

type Scanner struct {
	due      DueLister
	events   notify.Publisher
	schedule cron.Schedule
	horizon  time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewScanner(due DueLister, events notify.Publisher, schedule cron.Schedule, horizon time.Duration, m *metrics.Metrics, log *slog.Logger) *Scanner {
	return &Scanner{
		due:      due,
		events:   events,
		schedule: schedule,
		horizon:  horizon,
		metrics:  m,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run は schedule の時刻ごとに ScanOnce を呼ぶ（UTC・前回が実行中ならスキップ）。ctx キャンセルで戻る
func (s *Scanner) Run(ctx context.Context) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.ScanOnce(ctx); err != nil {
			s.log.Error("reminder scan failed", "err", err)
		}
	}))

	c.Start()
	s.log.Info("reminder scanner started",
		"next", s.schedule.Next(time.Now().UTC()).Format(time.RFC3339), "horizon", s.horizon.String())

	<-ctx.Done()
	<-c.Stop().Done()
}

// ScanOnce は対象件数を返す。キューが満杯で落ちた分も件数には含む
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	records, err := s.due.ListOverdueOrSoonDue(ctx, s.horizon)
	if err != nil {
		return 0, fmt.Errorf("list due records: %w", err)
	}
	s.metrics.SetOverdue(len(records))

	now := s.now()
	for _, r := range records {
		ev := notify.NewEvent(notify.KindReturnReminder, now)
		ev.RecordID = r.RecordID
		ev.PackageCode = r.PackageCode
		ev.Borrower = notify.Recipient{Name: r.BorrowerName, Email: r.BorrowerEmail}
		ev.Verifier = notify.Recipient{Name: r.VerifierName}
		ev.BorrowedAt = r.BorrowedAt
		ev.DueAt = r.DueAt
		s.events.Publish(ev)
	}
	if len(records) > 0 {
		s.log.Info("return reminders queued", "count", len(records))
	}
	return len(records), nil
}
