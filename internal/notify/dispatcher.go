package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"SMTS-backend/internal/platform/auth"
	"SMTS-backend/internal/platform/metrics"
)

// Directory は管理者宛先の解決に使う（auth.Service が満たす）
type Directory interface {
	EmailsByRole(ctx context.Context, role auth.Role) ([]string, error)
}

type Dispatcher struct {
	sender  Sender
	alerter Alerter
	dir     Directory
	metrics *metrics.Metrics
	log     *slog.Logger
	timeout time.Duration
}

// alerter は nil 可
func NewDispatcher(sender Sender, alerter Alerter, dir Directory, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		alerter: alerter,
		dir:     dir,
		metrics: m,
		log:     log,
		timeout: 30 * time.Second,
	}
}

// Run は ctx がキャンセルされるまで workers 本で queue を消化する
func (d *Dispatcher) Run(ctx context.Context, q *Queue, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-q.Events():
					d.Handle(ctx, ev)
				}
			}
		}()
	}
	wg.Wait()
}

// Handle は失敗してもリトライしない。ログとメトリクスのみ
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	kind := string(ev.Kind)
	log := d.log.With("event_id", ev.ID, "kind", kind, "record_id", ev.RecordID)

	var admins []string
	if ev.Kind == KindReturnDiscrepancy {
		var err error
		admins, err = d.dir.EmailsByRole(ctx, auth.RoleAdmin)
		if err != nil {
			d.metrics.Notification(kind, metrics.ResultFailed)
			log.Warn("resolve admin recipients failed", "err", err)
		}
		if d.alerter != nil {
			if err := d.alerter.Alert(ctx, AlertText(ev)); err != nil {
				d.metrics.Notification(kind, metrics.ResultFailed)
				log.Warn("telegram alert failed", "err", err)
			} else {
				d.metrics.Notification(kind, metrics.ResultSent)
			}
		}
	}

	for _, msg := range Render(ev, admins) {
		if err := d.sender.Send(ctx, msg); err != nil {
			d.metrics.Notification(kind, metrics.ResultFailed)
			log.Warn("mail delivery failed", "to", msg.To, "subject", msg.Subject, "err", err)
			continue
		}
		d.metrics.Notification(kind, metrics.ResultSent)
		log.Debug("mail sent", "to", msg.To, "subject", msg.Subject)
	}
}
