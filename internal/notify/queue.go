package notify

import (
	"log/slog"

	"SMTS-backend/internal/platform/metrics"
)

// Queue は容量固定のイベントキュー。満杯なら捨てる
type Queue struct {
	ch      chan Event
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewQueue(size int, m *metrics.Metrics, log *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan Event, size), metrics: m, log: log}
}

func (q *Queue) Publish(ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.metrics.Notification(string(ev.Kind), metrics.ResultDropped)
		q.log.Warn("notification queue full, event dropped",
			"event_id", ev.ID, "kind", ev.Kind, "record_id", ev.RecordID)
		return false
	}
}

func (q *Queue) Events() <-chan Event { return q.ch }

func (q *Queue) Len() int { return len(q.ch) }
