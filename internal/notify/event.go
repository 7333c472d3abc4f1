// Package notify delivers lifecycle events (borrow, return discrepancy, reminder)
// by mail and Telegram, off the request path.
package notify

import (
	"time"

	ulid "github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindBorrowCreated     Kind = "borrow_created"
	KindReturnDiscrepancy Kind = "return_discrepancy"
	KindReturnReminder    Kind = "return_reminder"
)

type Recipient struct {
	Name  string
	Email string
}

type Event struct {
	ID          string
	Kind        Kind
	At          time.Time
	RecordID    int64
	PackageCode string
	Borrower    Recipient
	Verifier    Recipient
	BorrowedAt  time.Time
	DueAt       time.Time

	// return_discrepancy のみ
	ExpectedSamples int
	ReturnedSamples int
	Justification   string
}

// Publisher は呼び出し側をブロックしない
type Publisher interface {
	Publish(ev Event) bool
}

// NewEvent: ID は同一ミリ秒内でも単調増加（ulid.DefaultEntropy はプロセス共有でロック付き）
func NewEvent(kind Kind, at time.Time) Event {
	return Event{
		ID:   ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Kind: kind,
		At:   at,
	}
}
