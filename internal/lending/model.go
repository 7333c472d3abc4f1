package lending

import (
	"time"

	"SMTS-backend/internal/platform/auth"
)

type Status string

const (
	StatusInProgress          Status = "In Progress"
	StatusPending             Status = "Pending"
	StatusReturned            Status = "Returned"
	StatusReturnedWithRemarks Status = "Returned with Remarks"
)

// Open: 在庫がまだ戻っていない状態
func (s Status) Open() bool { return s == StatusInProgress || s == StatusPending }

func parseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusInProgress, StatusPending, StatusReturned, StatusReturnedWithRemarks:
		return st, true
	}
	return "", false
}

const (
	// 貸出期限
	DueWindow = 24 * time.Hour
	// 期限間近の既定の先読み幅
	DefaultHorizon = 2 * time.Hour
)

// Reconcile は貸出時のスナップショットと返却数を比べる
func Reconcile(expected, returned int) Status {
	if returned == expected {
		return StatusReturned
	}
	return StatusReturnedWithRemarks
}

// BorrowRecord は borrow_records テーブルの1行
type BorrowRecord struct {
	ID              int64
	PackageID       int64
	BorrowerID      int64
	VerifierID      int64
	BorrowedAt      time.Time
	DueAt           time.Time
	ReturnedAt      *time.Time
	VerifiedAt      *time.Time
	ExpectedSamples int
	ReturnedSamples *int
	Justification   *string
	Status          Status
}

type packageRow struct {
	ID          int64
	Code        string
	Available   string
	TotalSample int
}

type party struct {
	ID       int64
	Username string
	Email    string
	Role     auth.Role
}

// DueRecord は期限切れ/期限間近の貸出（リマインダ用）
type DueRecord struct {
	RecordID      int64
	PackageID     int64
	PackageCode   string
	BorrowerID    int64
	BorrowerName  string
	BorrowerEmail string
	VerifierName  string
	BorrowedAt    time.Time
	DueAt         time.Time
}

// 履歴の絞り込み（ロールで決まる）
type HistoryFilter struct {
	BorrowerID *int64
	VerifierID *int64
	Status     *Status
	Limit      int
}
