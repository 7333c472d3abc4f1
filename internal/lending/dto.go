package lending

import "time"

type BorrowRequest struct {
	PackageID  int64 `json:"packageId" binding:"required"`
	VerifierID int64 `json:"verifierId" binding:"required"`
}

type VerifyReturnRequest struct {
	// 0 も有効値なのでポインタ
	ReturnedSamples *int   `json:"returnedSamples" binding:"required"`
	Justification   string `json:"justification"`
}

type BorrowRecordResponse struct {
	ID              int64      `json:"id"`
	PackageID       int64      `json:"packageId"`
	BorrowerID      int64      `json:"borrowerId"`
	VerifierID      int64      `json:"verifierId"`
	BorrowedAt      time.Time  `json:"borrowedAt"`
	DueAt           time.Time  `json:"dueAt"`
	ReturnedAt      *time.Time `json:"returnedAt,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	ExpectedSamples int        `json:"expectedSamples"`
	ReturnedSamples *int       `json:"returnedSamples,omitempty"`
	Justification   *string    `json:"justification,omitempty"`
	Status          string     `json:"status"`
}

func toRecordResponse(r BorrowRecord) BorrowRecordResponse {
	return BorrowRecordResponse{
		ID:              r.ID,
		PackageID:       r.PackageID,
		BorrowerID:      r.BorrowerID,
		VerifierID:      r.VerifierID,
		BorrowedAt:      r.BorrowedAt,
		DueAt:           r.DueAt,
		ReturnedAt:      r.ReturnedAt,
		VerifiedAt:      r.VerifiedAt,
		ExpectedSamples: r.ExpectedSamples,
		ReturnedSamples: r.ReturnedSamples,
		Justification:   r.Justification,
		Status:          string(r.Status),
	}
}

type HistoryItem struct {
	ID              int64      `json:"id"`
	PackageID       int64      `json:"packageId"`
	PackageCode     string     `json:"packageCode"`
	Cabinet         string     `json:"cabinet"`
	BorrowerID      int64      `json:"borrowerId"`
	Borrower        string     `json:"borrower"`
	VerifierID      int64      `json:"verifierId"`
	Verifier        string     `json:"verifier"`
	BorrowedAt      time.Time  `json:"borrowedAt"`
	DueAt           time.Time  `json:"dueAt"`
	ReturnedAt      *time.Time `json:"returnedAt,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	ExpectedSamples int        `json:"expectedSamples"`
	ReturnedSamples *int       `json:"returnedSamples,omitempty"`
	Justification   *string    `json:"justification,omitempty"`
	Status          string     `json:"status"`
}

func toHistoryItem(r historyRow) HistoryItem {
	it := HistoryItem{
		ID:              r.ID,
		PackageID:       r.PackageID,
		PackageCode:     r.PackageCode.String,
		Cabinet:         r.Cabinet.String,
		BorrowerID:      r.BorrowerID,
		Borrower:        r.BorrowerName.String,
		VerifierID:      r.VerifierID,
		Verifier:        r.VerifierName.String,
		BorrowedAt:      r.BorrowedAt.UTC(),
		DueAt:           r.DueAt.UTC(),
		ReturnedAt:      nullTimePtr(r.ReturnedAt),
		VerifiedAt:      nullTimePtr(r.VerifiedAt),
		ExpectedSamples: r.ExpectedSamples,
		Status:          r.Status,
	}
	if r.ReturnedSamples.Valid {
		n := int(r.ReturnedSamples.Int64)
		it.ReturnedSamples = &n
	}
	if r.Justification.Valid {
		v := r.Justification.String
		it.Justification = &v
	}
	return it
}

type DueRecordResponse struct {
	RecordID      int64     `json:"recordId"`
	PackageID     int64     `json:"packageId"`
	PackageCode   string    `json:"packageCode"`
	BorrowerID    int64     `json:"borrowerId"`
	Borrower      string    `json:"borrower"`
	BorrowerEmail string    `json:"borrowerEmail"`
	Verifier      string    `json:"verifier"`
	BorrowedAt    time.Time `json:"borrowedAt"`
	DueAt         time.Time `json:"dueAt"`
	Overdue       bool      `json:"overdue"`
}

func toDueResponse(d DueRecord, now time.Time) DueRecordResponse {
	return DueRecordResponse{
		RecordID:      d.RecordID,
		PackageID:     d.PackageID,
		PackageCode:   d.PackageCode,
		BorrowerID:    d.BorrowerID,
		Borrower:      d.BorrowerName,
		BorrowerEmail: d.BorrowerEmail,
		Verifier:      d.VerifierName,
		BorrowedAt:    d.BorrowedAt,
		DueAt:         d.DueAt,
		Overdue:       !d.DueAt.After(now),
	}
}
