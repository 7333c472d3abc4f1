package lending

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"SMTS-backend/internal/platform/auth"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var exportHeader = []any{
	"Record ID", "Package Code", "Cabinet", "Borrower", "Verifier",
	"Borrowed At", "Due At", "Returned At", "Verified At",
	"Expected Samples", "Returned Samples", "Justification", "Status",
}

func cellTime(t *time.Time) any {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// ExportHistory は履歴と同じ絞り込みで xlsx を書き出す
func (s *Service) ExportHistory(ctx context.Context, actor auth.Actor, w io.Writer) error {
	f, err := scopeFor(actor)
	if err != nil {
		return err
	}
	f.Limit = maxExportRows

	rows, err := s.store.History(ctx, f)
	if err != nil {
		return wrapInfra("export history", err)
	}

	x := excelize.NewFile()
	defer func() { _ = x.Close() }()

	sheet := x.GetSheetName(x.GetActiveSheetIndex())
	header := exportHeader
	if err := x.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		it := toHistoryItem(r)
		returned := any("")
		if it.ReturnedSamples != nil {
			returned = *it.ReturnedSamples
		}
		just := ""
		if it.Justification != nil {
			just = *it.Justification
		}
		line := []any{
			it.ID, it.PackageCode, it.Cabinet, it.Borrower, it.Verifier,
			cellTime(&it.BorrowedAt), cellTime(&it.DueAt), cellTime(it.ReturnedAt), cellTime(it.VerifiedAt),
			it.ExpectedSamples, returned, just, it.Status,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := x.SetSheetRow(sheet, cell, &line); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := x.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
