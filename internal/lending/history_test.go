package lending

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"SMTS-backend/internal/platform/auth"
	"SMTS-backend/internal/platform/db/dbtest"
)

func seedHistory(t *testing.T, f *fixture) (engRec, eng2Rec BorrowRecord) {
	t.Helper()
	ctx := context.Background()

	other := dbtest.InsertPackage(t, f.conn, "BGA-001", "B1", 20)

	engRec, err := f.svc.Borrow(ctx, f.eng, f.pkg, f.tech.ID)
	require.NoError(t, err)
	_, err = f.svc.ReturnItem(ctx, engRec.ID, f.eng.ID)
	require.NoError(t, err)
	_, err = f.svc.VerifyReturn(ctx, f.tech, engRec.ID, 48, "2 lost")
	require.NoError(t, err)

	f.clock.Set(baseTime.Add(time.Minute))
	eng2Rec, err = f.svc.Borrow(ctx, f.eng2, other, f.tech2.ID)
	require.NoError(t, err)
	return engRec, eng2Rec
}

func historyIDs(items []HistoryItem) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestHistoryScopedByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engRec, eng2Rec := seedHistory(t, f)

	tests := []struct {
		name  string
		actor auth.Actor
		want  []int64
	}{
		{"engineer sees own borrows", f.eng, []int64{engRec.ID}},
		{"other engineer", f.eng2, []int64{eng2Rec.ID}},
		{"technician sees own verifications", f.tech, []int64{engRec.ID}},
		{"other technician", f.tech2, []int64{eng2Rec.ID}},
		{"admin sees all, newest first", f.admin, []int64{eng2Rec.ID, engRec.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := f.svc.History(ctx, tt.actor, "", 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, historyIDs(items))
		})
	}
}

func TestHistoryJoinsNamesAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engRec, _ := seedHistory(t, f)

	items, err := f.svc.History(ctx, f.admin, string(StatusReturnedWithRemarks), 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, engRec.ID, it.ID)
	assert.Equal(t, "QFN-007", it.PackageCode)
	assert.Equal(t, "C7", it.Cabinet)
	assert.Equal(t, "eng", it.Borrower)
	assert.Equal(t, "tech", it.Verifier)
	assert.Equal(t, 50, it.ExpectedSamples)
	require.NotNil(t, it.ReturnedSamples)
	assert.Equal(t, 48, *it.ReturnedSamples)
	require.NotNil(t, it.Justification)
	assert.Equal(t, "2 lost", *it.Justification)
	assert.NotNil(t, it.ReturnedAt)
	assert.NotNil(t, it.VerifiedAt)
	assert.True(t, baseTime.Equal(it.BorrowedAt))

	_, err = f.svc.History(ctx, f.admin, "Lost", 0)
	assertCode(t, CodeInvalidArgument, err)

	items, err = f.svc.History(ctx, f.admin, "", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestExportHistory(t *testing.T) {
	f := newFixture(t)
	engRec, _ := seedHistory(t, f)

	buf := &bytes.Buffer{}
	require.NoError(t, f.svc.ExportHistory(context.Background(), f.eng, buf))

	x, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = x.Close() }()

	rows, err := x.GetRows(x.GetSheetName(x.GetActiveSheetIndex()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Record ID", rows[0][0])
	assert.Equal(t, "Status", rows[0][12])
	assert.Equal(t, "QFN-007", rows[1][1])
	assert.Equal(t, "2026-10-16 09:00:00", rows[1][5])
	assert.Equal(t, "48", rows[1][10])
	assert.Equal(t, string(StatusReturnedWithRemarks), rows[1][12])
	assert.Equal(t, fmt.Sprint(engRec.ID), rows[1][0])
}
