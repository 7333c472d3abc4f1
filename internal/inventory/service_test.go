package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMTS-backend/internal/platform/db"
	"SMTS-backend/internal/platform/db/dbtest"
	"SMTS-backend/internal/platform/logger"
)

func newTestService(t *testing.T) (*Service, *db.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	return NewService(conn, logger.Discard()), conn
}

func ptr[T any](v T) *T { return &v }

func TestCreateComputesTotalAndNormalizesKeys(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreatePackageRequest{
		Code:     " ＱＦＮ－００１ ",
		Cabinet:  "Ａ１",
		Category: "QFN",
		Shift:    "A",
		Defects:  map[string]int{"Good Unit": 40, "Die/Crack": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, "QFN-001", res.Code)
	assert.Equal(t, "A1", res.Cabinet)
	assert.Equal(t, 50, res.TotalSample)
	assert.True(t, res.Available)

	got, err := svc.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Good Unit": 40, "Die/Crack": 10}, got.Defects)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreatePackageRequest
	}{
		{"missing code", CreatePackageRequest{Cabinet: "A1", Category: "QFN", Shift: "A"}},
		{"unknown defect", CreatePackageRequest{Code: "P1", Cabinet: "A1", Category: "QFN", Shift: "A",
			Defects: map[string]int{"Alien": 1}}},
		{"negative count", CreatePackageRequest{Code: "P1", Cabinet: "A1", Category: "QFN", Shift: "A",
			Defects: map[string]int{"Pitch": -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, 400, ToHTTPStatus(err))
		})
	}
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreatePackageRequest{Code: "P1", Cabinet: "A1", Category: "QFN", Shift: "A"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreatePackageRequest{Code: "Ｐ１", Cabinet: "B2", Category: "QFN", Shift: "A"})
	require.Error(t, err)
	assert.Equal(t, 409, ToHTTPStatus(err))
}

func TestUpdateMergesDefectsAndKeepsAvailability(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreatePackageRequest{Code: "P1", Cabinet: "A1", Category: "QFN", Shift: "A",
		Defects: map[string]int{"Good Unit": 40, "Pitch": 10}})
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `UPDATE packages SET available = 'NO' WHERE id = ?`, res.ID)
	require.NoError(t, err)

	got, err := svc.Update(ctx, res.ID, UpdatePackageRequest{
		Description: ptr("re-sorted"),
		Defects:     map[string]int{"Pitch": 5, "Burr": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "re-sorted", got.Description)
	assert.Equal(t, 47, got.TotalSample)
	assert.Equal(t, map[string]int{"Good Unit": 40, "Pitch": 5, "Burr": 2}, got.Defects)
	assert.False(t, got.Available)
}

func TestUpdateMissingPackage(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Update(context.Background(), 999, UpdatePackageRequest{Description: ptr("x")})
	require.Error(t, err)
	assert.Equal(t, 404, ToHTTPStatus(err))
}

func TestListFilters(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	for _, in := range []CreatePackageRequest{
		{Code: "QFN-001", Cabinet: "A1", Category: "QFN", Shift: "A"},
		{Code: "QFN-002", Cabinet: "A2", Category: "QFN", Shift: "B"},
		{Code: "BGA-001", Cabinet: "B1", Category: "BGA", Shift: "A"},
		{Code: "SOP_50%", Cabinet: "S1", Category: "SOP", Shift: "B"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}
	_, err := conn.ExecContext(ctx, `UPDATE packages SET available = 'NO' WHERE code = 'QFN-002'`)
	require.NoError(t, err)

	tests := []struct {
		name string
		q    ListQuery
		want []string
	}{
		{"all", ListQuery{}, []string{"BGA-001", "QFN-001", "QFN-002", "SOP_50%"}},
		{"code substring", ListQuery{Code: "001"}, []string{"BGA-001", "QFN-001"}},
		{"underscore is literal", ListQuery{Code: "_"}, []string{"SOP_50%"}},
		{"percent is literal", ListQuery{Code: "%"}, []string{"SOP_50%"}},
		{"escape char is literal", ListQuery{Code: "!"}, []string{}},
		{"category", ListQuery{Category: "QFN"}, []string{"QFN-001", "QFN-002"}},
		{"shift", ListQuery{Shift: "A"}, []string{"BGA-001", "QFN-001"}},
		{"available", ListQuery{Available: ptr(false)}, []string{"QFN-002"}},
		{"limit", ListQuery{Limit: 1}, []string{"BGA-001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := svc.List(ctx, tt.q)
			require.NoError(t, err)
			codes := make([]string, 0, len(items))
			for _, it := range items {
				codes = append(codes, it.Code)
			}
			assert.Equal(t, tt.want, codes)
		})
	}
}

func TestOptions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, in := range []CreatePackageRequest{
		{Code: "P1", Cabinet: "C2", Category: "QFN", Shift: "B"},
		{Code: "P2", Cabinet: "C1", Category: "BGA", Shift: "B"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	opts, err := svc.Options(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BGA", "QFN"}, opts.Categories)
	assert.Equal(t, []string{"B"}, opts.Shifts)
	assert.Equal(t, []string{"C1", "C2"}, opts.Cabinets)
	assert.Contains(t, opts.DefectTypes, "Substrate/WhiteFM")
}

func TestDeleteRefusedWhileBorrowed(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreatePackageRequest{Code: "P1", Cabinet: "A1", Category: "QFN", Shift: "A"})
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = conn.ExecContext(ctx, `
INSERT INTO borrow_records (package_id, borrower_id, verifier_id, borrowed_at, due_at, expected_samples, return_status)
VALUES (?, 1, 2, ?, ?, 0, 'Pending')`, res.ID, now, now.Add(24*time.Hour))
	require.NoError(t, err)

	err = svc.Delete(ctx, res.ID)
	require.Error(t, err)
	assert.Equal(t, 400, ToHTTPStatus(err))

	_, err = conn.ExecContext(ctx, `UPDATE borrow_records SET return_status = 'Returned' WHERE package_id = ?`, res.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, res.ID))
	_, err = svc.Get(ctx, res.ID)
	assert.Equal(t, 404, ToHTTPStatus(err))
}
