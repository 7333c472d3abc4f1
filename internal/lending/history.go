package lending

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"

	"SMTS-backend/internal/platform/auth"
)

const (
	defaultHistoryLimit = 100
	maxExportRows       = 10000
)

type historyRow struct {
	ID              int64          `db:"id"`
	PackageID       int64          `db:"package_id"`
	PackageCode     sql.NullString `db:"package_code"`
	Cabinet         sql.NullString `db:"cabinet"`
	BorrowerID      int64          `db:"borrower_id"`
	BorrowerName    sql.NullString `db:"borrower_name"`
	VerifierID      int64          `db:"verifier_id"`
	VerifierName    sql.NullString `db:"verifier_name"`
	BorrowedAt      time.Time      `db:"borrowed_at"`
	DueAt           time.Time      `db:"due_at"`
	ReturnedAt      sql.NullTime   `db:"returned_at"`
	VerifiedAt      sql.NullTime   `db:"verified_at"`
	ExpectedSamples int            `db:"expected_samples"`
	ReturnedSamples sql.NullInt64  `db:"returned_samples"`
	Justification   sql.NullString `db:"justification"`
	Status          string         `db:"return_status"`
}

func (s *Store) History(ctx context.Context, f HistoryFilter) ([]historyRow, error) {
	ds := s.db.Dialect.Builder().
		From(goqu.T("borrow_records").As("r")).Prepared(true).
		LeftJoin(goqu.T("packages").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("r.package_id")))).
		LeftJoin(goqu.T("users").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.borrower_id")))).
		LeftJoin(goqu.T("users").As("v"), goqu.On(goqu.I("v.id").Eq(goqu.I("r.verifier_id")))).
		Select(
			goqu.I("r.id").As("id"),
			goqu.I("r.package_id").As("package_id"),
			goqu.I("p.code").As("package_code"),
			goqu.I("p.cabinet").As("cabinet"),
			goqu.I("r.borrower_id").As("borrower_id"),
			goqu.I("b.username").As("borrower_name"),
			goqu.I("r.verifier_id").As("verifier_id"),
			goqu.I("v.username").As("verifier_name"),
			goqu.I("r.borrowed_at").As("borrowed_at"),
			goqu.I("r.due_at").As("due_at"),
			goqu.I("r.returned_at").As("returned_at"),
			goqu.I("r.verified_at").As("verified_at"),
			goqu.I("r.expected_samples").As("expected_samples"),
			goqu.I("r.returned_samples").As("returned_samples"),
			goqu.I("r.justification").As("justification"),
			goqu.I("r.return_status").As("return_status"),
		)

	if f.BorrowerID != nil {
		ds = ds.Where(goqu.I("r.borrower_id").Eq(*f.BorrowerID))
	}
	if f.VerifierID != nil {
		ds = ds.Where(goqu.I("r.verifier_id").Eq(*f.VerifierID))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.I("r.return_status").Eq(string(*f.Status)))
	}
	ds = ds.Order(goqu.I("r.borrowed_at").Desc(), goqu.I("r.id").Desc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	rows := []historyRow{}
	if err := s.db.X.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// scopeFor: Engineer は自分の借用、Technician は自分の検品、Admin は全件
func scopeFor(actor auth.Actor) (HistoryFilter, error) {
	var f HistoryFilter
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleEngineer:
		id := actor.ID
		f.BorrowerID = &id
	case auth.RoleTechnician:
		id := actor.ID
		f.VerifierID = &id
	default:
		return HistoryFilter{}, ErrForbidden("unknown role")
	}
	return f, nil
}

func (s *Service) History(ctx context.Context, actor auth.Actor, status string, limit int) ([]HistoryItem, error) {
	f, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	if status != "" {
		st, ok := parseStatus(status)
		if !ok {
			return nil, ErrInvalid("unknown status " + status)
		}
		f.Status = &st
	}
	f.Limit = limit
	if f.Limit <= 0 || f.Limit > defaultHistoryLimit {
		f.Limit = defaultHistoryLimit
	}

	rows, err := s.store.History(ctx, f)
	if err != nil {
		return nil, wrapInfra("borrow history", err)
	}
	out := make([]HistoryItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, toHistoryItem(r))
	}
	return out, nil
}
