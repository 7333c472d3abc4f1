package lending

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"SMTS-backend/internal/platform/auth"
	"SMTS-backend/internal/platform/db"
)

// Store は borrow_records（貸出台帳）と、遷移に必要な packages/users の読み書きを持つ
type Store struct{ db *db.DB }

func NewStore(conn *db.DB) *Store { return &Store{db: conn} }

// lock package row (FOR UPDATE on MySQL)
func (s *Store) lockPackage(ctx context.Context, tx db.DBTX, id int64) (*packageRow, error) {
	q := `SELECT id, code, available, total_sample FROM packages WHERE id = ?` + s.db.Dialect.ForUpdate()
	var p packageRow
	if err := tx.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Code, &p.Available, &p.TotalSample); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("package not found")
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) packageCode(ctx context.Context, tx db.DBTX, id int64) (string, error) {
	var code string
	err := tx.QueryRowContext(ctx, `SELECT code FROM packages WHERE id = ?`, id).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return code, err
}

func (s *Store) countOpen(ctx context.Context, tx db.DBTX, packageID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM borrow_records WHERE package_id = ? AND return_status IN (?, ?)`
	var n int
	if err := tx.QueryRowContext(ctx, q, packageID, string(StatusInProgress), string(StatusPending)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// 見つからなければ nil, nil
func (s *Store) userByID(ctx context.Context, tx db.DBTX, id int64) (*party, error) {
	const q = `SELECT id, username, email, role FROM users WHERE id = ?`
	var (
		p    party
		role string
	)
	err := tx.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Username, &p.Email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Role, _ = auth.ParseRole(role)
	return &p, nil
}

// markUnavailable: YES → NO の check-and-set。行ロックとの二重の防御
func (s *Store) markUnavailable(ctx context.Context, tx db.DBTX, packageID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE packages SET available = 'NO' WHERE id = ? AND available = 'YES'`, packageID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrUnavailable("package is not available")
	}
	return nil
}

// markAvailable: NO → YES。既に YES なら drifted=true で続行（検品を止めない）。
// 行が無い場合のみエラー
func (s *Store) markAvailable(ctx context.Context, tx db.DBTX, packageID int64) (drifted bool, err error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE packages SET available = 'YES' WHERE id = ? AND available = 'NO'`, packageID)
	if err != nil {
		return false, err
	}
	if aff, _ := res.RowsAffected(); aff == 1 {
		return false, nil
	}

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT available FROM packages WHERE id = ?`, packageID).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, ErrInternal("package row missing for borrow record")
	case err != nil:
		return false, err
	case cur == "YES":
		return true, nil
	default:
		return false, ErrInternal("unexpected package availability " + cur)
	}
}

func (s *Store) insertRecord(ctx context.Context, tx db.DBTX, r *BorrowRecord) (int64, error) {
	const q = `
INSERT INTO borrow_records
(package_id, borrower_id, verifier_id, borrowed_at, due_at, expected_samples, return_status)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		r.PackageID, r.BorrowerID, r.VerifierID, r.BorrowedAt, r.DueAt, r.ExpectedSamples, string(r.Status))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const selectRecord = `
SELECT id, package_id, borrower_id, verifier_id, borrowed_at, due_at, returned_at, verified_at,
       expected_samples, returned_samples, justification, return_status
FROM borrow_records WHERE id = ?`

func scanRecord(row *sql.Row) (*BorrowRecord, error) {
	var (
		r          BorrowRecord
		returnedAt sql.NullTime
		verifiedAt sql.NullTime
		returned   sql.NullInt64
		justif     sql.NullString
		status     string
	)
	if err := row.Scan(&r.ID, &r.PackageID, &r.BorrowerID, &r.VerifierID, &r.BorrowedAt, &r.DueAt,
		&returnedAt, &verifiedAt, &r.ExpectedSamples, &returned, &justif, &status); err != nil {
		return nil, err
	}
	st, ok := parseStatus(status)
	if !ok {
		return nil, ErrInternal("unknown return_status " + status)
	}
	r.Status = st
	r.BorrowedAt = r.BorrowedAt.UTC()
	r.DueAt = r.DueAt.UTC()
	r.ReturnedAt = nullTimePtr(returnedAt)
	r.VerifiedAt = nullTimePtr(verifiedAt)
	if returned.Valid {
		n := int(returned.Int64)
		r.ReturnedSamples = &n
	}
	if justif.Valid {
		v := justif.String
		r.Justification = &v
	}
	return &r, nil
}

// lockRecord: 見つからなければ nil, nil
func (s *Store) lockRecord(ctx context.Context, tx db.DBTX, id int64) (*BorrowRecord, error) {
	r, err := scanRecord(tx.QueryRowContext(ctx, selectRecord+s.db.Dialect.ForUpdate(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) GetRecord(ctx context.Context, id int64) (*BorrowRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// setPending: In Progress のときだけ遷移
func (s *Store) setPending(ctx context.Context, tx db.DBTX, id int64, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE borrow_records SET return_status = ?, returned_at = ? WHERE id = ? AND return_status = ?`,
		string(StatusPending), now, id, string(StatusInProgress))
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrAlreadyProcessed("borrow record is not in progress")
	}
	return nil
}

// setVerified: Pending のときだけ遷移
func (s *Store) setVerified(ctx context.Context, tx db.DBTX, id int64, returned int, justification *string, st Status, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
UPDATE borrow_records
SET returned_samples = ?, justification = ?, return_status = ?, verified_at = ?
WHERE id = ? AND return_status = ?`,
		returned, justification, string(st), now, id, string(StatusPending))
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrAlreadyProcessed("borrow record is not pending verification")
	}
	return nil
}

// listDue は単一の SELECT なので途中状態は見えない
func (s *Store) listDue(ctx context.Context, cutoff time.Time) ([]DueRecord, error) {
	const q = `
SELECT r.id, r.package_id, COALESCE(p.code, ''), r.borrower_id,
       COALESCE(b.username, ''), COALESCE(b.email, ''), COALESCE(v.username, ''),
       r.borrowed_at, r.due_at
FROM borrow_records r
LEFT JOIN packages p ON p.id = r.package_id
LEFT JOIN users b ON b.id = r.borrower_id
LEFT JOIN users v ON v.id = r.verifier_id
WHERE r.return_status = ? AND r.due_at <= ?
ORDER BY r.due_at ASC, r.id ASC`
	rows, err := s.db.QueryContext(ctx, q, string(StatusInProgress), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DueRecord, 0)
	for rows.Next() {
		var d DueRecord
		if err := rows.Scan(&d.RecordID, &d.PackageID, &d.PackageCode, &d.BorrowerID,
			&d.BorrowerName, &d.BorrowerEmail, &d.VerifierName, &d.BorrowedAt, &d.DueAt); err != nil {
			return nil, err
		}
		d.BorrowedAt = d.BorrowedAt.UTC()
		d.DueAt = d.DueAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
