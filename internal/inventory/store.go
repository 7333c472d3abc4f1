package inventory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"SMTS-backend/internal/platform/db"
)

type Store struct{ db *db.DB }

func NewStore(conn *db.DB) *Store { return &Store{db: conn} }

var packageColumns = []any{"id", "code", "description", "cabinet", "category", "shift", "available", "total_sample", "created_at"}

// LIKE のワイルドカードをリテラル扱いにする（ESCAPE '!'、MySQL/SQLite 共通）
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func containsExpr(col, sub string) goqu.Expression {
	return goqu.L("? LIKE ? ESCAPE '!'", goqu.C(col), "%"+likeEscaper.Replace(sub)+"%")
}

// ===== read =====

func (s *Store) List(ctx context.Context, q ListQuery) ([]Package, error) {
	ds := s.db.Dialect.Builder().From("packages").Prepared(true).Select(packageColumns...)

	if q.Code != "" {
		ds = ds.Where(containsExpr("code", q.Code))
	}
	if q.Category != "" {
		ds = ds.Where(goqu.C("category").Eq(q.Category))
	}
	if q.Shift != "" {
		ds = ds.Where(goqu.C("shift").Eq(q.Shift))
	}
	if q.Available != nil {
		v := AvailableNo
		if *q.Available {
			v = AvailableYes
		}
		ds = ds.Where(goqu.C("available").Eq(v))
	}
	ds = ds.Order(goqu.C("code").Asc())
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	var items []Package
	if err := s.db.X.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Package{}, nil
	}

	ids := make([]int64, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	defects, err := s.defectsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].CreatedAt = items[i].CreatedAt.UTC()
		items[i].Defects = defects[items[i].ID]
	}
	return items, nil
}

type defectRow struct {
	PackageID   int64  `db:"package_id"`
	DefectType  string `db:"defect_type"`
	SampleCount int    `db:"sample_count"`
}

func (s *Store) defectsFor(ctx context.Context, ids []int64) (map[int64]map[string]int, error) {
	query, args, err := s.db.Dialect.Builder().
		From("package_defects").Prepared(true).
		Select("package_id", "defect_type", "sample_count").
		Where(goqu.C("package_id").In(ids)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var rows []defectRow
	if err := s.db.X.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[int64]map[string]int, len(ids))
	for _, r := range rows {
		if out[r.PackageID] == nil {
			out[r.PackageID] = map[string]int{}
		}
		out[r.PackageID][r.DefectType] = r.SampleCount
	}
	return out, nil
}

func scanPackage(row *sql.Row) (*Package, error) {
	var p Package
	if err := row.Scan(&p.ID, &p.Code, &p.Description, &p.Cabinet, &p.Category, &p.Shift,
		&p.Available, &p.TotalSample, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

const selectPackage = `
SELECT id, code, description, cabinet, category, shift, available, total_sample, created_at
FROM packages WHERE id = ?`

func (s *Store) Get(ctx context.Context, id int64) (*Package, error) {
	p, err := scanPackage(s.db.QueryRowContext(ctx, selectPackage, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("package not found")
		}
		return nil, err
	}
	if p.Defects, err = loadDefects(ctx, s.db, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) distinct(ctx context.Context, col string) ([]string, error) {
	query, args, err := s.db.Dialect.Builder().
		From("packages").Prepared(true).
		Select(goqu.C(col)).Distinct().
		Where(goqu.C(col).Neq("")).
		Order(goqu.C(col).Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}
	out := []string{}
	if err := s.db.X.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Options(ctx context.Context) (OptionsResponse, error) {
	var (
		out OptionsResponse
		err error
	)
	if out.Categories, err = s.distinct(ctx, "category"); err != nil {
		return OptionsResponse{}, err
	}
	if out.Shifts, err = s.distinct(ctx, "shift"); err != nil {
		return OptionsResponse{}, err
	}
	if out.Cabinets, err = s.distinct(ctx, "cabinet"); err != nil {
		return OptionsResponse{}, err
	}
	out.DefectTypes = append([]string(nil), DefectTypes...)
	return out, nil
}

// ===== tx helpers =====

func loadDefects(ctx context.Context, q db.DBTX, id int64) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT defect_type, sample_count FROM package_defects WHERE package_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, rows.Err()
}

// lockPackage: 行ロック付きで取得（SQLite は単一接続で直列化）
func (s *Store) lockPackage(ctx context.Context, tx db.DBTX, id int64) (*Package, error) {
	p, err := scanPackage(tx.QueryRowContext(ctx, selectPackage+s.db.Dialect.ForUpdate(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("package not found")
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) insertPackage(ctx context.Context, tx db.DBTX, p *Package) (int64, error) {
	const q = `
INSERT INTO packages (code, description, cabinet, category, shift, available, total_sample, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, p.Code, p.Description, p.Cabinet, p.Category, p.Shift,
		AvailableYes, p.TotalSample, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// writeDefects は不良数を丸ごと置き換える（0 件の種別は保存しない）
func (s *Store) writeDefects(ctx context.Context, tx db.DBTX, id int64, defects map[string]int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM package_defects WHERE package_id = ?`, id); err != nil {
		return err
	}
	keys := make([]string, 0, len(defects))
	for k, n := range defects {
		if n > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO package_defects (package_id, defect_type, sample_count) VALUES (?, ?, ?)`,
			id, k, defects[k]); err != nil {
			return err
		}
	}
	return nil
}

// updateFields: 説明系のカラムと total_sample のみ。available は触らない
func (s *Store) updateFields(ctx context.Context, tx db.DBTX, id int64, in UpdatePackageRequest, total *int) error {
	sets := []string{}
	args := []any{}
	if in.Code != nil {
		sets = append(sets, "code = ?")
		args = append(args, *in.Code)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.Cabinet != nil {
		sets = append(sets, "cabinet = ?")
		args = append(args, *in.Cabinet)
	}
	if in.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *in.Category)
	}
	if in.Shift != nil {
		sets = append(sets, "shift = ?")
		args = append(args, *in.Shift)
	}
	if total != nil {
		sets = append(sets, "total_sample = ?")
		args = append(args, *total)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := tx.ExecContext(ctx, `UPDATE packages SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	return err
}

func (s *Store) countOpenRecords(ctx context.Context, tx db.DBTX, packageID int64) (int, error) {
	const q = `
SELECT COUNT(*) FROM borrow_records
WHERE package_id = ? AND return_status IN ('In Progress', 'Pending')`
	var n int
	if err := tx.QueryRowContext(ctx, q, packageID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) deletePackage(ctx context.Context, tx db.DBTX, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM package_defects WHERE package_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrNotFound("package not found")
	}
	return nil
}
