package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SMTS-backend/internal/platform/db"
)

type Service struct {
	db    *db.DB
	store *Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(conn *db.DB, log *slog.Logger) *Service {
	return &Service{
		db:    conn,
		store: NewStore(conn),
		log:   log,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]PackageResponse, error) {
	q.Code = NormalizeKey(q.Code)
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 1000
	}
	items, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]PackageResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toResponse(p))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (PackageResponse, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return PackageResponse{}, err
	}
	return toResponse(*p), nil
}

func (s *Service) Options(ctx context.Context) (OptionsResponse, error) {
	return s.store.Options(ctx)
}

func validateDefects(in map[string]int) error {
	for k, n := range in {
		if !IsDefectType(k) {
			return ErrInvalid(fmt.Sprintf("unknown defect type %q", k))
		}
		if n < 0 {
			return ErrInvalid(fmt.Sprintf("defect %q must be >= 0", k))
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreatePackageRequest) (PackageResponse, error) {
	p := Package{
		Code:        NormalizeKey(in.Code),
		Description: strings.TrimSpace(in.Description),
		Cabinet:     NormalizeKey(in.Cabinet),
		Category:    strings.TrimSpace(in.Category),
		Shift:       strings.TrimSpace(in.Shift),
		Available:   AvailableYes,
		CreatedAt:   s.now(),
		Defects:     in.Defects,
	}
	if p.Code == "" || p.Cabinet == "" || p.Category == "" || p.Shift == "" {
		return PackageResponse{}, ErrInvalid("code, cabinet, category, shift are required")
	}
	if err := validateDefects(p.Defects); err != nil {
		return PackageResponse{}, err
	}
	if p.Defects == nil {
		p.Defects = map[string]int{}
	}
	p.TotalSample = sumDefects(p.Defects)

	err := s.db.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		id, err := s.store.insertPackage(ctx, tx, &p)
		if err != nil {
			return err
		}
		p.ID = id
		return s.store.writeDefects(ctx, tx, id, p.Defects)
	})
	if err != nil {
		if db.IsDuplicateKey(err) {
			return PackageResponse{}, ErrConflict("code or cabinet already exists")
		}
		return PackageResponse{}, fmt.Errorf("create package: %w", err)
	}

	s.log.Info("package created", "package_id", p.ID, "code", p.Code, "total_sample", p.TotalSample)
	return toResponse(p), nil
}

// Update は説明系と不良数のみ。不良数を渡した場合は既存値にマージして total_sample を再計算する
func (s *Service) Update(ctx context.Context, id int64, in UpdatePackageRequest) (PackageResponse, error) {
	if in.Code != nil {
		v := NormalizeKey(*in.Code)
		if v == "" {
			return PackageResponse{}, ErrInvalid("code must not be empty")
		}
		in.Code = &v
	}
	if in.Cabinet != nil {
		v := NormalizeKey(*in.Cabinet)
		if v == "" {
			return PackageResponse{}, ErrInvalid("cabinet must not be empty")
		}
		in.Cabinet = &v
	}
	for _, f := range []*string{in.Category, in.Shift} {
		if f != nil && strings.TrimSpace(*f) == "" {
			return PackageResponse{}, ErrInvalid("category and shift must not be empty")
		}
	}
	if err := validateDefects(in.Defects); err != nil {
		return PackageResponse{}, err
	}

	err := s.db.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if _, err := s.store.lockPackage(ctx, tx, id); err != nil {
			return err
		}

		var total *int
		if len(in.Defects) > 0 {
			cur, err := loadDefects(ctx, tx, id)
			if err != nil {
				return err
			}
			for k, n := range in.Defects {
				cur[k] = n
			}
			if err := s.store.writeDefects(ctx, tx, id, cur); err != nil {
				return err
			}
			t := sumDefects(cur)
			total = &t
		}
		return s.store.updateFields(ctx, tx, id, in, total)
	})
	if err != nil {
		if db.IsDuplicateKey(err) {
			return PackageResponse{}, ErrConflict("code or cabinet already exists")
		}
		return PackageResponse{}, err
	}

	return s.Get(ctx, id)
}

// Delete: 未完了の貸出記録がある間は削除できない
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.db.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if _, err := s.store.lockPackage(ctx, tx, id); err != nil {
			return err
		}
		n, err := s.store.countOpenRecords(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrInUse("cannot delete a package that is currently borrowed")
		}
		return s.store.deletePackage(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("package deleted", "package_id", id)
	return nil
}
