package lending

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SMTS-backend/internal/notify"
	"SMTS-backend/internal/platform/auth"
	"SMTS-backend/internal/platform/db"
	"SMTS-backend/internal/platform/metrics"
)

// -------------- Clock --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

// 秒未満は DB 側で扱いが揃わないので切り捨てる
func (realClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// -------------- Service --------------

const (
	opBorrow = "borrow"
	opReturn = "return"
	opVerify = "verify"
)

// Service は貸出 → 返却 → 検品の状態遷移を持つ
type Service struct {
	db      *db.DB
	store   *Store
	clock   Clock
	events  notify.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewService(conn *db.DB, events notify.Publisher, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		db:      conn,
		store:   NewStore(conn),
		clock:   realClock{},
		events:  events,
		metrics: m,
		log:     log,
	}
}

// Borrow: 在庫確認とフラグ更新・台帳追加を 1 トランザクションで行う
func (s *Service) Borrow(ctx context.Context, actor auth.Actor, packageID, verifierID int64) (rec BorrowRecord, err error) {
	defer func() { s.metrics.Transition(opBorrow, resultLabel(err)) }()

	if !actor.Can(auth.CapBorrow) {
		return BorrowRecord{}, ErrForbidden("role is not permitted to borrow")
	}
	if packageID <= 0 || verifierID <= 0 {
		return BorrowRecord{}, ErrInvalid("packageId and verifierId are required")
	}

	now := s.clock.Now()
	var (
		pkg                *packageRow
		borrower, verifier *party
	)
	err = s.db.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		if pkg, err = s.store.lockPackage(ctx, tx, packageID); err != nil {
			return err
		}
		if borrower, err = s.store.userByID(ctx, tx, actor.ID); err != nil {
			return err
		}
		if verifier, err = s.store.userByID(ctx, tx, verifierID); err != nil {
			return err
		}
		if borrower == nil || verifier == nil {
			return ErrNotFound("user not found")
		}
		if !verifier.Role.Can(auth.CapVerify) {
			return ErrInvalid("verifier must be a Technician")
		}

		if pkg.Available != "YES" {
			return ErrUnavailable("package is not available")
		}
		open, err := s.store.countOpen(ctx, tx, packageID)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrUnavailable("package has an open borrow record")
		}

		if err := s.store.markUnavailable(ctx, tx, packageID); err != nil {
			return err
		}
		rec = BorrowRecord{
			PackageID:       packageID,
			BorrowerID:      actor.ID,
			VerifierID:      verifierID,
			BorrowedAt:      now,
			DueAt:           now.Add(DueWindow),
			ExpectedSamples: pkg.TotalSample,
			Status:          StatusInProgress,
		}
		rec.ID, err = s.store.insertRecord(ctx, tx, &rec)
		return err
	})
	if err != nil {
		return BorrowRecord{}, wrapInfra("borrow", err)
	}

	s.log.Info("package borrowed",
		"record_id", rec.ID, "package_id", packageID, "borrower_id", actor.ID,
		"verifier_id", verifierID, "expected_samples", rec.ExpectedSamples)

	ev := notify.NewEvent(notify.KindBorrowCreated, now)
	ev.RecordID = rec.ID
	ev.PackageCode = pkg.Code
	ev.Borrower = notify.Recipient{Name: borrower.Username, Email: borrower.Email}
	ev.Verifier = notify.Recipient{Name: verifier.Username, Email: verifier.Email}
	ev.BorrowedAt = rec.BorrowedAt
	ev.DueAt = rec.DueAt
	s.publish(ev)

	return rec, nil
}

// ReturnItem: 借りた本人のみ。他人の記録は存在しないものとして扱う
func (s *Service) ReturnItem(ctx context.Context, borrowID, actorID int64) (rec BorrowRecord, err error) {
	defer func() { s.metrics.Transition(opReturn, resultLabel(err)) }()

	now := s.clock.Now()
	err = s.db.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.lockRecord(ctx, tx, borrowID)
		if err != nil {
			return err
		}
		if r == nil || r.BorrowerID != actorID {
			return ErrNotFound("borrow record not found")
		}
		if r.Status != StatusInProgress {
			return ErrAlreadyProcessed("borrow record is not in progress")
		}
		if err := s.store.setPending(ctx, tx, borrowID, now); err != nil {
			return err
		}
		r.Status = StatusPending
		r.ReturnedAt = &now
		rec = *r
		return nil
	})
	if err != nil {
		return BorrowRecord{}, wrapInfra("return", err)
	}

	s.log.Info("package returned, pending verification", "record_id", borrowID, "borrower_id", actorID)
	return rec, nil
}

// VerifyReturn: 台帳の確定と在庫フラグの復帰を 1 トランザクションで行う。
// 数量不一致で理由が空でも受け付けて記録する
func (s *Service) VerifyReturn(ctx context.Context, actor auth.Actor, borrowID int64, returnedSamples int, justification string) (rec BorrowRecord, err error) {
	defer func() { s.metrics.Transition(opVerify, resultLabel(err)) }()

	if !actor.Can(auth.CapVerify) {
		return BorrowRecord{}, ErrForbidden("role is not permitted to verify returns")
	}
	if returnedSamples < 0 {
		return BorrowRecord{}, ErrInvalid("returnedSamples must be >= 0")
	}
	var just *string
	if j := strings.TrimSpace(justification); j != "" {
		just = &j
	}

	now := s.clock.Now()
	var (
		code               string
		borrower, verifier *party
	)
	err = s.db.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.lockRecord(ctx, tx, borrowID)
		if err != nil {
			return err
		}
		if r == nil || r.VerifierID != actor.ID {
			return ErrNotFound("borrow record not found")
		}
		if r.Status != StatusPending {
			return ErrAlreadyProcessed("borrow record is not pending verification")
		}

		st := Reconcile(r.ExpectedSamples, returnedSamples)
		if err := s.store.setVerified(ctx, tx, borrowID, returnedSamples, just, st, now); err != nil {
			return err
		}
		drifted, err := s.store.markAvailable(ctx, tx, r.PackageID)
		if err != nil {
			return err
		}
		if drifted {
			s.log.Warn("package was already available at verification",
				"record_id", borrowID, "package_id", r.PackageID)
		}

		r.Status = st
		r.ReturnedSamples = &returnedSamples
		r.Justification = just
		r.VerifiedAt = &now
		rec = *r

		if st != StatusReturnedWithRemarks {
			return nil
		}
		// 通知用（コミット前に同じ接続で読む）
		if code, err = s.store.packageCode(ctx, tx, r.PackageID); err != nil {
			return err
		}
		if borrower, err = s.store.userByID(ctx, tx, r.BorrowerID); err != nil {
			return err
		}
		verifier, err = s.store.userByID(ctx, tx, r.VerifierID)
		return err
	})
	if err != nil {
		return BorrowRecord{}, wrapInfra("verify return", err)
	}

	s.log.Info("return verified",
		"record_id", borrowID, "verifier_id", actor.ID, "status", rec.Status,
		"expected_samples", rec.ExpectedSamples, "returned_samples", returnedSamples)

	if rec.Status == StatusReturnedWithRemarks {
		ev := notify.NewEvent(notify.KindReturnDiscrepancy, now)
		ev.RecordID = rec.ID
		ev.PackageCode = code
		if borrower != nil {
			ev.Borrower = notify.Recipient{Name: borrower.Username, Email: borrower.Email}
		}
		if verifier != nil {
			ev.Verifier = notify.Recipient{Name: verifier.Username, Email: verifier.Email}
		}
		ev.BorrowedAt = rec.BorrowedAt
		ev.DueAt = rec.DueAt
		ev.ExpectedSamples = rec.ExpectedSamples
		ev.ReturnedSamples = returnedSamples
		if just != nil {
			ev.Justification = *just
		}
		s.publish(ev)
	}
	return rec, nil
}

// ListOverdueOrSoonDue: In Progress かつ due_at <= now + horizon
func (s *Service) ListOverdueOrSoonDue(ctx context.Context, horizon time.Duration) ([]DueRecord, error) {
	if horizon < 0 {
		return nil, ErrInvalid("horizon must be >= 0")
	}
	out, err := s.store.listDue(ctx, s.clock.Now().Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("list due records: %w", err)
	}
	return out, nil
}

func (s *Service) publish(ev notify.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ev)
}

// APIError はそのまま、それ以外はインフラ障害として包む
func wrapInfra(op string, err error) error {
	if CodeOf(err) != CodeInternal {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
