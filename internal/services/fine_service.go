package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
	"github.com/shopspring/decimal"
)

const (
	fineColumns = `id, transaction_id, member_id, amount, fine_type, status, paid_date, created_at, updated_at`

	sweepLockKey = "fines:sweep:lock"
	sweepLockTTL = 5 * time.Minute
)

// largest value a NUMERIC(12,2) amount column holds
var maxFineAmount = decimal.New(999999999999, -2)

// releases the sweep lock only when it is still held by this run
const releaseLockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// SweepResult summarizes one overdue reconciliation pass
type SweepResult struct {
	RunID         string `json:"runId"`
	MarkedOverdue int    `json:"markedOverdue"`
	Scanned       int    `json:"scanned"`
	Created       int    `json:"created"`
	Repriced      int    `json:"repriced"`
}

// FineSummary is a fine listing together with its total
type FineSummary struct {
	models.FineTotal
	Fines []models.Fine `json:"fines"`
}

type FineService struct {
	db       *sql.DB
	redis    *redis.Client
	totals   *totalsCache
	policy   models.LatePolicy
	audit    *audit.Logger
	now      func() time.Time
	newRunID func() string
}

func NewFineService(db *sql.DB, rdb *redis.Client, cfg config.FineConfig, auditLogger *audit.Logger) *FineService {
	return &FineService{
		db:     db,
		redis:  rdb,
		totals: &totalsCache{redis: rdb, ttl: cfg.TotalsCacheTTL},
		policy: models.LatePolicy{
			DailyRate: cfg.DailyRate,
			MaxAmount: cfg.MaxLateAmount,
		},
		audit:    auditLogger,
		now:      utcNow,
		newRunID: uuid.NewString,
	}
}

// Policy is the late-return pricing in effect
func (s *FineService) Policy() models.LatePolicy {
	return s.policy
}

func scanFine(row rowScanner) (*models.Fine, error) {
	var (
		f    models.Fine
		paid sql.NullTime
	)
	err := row.Scan(&f.ID, &f.TransactionID, &f.MemberID, &f.Amount, &f.FineType, &f.Status, &paid, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Amount = f.Amount.Round(2)
	f.PaidDate = nullTimePtr(paid)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}

func queryFines(ctx context.Context, q queryer, query string, args ...any) ([]models.Fine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fines := []models.Fine{}
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		fines = append(fines, *f)
	}
	return fines, rows.Err()
}

func getFine(ctx context.Context, q queryer, id int64) (*models.Fine, error) {
	f, err := scanFine(q.QueryRowContext(ctx, `SELECT `+fineColumns+` FROM fines WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fine %d: %w", id, ErrNotFound)
	}
	return f, err
}

func (s *FineService) List(ctx context.Context) ([]models.Fine, error) {
	return queryFines(ctx, s.db, `SELECT `+fineColumns+` FROM fines ORDER BY id`)
}

func (s *FineService) Get(ctx context.Context, id int64) (*models.Fine, error) {
	return getFine(ctx, s.db, id)
}

func (s *FineService) ListByMember(ctx context.Context, memberID int64) ([]models.Fine, error) {
	if _, err := getMember(ctx, s.db, memberID); err != nil {
		return nil, err
	}
	return queryFines(ctx, s.db, `SELECT `+fineColumns+` FROM fines WHERE member_id = $1 ORDER BY id`, memberID)
}

// Pending lists every PENDING fine with the all-members pending total
func (s *FineService) Pending(ctx context.Context) (*FineSummary, error) {
	fines, err := queryFines(ctx, s.db, `SELECT `+fineColumns+` FROM fines WHERE status = $1 ORDER BY id`, models.FinePending)
	if err != nil {
		return nil, err
	}
	return &FineSummary{
		FineTotal: models.SumFines(fines, models.FinePending, nil, nil),
		Fines:     fines,
	}, nil
}

// PendingTotal sums PENDING fines, for one member when memberID is set
func (s *FineService) PendingTotal(ctx context.Context, memberID *int64) (*models.FineTotal, error) {
	name := "pending:all"
	if memberID != nil {
		if _, err := getMember(ctx, s.db, *memberID); err != nil {
			return nil, err
		}
		name = fmt.Sprintf("pending:member:%d", *memberID)
	}

	cached, gen, ok := s.totals.lookup(ctx, name)
	if ok {
		return cached, nil
	}

	var (
		fines []models.Fine
		err   error
	)
	if memberID != nil {
		fines, err = queryFines(ctx, s.db, `SELECT `+fineColumns+` FROM fines WHERE status = $1 AND member_id = $2`,
			models.FinePending, *memberID)
	} else {
		fines, err = queryFines(ctx, s.db, `SELECT `+fineColumns+` FROM fines WHERE status = $1`, models.FinePending)
	}
	if err != nil {
		return nil, err
	}

	total := models.SumFines(fines, models.FinePending, nil, nil)
	total.MemberID = memberID
	s.totals.store(ctx, gen, name, total)
	return &total, nil
}

// CollectedTotal sums PAID fines whose paidDate falls in [from, to)
func (s *FineService) CollectedTotal(ctx context.Context, from, to time.Time) (*models.FineTotal, error) {
	from, to = from.UTC(), to.UTC()
	name := fmt.Sprintf("collected:%d:%d", from.Unix(), to.Unix())

	cached, gen, ok := s.totals.lookup(ctx, name)
	if ok {
		return cached, nil
	}

	fines, err := queryFines(ctx, s.db, `SELECT `+fineColumns+` FROM fines WHERE status = $1`, models.FinePaid)
	if err != nil {
		return nil, err
	}

	total := models.SumFines(fines, models.FinePaid, &from, &to)
	s.totals.store(ctx, gen, name, total)
	return &total, nil
}

// Create opens a PENDING fine against a transaction that has not been returned.
// LATE_RETURN fines are priced from the overdue days and must not carry an amount.
func (s *FineService) Create(ctx context.Context, transactionID int64, fineType models.FineType, amount *decimal.Decimal) (*models.Fine, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := getTransaction(ctx, tx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status == models.TransactionReturned {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, ErrTransactionClosed)
	}

	var fine *models.Fine
	if fineType == models.FineLateReturn {
		if amount != nil {
			return nil, fmt.Errorf("late return fines are priced automatically: %w", ErrInvalidAmount)
		}
		days := models.OverdueDays(*t, now)
		if days == 0 {
			return nil, fmt.Errorf("transaction %d: %w", transactionID, ErrNotOverdue)
		}
		fee := s.policy.LateFee(days)
		if !fee.IsPositive() {
			return nil, fmt.Errorf("late fee for %d days is %s: %w", days, fee, ErrInvalidAmount)
		}
		if err := setOverdue(ctx, tx, t, now); err != nil {
			return nil, err
		}
		fine, err = insertLateFine(ctx, tx, t, fee, now)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction %d: %w", transactionID, ErrDuplicateFine)
		}
	} else {
		if amount == nil {
			return nil, fmt.Errorf("%s fines need an amount greater than zero: %w", fineType, ErrInvalidAmount)
		}
		rounded := amount.Round(2)
		if !rounded.IsPositive() || rounded.GreaterThan(maxFineAmount) {
			return nil, fmt.Errorf("%s fine amount %s out of range: %w", fineType, amount, ErrInvalidAmount)
		}
		fine, err = insertFine(ctx, tx, t, fineType, rounded, now)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.totals.invalidate(ctx)
	s.audit.LogCreate("fine", fine.ID, fine.MemberID, fine.Amount.StringFixed(2), map[string]string{
		"fine_type":      string(fine.FineType),
		"transaction_id": fmt.Sprint(fine.TransactionID),
	})
	return fine, nil
}

func insertFine(ctx context.Context, q queryer, t *models.Transaction, fineType models.FineType, amount decimal.Decimal, now time.Time) (*models.Fine, error) {
	f := &models.Fine{
		TransactionID: t.ID,
		MemberID:      t.MemberID,
		Amount:        amount,
		FineType:      fineType,
		Status:        models.FinePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO fines (transaction_id, member_id, amount, fine_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		f.TransactionID, f.MemberID, f.Amount, f.FineType, f.Status, f.CreatedAt, f.UpdatedAt).Scan(&f.ID)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// insertLateFine returns sql.ErrNoRows when a PENDING or PAID late fine already exists
func insertLateFine(ctx context.Context, q queryer, t *models.Transaction, amount decimal.Decimal, now time.Time) (*models.Fine, error) {
	f := &models.Fine{
		TransactionID: t.ID,
		MemberID:      t.MemberID,
		Amount:        amount,
		FineType:      models.FineLateReturn,
		Status:        models.FinePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO fines (transaction_id, member_id, amount, fine_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		f.TransactionID, f.MemberID, f.Amount, f.FineType, f.Status, f.CreatedAt, f.UpdatedAt).Scan(&f.ID)
	if err != nil {
		return nil, err
	}
	return f, nil
}

type lateOutcome int

const (
	lateUnchanged lateOutcome = iota
	lateCreated
	lateRepriced
)

// assessLateFee brings the LATE_RETURN fine of an overdue transaction up to date: it creates
// one when none is live, raises a PENDING one to the current price, and leaves PAID fines alone.
func assessLateFee(ctx context.Context, q queryer, t *models.Transaction, policy models.LatePolicy, now time.Time) (lateOutcome, *models.Fine, error) {
	days := models.OverdueDays(*t, now)
	fee := policy.LateFee(days)
	if !fee.IsPositive() {
		return lateUnchanged, nil, nil
	}

	existing, err := scanFine(q.QueryRowContext(ctx, `SELECT `+fineColumns+` FROM fines
		WHERE transaction_id = $1 AND fine_type = $2 AND status IN ($3, $4)`,
		t.ID, models.FineLateReturn, models.FinePending, models.FinePaid))
	switch {
	case err == sql.ErrNoRows:
		f, err := insertLateFine(ctx, q, t, fee, now)
		if err == sql.ErrNoRows {
			return lateUnchanged, nil, nil
		}
		if err != nil {
			return lateUnchanged, nil, err
		}
		return lateCreated, f, nil
	case err != nil:
		return lateUnchanged, nil, err
	}

	if existing.Status != models.FinePending || !fee.GreaterThan(existing.Amount) {
		return lateUnchanged, existing, nil
	}

	res, err := q.ExecContext(ctx, `UPDATE fines SET amount = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		fee, now, existing.ID, models.FinePending)
	if err != nil {
		return lateUnchanged, nil, err
	}
	if err := expectOneRow(res, errNoChange); err != nil {
		if errors.Is(err, errNoChange) {
			return lateUnchanged, existing, nil
		}
		return lateUnchanged, nil, err
	}
	existing.Amount = fee
	existing.UpdatedAt = now
	return lateRepriced, existing, nil
}

var errNoChange = errors.New("no rows changed")

func (s *FineService) Pay(ctx context.Context, id int64) (*models.Fine, error) {
	return s.transition(ctx, id, models.FineActionPay)
}

func (s *FineService) Cancel(ctx context.Context, id int64) (*models.Fine, error) {
	return s.transition(ctx, id, models.FineActionCancel)
}

func (s *FineService) Reverse(ctx context.Context, id int64) (*models.Fine, error) {
	return s.transition(ctx, id, models.FineActionReverse)
}

// transition applies one edge of the fine state machine as a conditional update on the
// status it was read in, so a concurrent change makes this call fail instead of overwriting it
func (s *FineService) transition(ctx context.Context, id int64, action models.FineAction) (*models.Fine, error) {
	current, err := getFine(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if err := next.Apply(action, s.now()); err != nil {
		return nil, fmt.Errorf("cannot %s fine %d in status %s: %w", action, id, current.Status, err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE fines SET status = $1, paid_date = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		next.Status, timeOrNil(next.PaidDate), next.UpdatedAt, id, current.Status)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res, errNoChange); err != nil {
		if !errors.Is(err, errNoChange) {
			return nil, err
		}
		latest, err := getFine(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("cannot %s fine %d in status %s: %w", action, id, latest.Status, models.ErrInvalidTransition)
	}

	s.totals.invalidate(ctx)
	s.audit.LogTransition("fine", id, current.MemberID, string(current.Status), string(next.Status), next.Amount.StringFixed(2))
	log.Printf("[FINES] fine %d %s: %s -> %s", id, action, current.Status, next.Status)
	return &next, nil
}

// Delete removes a PENDING or CANCELLED fine. Paid fines stay as the record of money collected.
func (s *FineService) Delete(ctx context.Context, id int64) error {
	current, err := getFine(ctx, s.db, id)
	if err != nil {
		return err
	}
	if current.Status == models.FinePaid {
		return fmt.Errorf("fine %d: %w", id, ErrFinePaid)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM fines WHERE id = $1 AND status <> $2`, id, models.FinePaid)
	if err != nil {
		return err
	}
	if err := expectOneRow(res, errNoChange); err != nil {
		if !errors.Is(err, errNoChange) {
			return err
		}
		if _, err := getFine(ctx, s.db, id); err != nil {
			return err
		}
		return fmt.Errorf("fine %d: %w", id, ErrFinePaid)
	}

	s.totals.invalidate(ctx)
	s.audit.LogOperation("DELETE", "fine", id, map[string]string{"status": string(current.Status)})
	return nil
}

// UpdateFines runs the overdue reconciliation: it marks past-due loans OVERDUE and then
// creates or re-prices the LATE_RETURN fine of every open overdue loan. Running it again
// with the same clock changes nothing.
func (s *FineService) UpdateFines(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{RunID: s.newRunID()}

	release, err := s.acquireSweepLock(ctx, result.RunID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	marked, err := markOverdue(ctx, s.db, now)
	if err != nil {
		s.audit.LogError("SWEEP", "fine", 0, err)
		return nil, err
	}
	result.MarkedOverdue = marked

	overdue, err := queryTransactions(ctx, s.db, `SELECT `+transactionColumns+` FROM transactions WHERE status = $1 ORDER BY id`,
		models.TransactionOverdue)
	if err != nil {
		return nil, err
	}

	for i := range overdue {
		t := &overdue[i]
		result.Scanned++
		outcome, err := s.assessInTx(ctx, t, now)
		if err != nil {
			s.audit.LogError("SWEEP", "transaction", t.ID, err)
			return nil, fmt.Errorf("assess transaction %d: %w", t.ID, err)
		}
		switch outcome {
		case lateCreated:
			result.Created++
		case lateRepriced:
			result.Repriced++
		}
	}

	if result.Created > 0 || result.Repriced > 0 {
		s.totals.invalidate(ctx)
	}
	s.audit.LogOperation("SWEEP", "fine", 0, result)
	log.Printf("[SWEEP] run %s: marked=%d scanned=%d created=%d repriced=%d",
		result.RunID, result.MarkedOverdue, result.Scanned, result.Created, result.Repriced)
	return result, nil
}

func (s *FineService) assessInTx(ctx context.Context, t *models.Transaction, now time.Time) (lateOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lateUnchanged, err
	}
	defer tx.Rollback()

	outcome, _, err := assessLateFee(ctx, tx, t, s.policy, now)
	if err != nil {
		return lateUnchanged, err
	}
	return outcome, tx.Commit()
}

// acquireSweepLock serializes sweeps across instances. Without Redis sweeps rely on the
// unique late-fine index alone.
func (s *FineService) acquireSweepLock(ctx context.Context, runID string) (func(), error) {
	noop := func() {}
	if s.redis == nil {
		return noop, nil
	}

	ok, err := s.redis.SetNX(ctx, sweepLockKey, runID, sweepLockTTL).Result()
	if err != nil {
		log.Printf("[SWEEP] lock unavailable, continuing without it: %v", err)
		return noop, nil
	}
	if !ok {
		return nil, ErrSweepInProgress
	}

	return func() {
		if err := s.redis.Eval(context.Background(), releaseLockScript, []string{sweepLockKey}, runID).Err(); err != nil && err != redis.Nil {
			log.Printf("[SWEEP] failed to release lock for run %s: %v", runID, err)
		}
	}, nil
}
