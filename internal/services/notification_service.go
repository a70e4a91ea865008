package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/notify"
	"github.com/shopspring/decimal"
)

const (
	notificationColumns = `id, member_id, type, subject, message, recipient_email, channel, message_id, status, error, date_sent`

	dedupTTL = 26 * time.Hour
)

type NotificationService struct {
	db           *sql.DB
	redis        *redis.Client
	sender       notify.Sender
	reminderDays int
	audit        *audit.Logger
	now          func() time.Time
}

func NewNotificationService(db *sql.DB, rdb *redis.Client, sender notify.Sender, reminderDays int, auditLogger *audit.Logger) *NotificationService {
	return &NotificationService{
		db:           db,
		redis:        rdb,
		sender:       sender,
		reminderDays: reminderDays,
		audit:        auditLogger,
		now:          utcNow,
	}
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.MemberID, &n.Type, &n.Subject, &n.Message, &n.RecipientEmail, &n.Channel,
		&n.MessageID, &n.Status, &n.Error, &n.DateSent)
	if err != nil {
		return nil, err
	}
	n.DateSent = n.DateSent.UTC()
	return &n, nil
}

func (s *NotificationService) query(ctx context.Context, query string, args ...any) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *NotificationService) List(ctx context.Context) ([]models.Notification, error) {
	return s.query(ctx, `SELECT `+notificationColumns+` FROM notifications ORDER BY id`)
}

func (s *NotificationService) Get(ctx context.Context, id int64) (*models.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return n, err
}

func (s *NotificationService) ListByMember(ctx context.Context, memberID int64) ([]models.Notification, error) {
	if _, err := getMember(ctx, s.db, memberID); err != nil {
		return nil, err
	}
	return s.query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE member_id = $1 ORDER BY id`, memberID)
}

func (s *NotificationService) ListByStatus(ctx context.Context, status string) ([]models.Notification, error) {
	st := models.NotificationStatus(strings.ToUpper(status))
	if !st.Valid() {
		return nil, fmt.Errorf("notification status %q: %w", status, ErrInvalidStatus)
	}
	return s.query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE status = $1 ORDER BY id`, st)
}

// SendCustom delivers a staff-written message to one member. Delivery failures are recorded
// on the returned notification rather than returned as errors.
func (s *NotificationService) SendCustom(ctx context.Context, req models.CustomNotificationRequest) (*models.Notification, error) {
	member, err := getMember(ctx, s.db, req.MemberID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, member, models.NotificationCustom, req.Subject, req.Message)
}

// dispatch sends one message and records the attempt
func (s *NotificationService) dispatch(ctx context.Context, member *models.Member, kind models.NotificationType, subject, body string) (*models.Notification, error) {
	n := &models.Notification{
		MemberID:       member.ID,
		Type:           kind,
		Subject:        subject,
		Message:        body,
		RecipientEmail: member.Email,
		Channel:        s.sender.Channel(),
		MessageID:      uuid.NewString(),
		Status:         models.NotificationSent,
		DateSent:       s.now(),
	}

	err := s.sender.Send(ctx, notify.Message{
		ID:         n.MessageID,
		MemberID:   member.ID,
		MemberName: member.Name,
		Recipient:  member.Email,
		Type:       kind,
		Subject:    subject,
		Body:       body,
	})
	if err != nil {
		log.Printf("[NOTIFY] %s to member %d failed: %v", kind, member.ID, err)
		n.Status = models.NotificationFailed
		n.Error = err.Error()
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (member_id, type, subject, message, recipient_email, channel, message_id, status, error, date_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		n.MemberID, n.Type, n.Subject, n.Message, n.RecipientEmail, n.Channel, n.MessageID, n.Status, n.Error, n.DateSent).Scan(&n.ID)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// claim reserves a (kind, subject id, day) slot so the same reminder goes out at most once a day.
// release gives the slot back. Without Redis every reminder is sent.
func (s *NotificationService) claim(ctx context.Context, kind models.NotificationType, id int64) (release func(), ok bool) {
	noop := func() {}
	if s.redis == nil {
		return noop, true
	}
	key := fmt.Sprintf("notify:%s:%d:%s", kind, id, s.now().Format("2006-01-02"))
	ok, err := s.redis.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		log.Printf("[NOTIFY] de-duplication unavailable: %v", err)
		return noop, true
	}
	return func() {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			log.Printf("[NOTIFY] failed to release %s: %v", key, err)
		}
	}, ok
}

// remind sends a reminder once per slot per day. A failed send frees the slot so the next run
// retries it.
func (s *NotificationService) remind(ctx context.Context, tally *dispatchTally, member *models.Member, kind models.NotificationType, slot int64, subject, body string) error {
	release, ok := s.claim(ctx, kind, slot)
	if !ok {
		tally.Skipped++
		return nil
	}
	n, err := s.dispatch(ctx, member, kind, subject, body)
	if err != nil {
		release()
		return err
	}
	if n.Status == models.NotificationFailed {
		release()
	}
	tally.record(n)
	return nil
}

type dispatchTally struct {
	models.DispatchResult
}

func (r *dispatchTally) record(n *models.Notification) {
	if n.Status == models.NotificationSent {
		r.Sent++
	} else {
		r.Failed++
	}
}

type finesDue struct {
	member models.Member
	count  int
	total  decimal.Decimal
}

// ProcessFines sends one notice per member with PENDING fines, summarizing count and total
func (s *NotificationService) ProcessFines(ctx context.Context) (*models.DispatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.name, m.email, f.amount
		FROM fines f
		JOIN members m ON m.id = f.member_id
		WHERE f.status = $1
		ORDER BY m.id, f.id`, models.FinePending)
	if err != nil {
		return nil, err
	}

	var due []*finesDue
	for rows.Next() {
		var (
			m      models.Member
			amount decimal.Decimal
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &amount); err != nil {
			rows.Close()
			return nil, err
		}
		if len(due) == 0 || due[len(due)-1].member.ID != m.ID {
			due = append(due, &finesDue{member: m, total: decimal.Zero})
		}
		last := due[len(due)-1]
		last.count++
		last.total = last.total.Add(amount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tally := &dispatchTally{}
	for _, d := range due {
		body := fmt.Sprintf("Dear %s, you have %d pending fine(s) totalling %s. Please settle them at the circulation desk.",
			d.member.Name, d.count, d.total.StringFixed(2))
		if err := s.remind(ctx, tally, &d.member, models.NotificationFineNotice, d.member.ID, "Outstanding library fines", body); err != nil {
			return nil, err
		}
	}

	tally.Message = fmt.Sprintf("Fine notices processed for %d member(s)", len(due))
	s.audit.LogOperation("NOTIFY_FINES", "notification", 0, tally.DispatchResult)
	return &tally.DispatchResult, nil
}

type openLoan struct {
	transaction models.Transaction
	member      models.Member
	title       string
}

// ProcessOverdue sends an overdue reminder for every loan past due and a due-soon reminder for
// loans due within the configured number of days
func (s *NotificationService) ProcessOverdue(ctx context.Context) (*models.DispatchResult, error) {
	now := s.now()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.due_date, t.status, m.id, m.name, m.email, b.title
		FROM transactions t
		JOIN members m ON m.id = t.member_id
		JOIN books b ON b.id = t.book_id
		WHERE t.status <> $1
		ORDER BY t.due_date, t.id`, models.TransactionReturned)
	if err != nil {
		return nil, err
	}

	var loans []openLoan
	for rows.Next() {
		var l openLoan
		if err := rows.Scan(&l.transaction.ID, &l.transaction.DueDate, &l.transaction.Status,
			&l.member.ID, &l.member.Name, &l.member.Email, &l.title); err != nil {
			rows.Close()
			return nil, err
		}
		l.transaction.DueDate = l.transaction.DueDate.UTC()
		l.transaction.MemberID = l.member.ID
		loans = append(loans, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	window := time.Duration(s.reminderDays) * 24 * time.Hour
	tally := &dispatchTally{}
	overdue, dueSoon := 0, 0
	for _, l := range loans {
		var (
			kind          models.NotificationType
			subject, body string
		)
		due := l.transaction.DueDate.Format("2006-01-02")
		switch {
		case models.DeriveStatus(l.transaction, now) == models.TransactionOverdue:
			overdue++
			kind = models.NotificationOverdueReminder
			subject = "Overdue book: " + l.title
			late := "now overdue"
			if days := models.OverdueDays(l.transaction, now); days > 0 {
				late = fmt.Sprintf("%d day(s) overdue", days)
			}
			body = fmt.Sprintf("Dear %s, \"%s\" was due on %s and is %s. Late fees accrue daily until it is returned.",
				l.member.Name, l.title, due, late)
		case s.reminderDays > 0 && l.transaction.DueDate.Sub(now) <= window:
			dueSoon++
			kind = models.NotificationDueSoon
			subject = "Book due soon: " + l.title
			body = fmt.Sprintf("Dear %s, \"%s\" is due back on %s.", l.member.Name, l.title, due)
		default:
			continue
		}

		member := l.member
		if err := s.remind(ctx, tally, &member, kind, l.transaction.ID, subject, body); err != nil {
			return nil, err
		}
	}

	tally.Message = fmt.Sprintf("Processed %d overdue and %d due-soon loan(s)", overdue, dueSoon)
	s.audit.LogOperation("NOTIFY_OVERDUE", "notification", 0, tally.DispatchResult)
	return &tally.DispatchResult, nil
}

// Stats aggregates the notification log by status and type
func (s *NotificationService) Stats(ctx context.Context) (*models.NotificationStats, error) {
	stats := &models.NotificationStats{
		ByStatus: map[models.NotificationStatus]int{},
		ByType:   map[models.NotificationType]int{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, type, COUNT(*) FROM notifications GROUP BY status, type`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			status models.NotificationStatus
			kind   models.NotificationType
			count  int
		)
		if err := rows.Scan(&status, &kind, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[kind] += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx, `SELECT date_sent FROM notifications WHERE status = $1 ORDER BY id DESC LIMIT 1`,
		models.NotificationSent).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		last = last.UTC()
		stats.LastSentAt = &last
	}
	return stats, nil
}
