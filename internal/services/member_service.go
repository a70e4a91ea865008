package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

const memberColumns = `id, name, email, phone, address, membership_status, created_at, updated_at`

type MemberService struct {
	db    *sql.DB
	audit *audit.Logger
	now   func() time.Time
}

func NewMemberService(db *sql.DB, auditLogger *audit.Logger) *MemberService {
	return &MemberService{
		db:    db,
		audit: auditLogger,
		now:   utcNow,
	}
}

func scanMember(row rowScanner) (*models.Member, error) {
	var m models.Member
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Address, &m.MembershipStatus, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func (s *MemberService) List(ctx context.Context) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberService) Get(ctx context.Context, id int64) (*models.Member, error) {
	return getMember(ctx, s.db, id)
}

func getMember(ctx context.Context, q queryer, id int64) (*models.Member, error) {
	m, err := scanMember(q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
	}
	return m, err
}

func (s *MemberService) Create(ctx context.Context, req models.MemberRequest) (*models.Member, error) {
	now := s.now()
	status := req.MembershipStatus
	if status == "" {
		status = models.MembershipActive
	}

	m := &models.Member{
		Name:             strings.TrimSpace(req.Name),
		Email:            normalizeEmail(req.Email),
		Phone:            req.Phone,
		Address:          strings.TrimSpace(req.Address),
		MembershipStatus: status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO members (name, email, phone, address, membership_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		m.Name, m.Email, m.Phone, m.Address, m.MembershipStatus, m.CreatedAt, m.UpdatedAt).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	s.audit.LogCreate("member", m.ID, m.ID, "", map[string]string{"status": string(m.MembershipStatus)})
	return m, nil
}

// Update replaces the member's fields. An empty membershipStatus keeps the current one.
func (s *MemberService) Update(ctx context.Context, id int64, req models.MemberRequest) (*models.Member, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := req.MembershipStatus
	if status == "" {
		status = current.MembershipStatus
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET name = $1, email = $2, phone = $3, address = $4, membership_status = $5, updated_at = $6
		WHERE id = $7`,
		strings.TrimSpace(req.Name), normalizeEmail(req.Email), req.Phone, strings.TrimSpace(req.Address), status, s.now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	if err := expectOneRow(res, fmt.Errorf("member %d: %w", id, ErrNotFound)); err != nil {
		return nil, err
	}

	if status != current.MembershipStatus {
		s.audit.LogTransition("member", id, id, string(current.MembershipStatus), string(status), "")
	}
	return s.Get(ctx, id)
}

// SetStatus records one discrete status change. Setting the current status again is a no-op update.
func (s *MemberService) SetStatus(ctx context.Context, id int64, status models.MembershipStatus) (*models.Member, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("membership status %q: %w", status, ErrInvalidStatus)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE members SET membership_status = $1, updated_at = $2 WHERE id = $3`,
		status, s.now(), id)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res, fmt.Errorf("member %d: %w", id, ErrNotFound)); err != nil {
		return nil, err
	}

	s.audit.LogTransition("member", id, id, string(current.MembershipStatus), string(status), "")
	return s.Get(ctx, id)
}

// Delete removes a member and its loan history. Members with books on loan, pending fines or
// paid fines on record are kept; cancelled fines go with the history.
func (s *MemberService) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := getMember(ctx, tx, id); err != nil {
		return err
	}

	open, err := countRows(ctx, tx, `SELECT COUNT(*) FROM transactions WHERE member_id = $1 AND status <> $2`,
		id, models.TransactionReturned)
	if err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("member %d: %w", id, ErrHasOpenLoans)
	}

	if err := checkFineHolds(ctx, tx, "f.member_id = $1", id); err != nil {
		return fmt.Errorf("member %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit.LogOperation("DELETE", "member", id, nil)
	return nil
}

// CardPNG renders the member's library card as a QR code image
func (s *MemberService) CardPNG(ctx context.Context, id int64, size int) ([]byte, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"memberId": m.ID,
		"name":     m.Name,
		"status":   m.MembershipStatus,
	})
	if err != nil {
		return nil, err
	}

	qr, err := qrcode.New(string(payload), qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseMembershipStatus accepts ACTIVE/INACTIVE in any case
func ParseMembershipStatus(s string) (models.MembershipStatus, error) {
	status := models.MembershipStatus(strings.ToUpper(s))
	if !status.Valid() {
		return "", fmt.Errorf("membership status must be ACTIVE or INACTIVE: %w", ErrInvalidStatus)
	}
	return status, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
