package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when an action is not allowed from the fine's current status
var ErrInvalidTransition = errors.New("invalid fine transition")

type FineType string

const (
	FineLateReturn  FineType = "LATE_RETURN"
	FineLostItem    FineType = "LOST_ITEM"
	FineDamagedItem FineType = "DAMAGED_ITEM"
)

// ParseFineType accepts the canonical upper-case names only
func ParseFineType(s string) (FineType, bool) {
	switch ft := FineType(s); ft {
	case FineLateReturn, FineLostItem, FineDamagedItem:
		return ft, true
	}
	return "", false
}

// RequiresAmount reports whether the caller must supply the amount. LATE_RETURN is priced
// from the overdue days instead.
func (t FineType) RequiresAmount() bool {
	return t != FineLateReturn
}

type FineStatus string

const (
	FinePending   FineStatus = "PENDING"
	FinePaid      FineStatus = "PAID"
	FineCancelled FineStatus = "CANCELLED"
)

func (s FineStatus) Valid() bool {
	switch s {
	case FinePending, FinePaid, FineCancelled:
		return true
	}
	return false
}

type FineAction string

const (
	FineActionPay     FineAction = "pay"
	FineActionCancel  FineAction = "cancel"
	FineActionReverse FineAction = "reverse"
)

var fineTransitions = map[FineStatus]map[FineAction]FineStatus{
	FinePending: {
		FineActionPay:    FinePaid,
		FineActionCancel: FineCancelled,
	},
	FinePaid: {
		FineActionReverse: FinePending,
	},
}

// Next returns the status reached by applying action, or ErrInvalidTransition
func (s FineStatus) Next(action FineAction) (FineStatus, error) {
	to, ok := fineTransitions[s][action]
	if !ok {
		return s, ErrInvalidTransition
	}
	return to, nil
}

// Fine is a monetary charge attached to one transaction
type Fine struct {
	ID            int64           `json:"fineId" db:"id"`
	TransactionID int64           `json:"transactionId" db:"transaction_id"`
	MemberID      int64           `json:"memberId" db:"member_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount" swaggertype:"string" example:"2.50"`
	FineType      FineType        `json:"fineType" db:"fine_type"`
	Status        FineStatus      `json:"status" db:"status"`
	PaidDate      *time.Time      `json:"paidDate,omitempty" db:"paid_date"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// Apply moves the fine along the transition table. On error the fine is left untouched.
func (f *Fine) Apply(action FineAction, now time.Time) error {
	to, err := f.Status.Next(action)
	if err != nil {
		return err
	}
	switch to {
	case FinePaid:
		paid := now.UTC()
		f.PaidDate = &paid
	case FinePending:
		f.PaidDate = nil
	}
	f.Status = to
	f.UpdatedAt = now.UTC()
	return nil
}

// LatePolicy prices LATE_RETURN fines
type LatePolicy struct {
	DailyRate decimal.Decimal
	MaxAmount decimal.Decimal // zero means uncapped
}

// LateFee is DailyRate × days, capped at MaxAmount when set. Zero days yields zero.
func (p LatePolicy) LateFee(days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	fee := p.DailyRate.Mul(decimal.NewFromInt(int64(days))).Round(2)
	if p.MaxAmount.IsPositive() && fee.GreaterThan(p.MaxAmount) {
		return p.MaxAmount.Round(2)
	}
	return fee
}

// FineTotal is the aggregate returned by the totals endpoints
type FineTotal struct {
	Status   FineStatus      `json:"status"`
	MemberID *int64          `json:"memberId,omitempty"`
	From     *time.Time      `json:"from,omitempty"`
	To       *time.Time      `json:"to,omitempty"`
	Total    decimal.Decimal `json:"total" swaggertype:"string" example:"12.50"`
	Count    int             `json:"count"`
}

// SumFines adds up the fines in the given status. When from/to are set the window
// [from, to) is applied to PaidDate, so fines without a paid date are excluded.
func SumFines(fines []Fine, status FineStatus, from, to *time.Time) FineTotal {
	total := FineTotal{Status: status, From: from, To: to, Total: decimal.Zero}
	for _, f := range fines {
		if f.Status != status {
			continue
		}
		if from != nil || to != nil {
			if f.PaidDate == nil {
				continue
			}
			if from != nil && f.PaidDate.Before(*from) {
				continue
			}
			if to != nil && !f.PaidDate.Before(*to) {
				continue
			}
		}
		total.Total = total.Total.Add(f.Amount)
		total.Count++
	}
	total.Total = total.Total.Round(2)
	return total
}
