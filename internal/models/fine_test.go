package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFineStatus_Next(t *testing.T) {
	tests := []struct {
		from    FineStatus
		action  FineAction
		want    FineStatus
		wantErr bool
	}{
		{FinePending, FineActionPay, FinePaid, false},
		{FinePending, FineActionCancel, FineCancelled, false},
		{FinePending, FineActionReverse, FinePending, true},
		{FinePaid, FineActionReverse, FinePending, false},
		{FinePaid, FineActionPay, FinePaid, true},
		{FinePaid, FineActionCancel, FinePaid, true},
		{FineCancelled, FineActionPay, FineCancelled, true},
		{FineCancelled, FineActionCancel, FineCancelled, true},
		{FineCancelled, FineActionReverse, FineCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.action), func(t *testing.T) {
			got, err := tt.from.Next(tt.action)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFine_Apply(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("pay then reverse restores pending", func(t *testing.T) {
		f := Fine{ID: 1, Amount: decimal.RequireFromString("2.50"), FineType: FineLateReturn, Status: FinePending}

		require.NoError(t, f.Apply(FineActionPay, now))
		assert.Equal(t, FinePaid, f.Status)
		require.NotNil(t, f.PaidDate)
		assert.True(t, f.PaidDate.Equal(now))

		require.NoError(t, f.Apply(FineActionReverse, now.Add(time.Hour)))
		assert.Equal(t, FinePending, f.Status)
		assert.Nil(t, f.PaidDate)
		assert.True(t, f.Amount.Equal(decimal.RequireFromString("2.50")))
	})

	t.Run("rejected action leaves fine unchanged", func(t *testing.T) {
		f := Fine{ID: 2, Amount: decimal.NewFromInt(10), Status: FineCancelled}
		before := f

		err := f.Apply(FineActionPay, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, before, f)
	})
}

func TestParseFineType(t *testing.T) {
	ft, ok := ParseFineType("LOST_ITEM")
	assert.True(t, ok)
	assert.Equal(t, FineLostItem, ft)
	assert.True(t, ft.RequiresAmount())

	ft, ok = ParseFineType("LATE_RETURN")
	assert.True(t, ok)
	assert.False(t, ft.RequiresAmount())

	_, ok = ParseFineType("late_return")
	assert.False(t, ok)
}

func TestLatePolicy_LateFee(t *testing.T) {
	policy := LatePolicy{DailyRate: decimal.RequireFromString("0.50")}

	assert.True(t, policy.LateFee(0).IsZero())
	assert.True(t, policy.LateFee(-3).IsZero())
	assert.Equal(t, "2.5", policy.LateFee(5).String())

	capped := LatePolicy{DailyRate: decimal.RequireFromString("0.50"), MaxAmount: decimal.NewFromInt(3)}
	assert.Equal(t, "3", capped.LateFee(10).String())
	assert.Equal(t, "1", capped.LateFee(2).String())
}

func TestSumFines(t *testing.T) {
	march := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	april := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	fines := []Fine{
		{ID: 1, Amount: decimal.RequireFromString("1.50"), Status: FinePending},
		{ID: 2, Amount: decimal.RequireFromString("2.25"), Status: FinePending},
		{ID: 3, Amount: decimal.RequireFromString("4.00"), Status: FinePaid, PaidDate: &march},
		{ID: 4, Amount: decimal.RequireFromString("7.00"), Status: FinePaid, PaidDate: &april},
		{ID: 5, Amount: decimal.RequireFromString("9.99"), Status: FineCancelled},
	}

	pending := SumFines(fines, FinePending, nil, nil)
	assert.Equal(t, 2, pending.Count)
	assert.Equal(t, "3.75", pending.Total.StringFixed(2))

	paid := SumFines(fines, FinePaid, nil, nil)
	assert.Equal(t, 2, paid.Count)
	assert.Equal(t, "11.00", paid.Total.StringFixed(2))

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := april
	window := SumFines(fines, FinePaid, &from, &to)
	assert.Equal(t, 1, window.Count, "upper bound is exclusive")
	assert.Equal(t, "4.00", window.Total.StringFixed(2))

	empty := SumFines(nil, FinePaid, nil, nil)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.Total.IsZero())
}
