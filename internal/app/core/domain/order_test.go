package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaidCrossing(t *testing.T) {
	all := []Status{StatusProcessing, StatusPaid, StatusError}
	for _, prev := range all {
		for _, next := range all {
			got := PaidCrossing(prev, next)
			switch {
			case prev == next:
				assert.Equal(t, CrossingNone, got, "%s -> %s", prev, next)
			case next == StatusPaid:
				assert.Equal(t, CrossingIntoPaid, got, "%s -> %s", prev, next)
			case prev == StatusPaid:
				assert.Equal(t, CrossingOutOfPaid, got, "%s -> %s", prev, next)
			default:
				assert.Equal(t, CrossingNone, got, "%s -> %s", prev, next)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" paid ")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, st)

	_, err = ParseStatus("REFUNDED")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestNewDepositConvertsWithPrice(t *testing.T) {
	now := time.Now()
	d, err := NewDeposit(7, dec("100"), dec("0.5"), now)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, d.Status)
	assertDecimal(t, "50", d.AmountInLedgerUnits, "ledger units")
	assert.Equal(t, int64(7), d.AccountID)

	_, err = NewDeposit(7, dec("0"), dec("1"), now)
	assert.ErrorIs(t, err, ErrAmountMustBePositive)

	_, err = NewWithdrawal(7, dec("1"), dec("0"), "addr", now)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestOrderTransition(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w, err := NewWithdrawal(1, dec("10"), dec("1"), "rAddr", created)
	require.NoError(t, err)

	later := created.Add(time.Hour)
	prev, err := w.Transition(StatusPaid, later)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, prev)
	assert.Equal(t, StatusPaid, w.Status)
	assert.Equal(t, later, w.UpdatedAt)

	// PAID -> ERROR is allowed (admin correction)
	prev, err = w.Transition(StatusError, later.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, prev)

	_, err = w.Transition(Status("LOST"), later)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, StatusError, w.Status)
}

func TestTransactionTypeJSON(t *testing.T) {
	raw, err := json.Marshal(TransactionTypeWithdraw)
	require.NoError(t, err)
	assert.JSONEq(t, `"withdrawal"`, string(raw))

	var tt TransactionType
	require.NoError(t, json.Unmarshal([]byte(`"credit"`), &tt))
	assert.Equal(t, TransactionTypeCredit, tt)
	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &tt))
}
