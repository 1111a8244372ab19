package domain

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIntentTransition(t *testing.T) {
	cases := []struct {
		from, to IntentStatus
		valid    bool
	}{
		{IntentDraft, IntentOrderCreated, true},
		{IntentOrderCreated, IntentSettled, true},
		{IntentSettled, IntentIssued, true},
		{IntentDraft, IntentSettled, false},
		{IntentOrderCreated, IntentIssued, false},
		{IntentIssued, IntentSettled, false},
		{IntentSettled, IntentOrderCreated, false},
		{IntentIssued, IntentIssued, false},
	}
	for _, tt := range cases {
		if got := ValidIntentTransition(tt.from, tt.to); got != tt.valid {
			t.Fatalf("ValidIntentTransition(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestPurchaseIntent_Advance(t *testing.T) {
	p := PurchaseIntent{Status: IntentDraft}
	require.NoError(t, p.Advance(IntentOrderCreated))
	require.Error(t, p.Advance(IntentIssued))
	assert.Equal(t, IntentOrderCreated, p.Status)
}

func TestLineTotal_Exact(t *testing.T) {
	price := decimal.RequireFromString("0.10")
	assert.True(t, LineTotal(price, 3).Equal(decimal.RequireFromString("0.30")))

	price = decimal.RequireFromString("500")
	assert.Equal(t, "1500", LineTotal(price, 3).String())
}

func TestMinorUnits(t *testing.T) {
	minor, err := MinorUnits(decimal.RequireFromString("1499.99"))
	require.NoError(t, err)
	assert.Equal(t, int64(149999), minor)

	_, err = MinorUnits(decimal.RequireFromString("1.005"))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindValidation, KindOf(Validationf("bad count %d", 0)))
	assert.Equal(t, KindNotFound, KindOf(errors.Wrap(NotFoundf("intent"), "load")))
	assert.Equal(t, KindDependencyUnavailable, KindOf(Unavailable(errors.New("dial tcp"), "ledger")))
	assert.Equal(t, KindIssuanceFailed, KindOf(IssuanceFailed(Unavailable(errors.New("dial tcp"), "ledger"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
