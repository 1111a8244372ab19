package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/memory"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/credential"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/ledger"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type issued struct {
	intentID    uuid.UUID
	unitIDs     []int64
	credentials []string
}

func issue(t *testing.T, l *memory.Ledger, codec *credential.Codec, count int) issued {
	t.Helper()
	out := issued{intentID: uuid.New()}
	now := time.Now().UTC()
	err := l.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.CreateIntent(ctx, domain.PurchaseIntent{
			ID:          out.intentID,
			EventID:     uuid.New(),
			UnitCount:   count,
			TotalAmount: decimal.NewFromInt(int64(500 * count)),
			Status:      domain.IntentOrderCreated,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if _, err := tx.SetSettlement(ctx, out.intentID, "pay_1", now); err != nil {
			return err
		}
		ids, err := tx.CreateUnits(ctx, out.intentID, count)
		if err != nil {
			return err
		}
		for _, id := range ids {
			payload, err := codec.Encode(out.intentID, id, now)
			if err != nil {
				return err
			}
			if err := tx.SetCredential(ctx, id, payload); err != nil {
				return err
			}
			out.credentials = append(out.credentials, payload)
		}
		out.unitIDs = ids
		return tx.MarkIssued(ctx, out.intentID)
	})
	require.NoError(t, err)
	return out
}

func newValidator(t *testing.T) (*Validator, *memory.Ledger, *credential.Codec) {
	t.Helper()
	codec, err := credential.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	l := memory.NewLedger()
	return NewValidator(l, codec, nil, observability.NewNopLogger()), l, codec
}

func TestValidate_AdmitThenReplay(t *testing.T) {
	v, l, codec := newValidator(t)
	ctx := context.Background()
	tickets := issue(t, l, codec, 3)

	res, err := v.Validate(ctx, tickets.credentials[1])
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionAdmitted, res.Status)
	assert.Equal(t, "Entry allowed", res.Message)
	assert.Equal(t, tickets.intentID, res.IntentID)
	assert.Equal(t, tickets.unitIDs[1], res.UnitID)

	units, err := l.ListUnits(ctx, tickets.intentID)
	require.NoError(t, err)
	require.NotNil(t, units[1].EnteredAt)
	firstEntry := *units[1].EnteredAt

	res, err = v.Validate(ctx, tickets.credentials[1])
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionAlreadyAdmitted, res.Status)
	assert.Equal(t, tickets.unitIDs[1], res.UnitID)

	units, err = l.ListUnits(ctx, tickets.intentID)
	require.NoError(t, err)
	assert.Equal(t, firstEntry, *units[1].EnteredAt)
	assert.False(t, units[0].Entered)
	assert.False(t, units[2].Entered)

	outbox := l.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, "ticket.admitted", outbox[0].EventType)
}

func TestValidate_Outcomes(t *testing.T) {
	v, l, codec := newValidator(t)
	tickets := issue(t, l, codec, 1)

	unknown, err := codec.Encode(uuid.New(), 999999, time.Now())
	require.NoError(t, err)
	foreign, err := codec.Encode(uuid.New(), tickets.unitIDs[0], time.Now())
	require.NoError(t, err)
	other, err := credential.NewCodec([]byte("another-secret-of-enough-length"))
	require.NoError(t, err)
	wrongKey, err := other.Encode(tickets.intentID, tickets.unitIDs[0], time.Now())
	require.NoError(t, err)

	cases := map[string]struct {
		payload string
		want    domain.AdmissionStatus
	}{
		"empty":          {"", domain.AdmissionEmptyInput},
		"whitespace":     {"  \t\n", domain.AdmissionEmptyInput},
		"garbage":        {"not-a-ticket", domain.AdmissionInvalidCredential},
		"wrong key":      {wrongKey, domain.AdmissionInvalidCredential},
		"foreign intent": {foreign, domain.AdmissionInvalidCredential},
		"unknown unit":   {unknown, domain.AdmissionUnknownTicket},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := v.Validate(context.Background(), tc.payload)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
			assert.Equal(t, tc.want.Message(), res.Message)
		})
	}

	units, err := l.ListUnits(context.Background(), tickets.intentID)
	require.NoError(t, err)
	assert.False(t, units[0].Entered)
}

func TestValidate_ConcurrentScansAdmitOnce(t *testing.T) {
	v, l, codec := newValidator(t)
	tickets := issue(t, l, codec, 1)

	const scanners = 16
	var wg sync.WaitGroup
	statuses := make(chan domain.AdmissionStatus, scanners)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := v.Validate(context.Background(), tickets.credentials[0])
			assert.NoError(t, err)
			statuses <- res.Status
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[domain.AdmissionStatus]int{}
	for s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[domain.AdmissionAdmitted])
	assert.Equal(t, scanners-1, counts[domain.AdmissionAlreadyAdmitted])
}

type brokenLedger struct {
	ledger.Ledger
}

func (brokenLedger) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return errors.New("connection refused")
}

type recordingAuditor struct {
	statuses []domain.AdmissionStatus
}

func (r *recordingAuditor) LogAdmission(ctx context.Context, intentID uuid.UUID, unitID int64, status domain.AdmissionStatus) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func TestValidate_StorageFailureIsNotAScanOutcome(t *testing.T) {
	codec, err := credential.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	v := NewValidator(brokenLedger{}, codec, nil, observability.NewNopLogger())

	payload, err := codec.Encode(uuid.New(), 1001, time.Now())
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), payload)
	assert.Equal(t, domain.KindDependencyUnavailable, domain.KindOf(err))
}

func TestValidate_Audits(t *testing.T) {
	codec, err := credential.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	l := memory.NewLedger()
	auditor := &recordingAuditor{}
	v := NewValidator(l, codec, auditor, observability.NewNopLogger())
	tickets := issue(t, l, codec, 1)

	_, err = v.Validate(context.Background(), tickets.credentials[0])
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), tickets.credentials[0])
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), "garbage")
	require.NoError(t, err)

	assert.Equal(t, []domain.AdmissionStatus{domain.AdmissionAdmitted, domain.AdmissionAlreadyAdmitted}, auditor.statuses)
}
