package usecase

import (
	"context"
	"testing"
	"time"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/xerrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func smsPayment(id string, amount int64, sender string) *domain.BankSmsPayment {
	p := &domain.BankSmsPayment{ID: id, Amount: decimal.NewFromInt(amount), Currency: "PKR"}
	if sender != "" {
		p.SenderName = &sender
	}
	return p
}

func seedLockHistory(h *harness, userID string, amount int64, at time.Time) {
	l := domain.NewTopupLock(userID, pkr(amount), time.Minute, "WTU-history-"+userID, at)
	l.ID = "hist-" + userID + "-" + decimal.NewFromInt(amount).String()
	l.Status = domain.TopupLockStatusExpired
	h.store.putLock(*l)
}

func TestFallbackMatcher_Match(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		history    map[string]int64
		payment    *domain.BankSmsPayment
		wantKind   MatchKind
		wantUser   string
		wantReason string
	}{
		{
			name:       "Given a close sender name and no history When matched Then the name decides",
			payment:    smsPayment("p1", 1200, "Bilal Ahmad"),
			wantKind:   MatchKindMatched,
			wantUser:   userBilal.ID,
			wantReason: reasonNameAndAmount,
		},
		{
			name:       "Given no sender and a single user with the amount When matched Then the history decides",
			history:    map[string]int64{userSara.ID: 650},
			payment:    smsPayment("p2", 650, ""),
			wantKind:   MatchKindMatched,
			wantUser:   userSara.ID,
			wantReason: reasonAmountOnly,
		},
		{
			name:       "Given name and history point at different users When matched Then nothing matches",
			history:    map[string]int64{userSara.ID: 900},
			payment:    smsPayment("p3", 900, "Ali Khan"),
			wantKind:   MatchKindNoMatch,
			wantReason: domain.ResultNoUserMatched,
		},
		{
			name:       "Given name and history agree When matched Then the single user is chosen",
			history:    map[string]int64{userSara.ID: 900, userAli.ID: 900},
			payment:    smsPayment("p4", 900, "Ali Khan"),
			wantKind:   MatchKindMatched,
			wantUser:   userAli.ID,
			wantReason: reasonNameAndAmount,
		},
		{
			name:       "Given two users with the amount and no sender When matched Then it is ambiguous",
			history:    map[string]int64{userSara.ID: 800, userAli.ID: 800},
			payment:    smsPayment("p5", 800, ""),
			wantKind:   MatchKindAmbiguous,
			wantReason: "Multiple users (2) matched criteria - manual review required",
		},
		{
			name:       "Given a zero amount When matched Then it is refused",
			payment:    smsPayment("p6", 0, "Ali Khan"),
			wantKind:   MatchKindInvalid,
			wantReason: domain.ResultInvalidMatchAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			for user, amount := range tt.history {
				seedLockHistory(h, user, amount, t0.Add(-24*time.Hour))
			}

			res, err := h.matcher.Match(ctx, nil, tt.payment)
			require.NoError(t, err)

			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantUser, res.UserID)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.False(t, res.Bumped)
		})
	}
}

func TestFallbackMatcher_HistoryWindow(t *testing.T) {
	h := newHarness(t, nil)
	seedLockHistory(h, userSara.ID, 650, t0.Add(-31*24*time.Hour))

	res, err := h.matcher.Match(context.Background(), nil, smsPayment("p1", 650, ""))
	require.NoError(t, err)

	assert.Equal(t, MatchKindNoMatch, res.Kind)
	assert.ErrorIs(t, res.Err(), xerrors.ErrNoMatch)
}

func TestFallbackMatcher_BumpsRepeatedAmount(t *testing.T) {
	h := newHarness(t, nil)
	txn := "SM1"
	h.store.putPayment(domain.BankSmsPayment{
		ID: "earlier", Amount: decimal.NewFromInt(1200), Currency: "PKR", TransactionID: &txn, Processed: true,
	})

	res, err := h.matcher.Match(context.Background(), nil, smsPayment("later", 1200, "Bilal Ahmad"))
	require.NoError(t, err)

	assert.Equal(t, MatchKindMatched, res.Kind)
	assert.True(t, res.Bumped)
	assert.True(t, res.ParsedAmount.Equal(pkr(1200)))
	assert.True(t, res.CreditAmount.Equal(pkr(1201)))
}

func TestMatchResult_Err(t *testing.T) {
	assert.NoError(t, (&MatchResult{Kind: MatchKindMatched}).Err())
	assert.ErrorIs(t, (&MatchResult{Kind: MatchKindAmbiguous}).Err(), xerrors.ErrAmbiguous)
	assert.ErrorIs(t, (&MatchResult{Kind: MatchKindInvalid}).Err(), xerrors.ErrInvalidAmount)
	assert.ErrorIs(t, (&MatchResult{Kind: MatchKindNoMatch}).Err(), xerrors.ErrNoMatch)
}

func TestNewFallbackMatcher_Defaults(t *testing.T) {
	m := NewFallbackMatcher(nil, nil, nil, MatcherConfig{SimilarityThreshold: 3}, zap.NewNop())
	assert.Equal(t, DefaultSimilarityThreshold, m.cfg.SimilarityThreshold)
	assert.Equal(t, DefaultHistoryWindow, m.cfg.HistoryWindow)
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, intersect([]string{"a", "b", "c"}, []string{"c", "b", "x"}))
	assert.Empty(t, intersect([]string{"a"}, []string{"b"}))
}
