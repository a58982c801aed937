// internal/usecase/matcher.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/internal/repository"
	"wallet-topup-service/pkg/fuzzy"
	"wallet-topup-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	DefaultSimilarityThreshold = 0.5
	DefaultHistoryWindow       = 30 * 24 * time.Hour

	reasonNameAndAmount = "Matched by name similarity and amount pattern"
	reasonAmountOnly    = "Matched by amount pattern"
)

type MatchKind string

const (
	MatchKindMatched   MatchKind = "matched"
	MatchKindNoMatch   MatchKind = "no_match"
	MatchKindAmbiguous MatchKind = "ambiguous"
	MatchKindInvalid   MatchKind = "invalid"
)

// MatchResult carries both the parsed and the credited amount so an
// operator can audit a +1 adjustment.
type MatchResult struct {
	Kind         MatchKind
	UserID       string
	ParsedAmount domain.Money
	CreditAmount domain.Money
	Bumped       bool
	Candidates   int
	Reason       string
}

// Err maps a non-match to its sentinel.
func (r *MatchResult) Err() error {
	switch r.Kind {
	case MatchKindMatched:
		return nil
	case MatchKindAmbiguous:
		return xerrors.ErrAmbiguous
	case MatchKindInvalid:
		return xerrors.ErrInvalidAmount
	default:
		return xerrors.ErrNoMatch
	}
}

type MatcherConfig struct {
	SimilarityThreshold float64
	HistoryWindow       time.Duration
}

// FallbackMatcher guesses the payer of an SMS that matched no lock, from
// the sender name and the user's recent lock amounts. Only a single
// candidate is ever credited.
type FallbackMatcher struct {
	smsRepo  repository.BankSmsPaymentRepository
	lockRepo repository.TopupLockRepository
	userRepo repository.UserRepository
	cfg      MatcherConfig
	logger   *zap.Logger
	now      Clock
}

func NewFallbackMatcher(
	smsRepo repository.BankSmsPaymentRepository,
	lockRepo repository.TopupLockRepository,
	userRepo repository.UserRepository,
	cfg MatcherConfig,
	logger *zap.Logger,
) *FallbackMatcher {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &FallbackMatcher{
		smsRepo:  smsRepo,
		lockRepo: lockRepo,
		userRepo: userRepo,
		cfg:      cfg,
		logger:   logger,
		now:      systemClock,
	}
}

func (m *FallbackMatcher) Match(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) (*MatchResult, error) {
	parsed := p.Money()
	res := &MatchResult{ParsedAmount: parsed, CreditAmount: parsed}
	if !parsed.IsPositive() {
		res.Kind = MatchKindInvalid
		res.Reason = domain.ResultInvalidMatchAmount
		return res, nil
	}

	// A previously credited payment at this amount bumps the credit by one
	// unit. Only one bump is ever applied.
	seen, err := m.smsRepo.ExistsProcessedAmount(ctx, tx, parsed, p.ID)
	if err != nil {
		return nil, err
	}
	if seen {
		res.CreditAmount = parsed.Plus(1)
		res.Bumped = true
	}

	nameCandidates, err := m.nameCandidates(ctx, tx, p.Sender())
	if err != nil {
		return nil, err
	}
	amountCandidates, err := m.lockRepo.DistinctUsersWithLockAt(ctx, tx, parsed, m.now().Add(-m.cfg.HistoryWindow))
	if err != nil {
		return nil, err
	}

	var candidates []string
	switch {
	case len(nameCandidates) > 0 && len(amountCandidates) > 0:
		candidates = intersect(nameCandidates, amountCandidates)
	case len(nameCandidates) > 0:
		candidates = nameCandidates
	default:
		candidates = amountCandidates
	}
	res.Candidates = len(candidates)

	m.logger.Info("fallback match candidates",
		zap.String("sms_payment_id", p.ID),
		zap.String("sender", p.Sender()),
		zap.Int("name_candidates", len(nameCandidates)),
		zap.Int("amount_candidates", len(amountCandidates)),
		zap.Int("final_candidates", len(candidates)),
		zap.Bool("amount_bumped", res.Bumped))

	switch len(candidates) {
	case 0:
		res.Kind = MatchKindNoMatch
		res.Reason = domain.ResultNoUserMatched
	case 1:
		res.Kind = MatchKindMatched
		res.UserID = candidates[0]
		res.Reason = reasonAmountOnly
		if p.Sender() != "" {
			res.Reason = reasonNameAndAmount
		}
	default:
		res.Kind = MatchKindAmbiguous
		res.Reason = fmt.Sprintf("Multiple users (%d) matched criteria - manual review required", len(candidates))
	}
	return res, nil
}

func (m *FallbackMatcher) nameCandidates(ctx context.Context, tx pgx.Tx, sender string) ([]string, error) {
	sender = fuzzy.Normalize(sender)
	if sender == "" {
		return nil, nil
	}
	users, err := m.userRepo.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, u := range users {
		full := fuzzy.Similarity(sender, u.FullName())
		first := fuzzy.Similarity(sender, u.FirstName)
		last := fuzzy.Similarity(sender, u.LastName)
		if full > m.cfg.SimilarityThreshold || first > m.cfg.SimilarityThreshold || last > m.cfg.SimilarityThreshold {
			m.logger.Debug("name match",
				zap.String("user_id", u.ID),
				zap.Float64("full", full),
				zap.Float64("first", first),
				zap.Float64("last", last))
			out = append(out, u.ID)
		}
	}
	return out, nil
}

// intersect keeps a's order.
func intersect(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := in[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
