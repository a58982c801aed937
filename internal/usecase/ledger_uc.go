// internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/internal/repository"
	"wallet-topup-service/pkg/id"
	"wallet-topup-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerUsecase is the only writer of wallet balances.
type LedgerUsecase struct {
	txm             repository.TxManager
	walletRepo      repository.WalletRepository
	defaultCurrency string
	logger          *zap.Logger
	now             Clock
}

func NewLedgerUsecase(
	txm repository.TxManager,
	walletRepo repository.WalletRepository,
	defaultCurrency string,
	logger *zap.Logger,
) *LedgerUsecase {
	return &LedgerUsecase{
		txm:             txm,
		walletRepo:      walletRepo,
		defaultCurrency: domain.NormalizeCurrency(defaultCurrency),
		logger:          logger,
		now:             systemClock,
	}
}

// GetOrCreateWalletTx returns the user's wallet row-locked inside tx,
// creating it in currency on first use.
func (uc *LedgerUsecase) GetOrCreateWalletTx(ctx context.Context, tx pgx.Tx, userID, currency string) (*domain.Wallet, error) {
	w, err := uc.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, xerrors.ErrWalletNotFound) {
		return nil, err
	}

	w = domain.NewWallet(userID, currency)
	w.ID = id.GenerateUUID("wal")
	w.CreatedAt = uc.now()
	w.UpdatedAt = w.CreatedAt
	if err := uc.walletRepo.CreateIfMissing(ctx, tx, w); err != nil {
		return nil, err
	}
	uc.logger.Info("wallet created",
		zap.String("user_id", userID),
		zap.String("currency", w.Currency))

	return uc.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
}

// CreditTx credits inside the caller's transaction. The wallet is created
// when missing.
func (uc *LedgerUsecase) CreditTx(ctx context.Context, tx pgx.Tx, userID string, amount domain.Money, entry domain.LedgerEntry) (*domain.Wallet, *domain.WalletTransaction, error) {
	w, err := uc.GetOrCreateWalletTx(ctx, tx, userID, amount.Currency)
	if err != nil {
		return nil, nil, fmt.Errorf("load wallet: %w", err)
	}
	txn, err := w.Credit(amount, entry, uc.now())
	if err != nil {
		return nil, nil, err
	}
	if err := uc.persist(ctx, tx, w, txn); err != nil {
		return nil, nil, err
	}

	uc.logger.Info("wallet credited",
		zap.String("user_id", userID),
		zap.String("wallet_id", w.ID),
		zap.String("amount", amount.String()),
		zap.String("balance_after", txn.BalanceAfter.StringFixed(2)),
		zap.String("reason", entry.Reason))
	return w, txn, nil
}

func (uc *LedgerUsecase) DebitTx(ctx context.Context, tx pgx.Tx, userID string, amount domain.Money, entry domain.LedgerEntry) (*domain.Wallet, *domain.WalletTransaction, error) {
	w, err := uc.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load wallet: %w", err)
	}
	txn, err := w.Debit(amount, entry, uc.now())
	if err != nil {
		return nil, nil, err
	}
	if err := uc.persist(ctx, tx, w, txn); err != nil {
		return nil, nil, err
	}

	uc.logger.Info("wallet debited",
		zap.String("user_id", userID),
		zap.String("wallet_id", w.ID),
		zap.String("amount", amount.String()),
		zap.String("reason", entry.Reason))
	return w, txn, nil
}

func (uc *LedgerUsecase) Credit(ctx context.Context, userID string, amount domain.Money, entry domain.LedgerEntry) (*domain.WalletTransaction, error) {
	return uc.inTx(ctx, func(tx pgx.Tx) (*domain.WalletTransaction, error) {
		_, txn, err := uc.CreditTx(ctx, tx, userID, amount, entry)
		return txn, err
	})
}

func (uc *LedgerUsecase) Debit(ctx context.Context, userID string, amount domain.Money, entry domain.LedgerEntry) (*domain.WalletTransaction, error) {
	return uc.inTx(ctx, func(tx pgx.Tx) (*domain.WalletTransaction, error) {
		_, txn, err := uc.DebitTx(ctx, tx, userID, amount, entry)
		return txn, err
	})
}

// GetBalance reports zero in the default currency for a user without a
// wallet.
func (uc *LedgerUsecase) GetBalance(ctx context.Context, userID string) (*domain.BalanceResponse, error) {
	w, err := uc.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrWalletNotFound) {
			return &domain.BalanceResponse{UserID: userID, Balance: decimal.Zero, Currency: uc.defaultCurrency}, nil
		}
		return nil, err
	}
	return &domain.BalanceResponse{UserID: userID, Balance: w.Balance, Currency: w.Currency}, nil
}

func (uc *LedgerUsecase) ListTransactions(ctx context.Context, userID string, page domain.PageRequest) (domain.PagedResult[domain.WalletTransaction], error) {
	w, err := uc.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrWalletNotFound) {
			return domain.NewPagedResult[domain.WalletTransaction](nil, 0, page), nil
		}
		return domain.PagedResult[domain.WalletTransaction]{}, err
	}
	items, total, err := uc.walletRepo.ListTransactions(ctx, w.ID, page.PageSize, page.Offset())
	if err != nil {
		return domain.PagedResult[domain.WalletTransaction]{}, err
	}
	return domain.NewPagedResult(items, total, page), nil
}

func (uc *LedgerUsecase) persist(ctx context.Context, tx pgx.Tx, w *domain.Wallet, txn *domain.WalletTransaction) error {
	txn.ID = id.GenerateUUID("wtx")
	if err := uc.walletRepo.UpdateBalance(ctx, tx, w); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if err := uc.walletRepo.InsertTransaction(ctx, tx, txn); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

func (uc *LedgerUsecase) inTx(ctx context.Context, fn func(tx pgx.Tx) (*domain.WalletTransaction, error)) (*domain.WalletTransaction, error) {
	tx, err := uc.txm.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	txn, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return txn, nil
}
