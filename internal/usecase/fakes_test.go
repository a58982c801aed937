package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/cache"
	"wallet-topup-service/pkg/qrpay"
	"wallet-topup-service/pkg/smsparser"
	"wallet-topup-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// memStore is an in-memory stand-in for postgres. Transactions are
// serialized and roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	wallets map[string]domain.Wallet // by user id
	txns    []domain.WalletTransaction
	locks   map[string]domain.TopupLock
	sms     map[string]domain.BankSmsPayment
	users   []domain.User
}

type snapshot struct {
	wallets map[string]domain.Wallet
	txns    []domain.WalletTransaction
	locks   map[string]domain.TopupLock
	sms     map[string]domain.BankSmsPayment
}

func newMemStore() *memStore {
	return &memStore{
		wallets: map[string]domain.Wallet{},
		locks:   map[string]domain.TopupLock{},
		sms:     map[string]domain.BankSmsPayment{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		wallets: copyMap(s.wallets),
		txns:    append([]domain.WalletTransaction(nil), s.txns...),
		locks:   copyMap(s.locks),
		sms:     copyMap(s.sms),
	}
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets, s.txns, s.locks, s.sms = snap.wallets, snap.txns, snap.locks, snap.sms
}

func (s *memStore) BeginTx(context.Context) (pgx.Tx, error) {
	s.txMu.Lock()
	return &fakeTx{store: s, snap: s.snapshot()}, nil
}

type fakeTx struct {
	pgx.Tx
	store *memStore
	snap  snapshot
	done  bool
}

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.txMu.Unlock()
	return nil
}

// test accessors

func (s *memStore) wallet(userID string) (domain.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	return w, ok
}

func (s *memStore) balance(userID string) decimal.Decimal {
	w, ok := s.wallet(userID)
	if !ok {
		return decimal.Zero
	}
	return w.Balance
}

func (s *memStore) lock(id string) domain.TopupLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[id]
}

func (s *memStore) putLock(l domain.TopupLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[l.ID] = l
}

func (s *memStore) payment(id string) domain.BankSmsPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sms[id]
}

func (s *memStore) putPayment(p domain.BankSmsPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sms[p.ID] = p
}

func (s *memStore) ledgerFor(walletID string) []domain.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WalletTransaction
	for _, t := range s.txns {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out
}

// ---- wallets ----

type memWalletRepo struct{ s *memStore }

func (r *memWalletRepo) GetByUserID(_ context.Context, _ pgx.Tx, userID string) (*domain.Wallet, error) {
	w, ok := r.s.wallet(userID)
	if !ok {
		return nil, xerrors.ErrWalletNotFound
	}
	return &w, nil
}

func (r *memWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction cannot be nil")
	}
	return r.GetByUserID(ctx, tx, userID)
}

func (r *memWalletRepo) CreateIfMissing(_ context.Context, _ pgx.Tx, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.wallets[w.UserID]; !ok {
		stored := *w
		stored.Version = 0
		r.s.wallets[w.UserID] = stored
	}
	return nil
}

func (r *memWalletRepo) UpdateBalance(_ context.Context, _ pgx.Tx, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.wallets[w.UserID]
	if !ok || cur.Version != w.Version {
		return xerrors.ErrVersionConflict
	}
	w.Version++
	r.s.wallets[w.UserID] = *w
	return nil
}

func (r *memWalletRepo) InsertTransaction(_ context.Context, _ pgx.Tx, t *domain.WalletTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.txns = append(r.s.txns, *t)
	return nil
}

func (r *memWalletRepo) ListTransactions(_ context.Context, walletID string, limit, offset int) ([]domain.WalletTransaction, int64, error) {
	all := r.s.ledgerFor(walletID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, limit, offset), int64(len(all)), nil
}

// ---- locks ----

type memLockRepo struct {
	s *memStore
	// forUpdate replaces FindActiveForUpdate when set.
	forUpdate func(amount domain.Money, reference string, now time.Time) (*domain.TopupLock, error)
}

func (r *memLockRepo) Create(_ context.Context, _ pgx.Tx, l *domain.TopupLock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.locks {
		if o.IsPending() && o.Amount.Equal(l.Amount) {
			return fmt.Errorf("%w: amount %s already locked", xerrors.ErrDuplicate, l.Amount)
		}
	}
	r.s.locks[l.ID] = *l
	return nil
}

func (r *memLockRepo) Update(_ context.Context, _ pgx.Tx, l *domain.TopupLock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.locks[l.ID]
	if !ok || !cur.IsPending() {
		return fmt.Errorf("%w: lock %s is no longer pending", xerrors.ErrInvalidLockState, l.ID)
	}
	r.s.locks[l.ID] = *l
	return nil
}

func (r *memLockRepo) ExpireStale(_ context.Context, _ pgx.Tx, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, l := range r.s.locks {
		if l.IsPending() && l.IsExpired(now) {
			l.Status = domain.TopupLockStatusExpired
			l.UpdatedAt = now
			r.s.locks[id] = l
			n++
		}
	}
	return n, nil
}

func (r *memLockRepo) active(amount domain.Money, reference string, now time.Time) []domain.TopupLock {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TopupLock
	for _, l := range r.s.locks {
		if l.IsActive(now) && l.Amount.Equal(amount) && (reference == "" || l.TransactionReference == reference) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockedAt.After(out[j].LockedAt) })
	return out
}

func (r *memLockRepo) FindActiveAt(_ context.Context, _ pgx.Tx, amount domain.Money, now time.Time) (*domain.TopupLock, error) {
	found := r.active(amount, "", now)
	if len(found) == 0 {
		return nil, xerrors.ErrLockNotFound
	}
	return &found[0], nil
}

func (r *memLockRepo) FindActiveForUpdate(_ context.Context, tx pgx.Tx, amount domain.Money, reference string, now time.Time) (*domain.TopupLock, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction cannot be nil")
	}
	if r.forUpdate != nil {
		return r.forUpdate(amount, reference, now)
	}
	found := r.active(amount, reference, now)
	if len(found) == 0 {
		return nil, xerrors.ErrLockNotFound
	}
	return &found[0], nil
}

func (r *memLockRepo) GetByReference(_ context.Context, _ pgx.Tx, reference string, _ bool) (*domain.TopupLock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.locks {
		if l.TransactionReference == reference {
			return &l, nil
		}
	}
	return nil, xerrors.ErrLockNotFound
}

func (r *memLockRepo) DistinctUsersWithLockAt(_ context.Context, _ pgx.Tx, amount domain.Money, since time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, l := range r.s.locks {
		if l.Amount.Equal(amount) && l.CreatedAt.After(since) && !seen[l.UserID] {
			seen[l.UserID] = true
			out = append(out, l.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memLockRepo) List(_ context.Context, status *domain.TopupLockStatus, page domain.PageRequest) ([]domain.TopupLock, int64, error) {
	r.s.mu.Lock()
	var all []domain.TopupLock
	for _, l := range r.s.locks {
		if status == nil || l.Status == *status {
			all = append(all, l)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page.PageSize, page.Offset()), int64(len(all)), nil
}

// ---- bank sms ----

type memSmsRepo struct {
	s *memStore
	// failTxUpdate is returned by Update calls made inside a transaction.
	failTxUpdate error
	// missDuplicates makes the processed lookups report false, as when a
	// concurrent delivery has not committed yet.
	missDuplicates bool
}

func (r *memSmsRepo) Create(_ context.Context, _ pgx.Tx, p *domain.BankSmsPayment) error {
	r.s.putPayment(*p)
	return nil
}

func (r *memSmsRepo) Update(_ context.Context, tx pgx.Tx, p *domain.BankSmsPayment) error {
	if tx != nil && r.failTxUpdate != nil {
		return r.failTxUpdate
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sms[p.ID]; !ok {
		return xerrors.ErrNotFound
	}
	if p.Processed && p.WalletID != nil {
		for _, o := range r.s.sms {
			if o.ID == p.ID || !o.Processed || o.WalletID == nil {
				continue
			}
			sameTxn := p.TransactionID != nil && o.TxnID() == *p.TransactionID
			sameRaw := p.TransactionID == nil && o.TransactionID == nil && o.RawTextHash == p.RawTextHash
			if sameTxn || sameRaw {
				return fmt.Errorf("%w: payment %s already credited", xerrors.ErrDuplicate, p.ID)
			}
		}
	}
	r.s.sms[p.ID] = *p
	return nil
}

func (r *memSmsRepo) ExistsProcessedTransaction(_ context.Context, _ pgx.Tx, transactionID, excludeID string) (bool, error) {
	if r.missDuplicates {
		return false, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.sms {
		if p.Processed && p.ID != excludeID && p.TxnID() == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSmsRepo) ExistsProcessedRawText(_ context.Context, _ pgx.Tx, rawTextHash, excludeID string) (bool, error) {
	if r.missDuplicates {
		return false, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.sms {
		if p.Processed && p.ID != excludeID && p.TransactionID == nil && p.RawTextHash == rawTextHash {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSmsRepo) ExistsProcessedAmount(_ context.Context, _ pgx.Tx, amount domain.Money, excludeID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.sms {
		if p.Processed && p.ID != excludeID && p.Money().Equal(amount) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSmsRepo) List(_ context.Context, processed *bool, page domain.PageRequest) ([]domain.BankSmsPayment, int64, error) {
	r.s.mu.Lock()
	var all []domain.BankSmsPayment
	for _, p := range r.s.sms {
		if processed == nil || p.Processed == *processed {
			all = append(all, p)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, page.PageSize, page.Offset()), int64(len(all)), nil
}

// ---- users ----

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) ListAll(context.Context, pgx.Tx) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.User(nil), r.s.users...), nil
}

func paginate[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// ---- clock, publisher, locker ----

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TopupEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.TopupEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) ofType(eventType string) []domain.TopupEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.TopupEvent
	for _, e := range p.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// ---- harness ----

var (
	userAli     = domain.User{ID: "11111111-1111-4111-8111-111111111111", FirstName: "Ali", LastName: "Khan"}
	userSara    = domain.User{ID: "22222222-2222-4222-8222-222222222222", FirstName: "Sara", LastName: "Iqbal"}
	userMunazza = domain.User{ID: "33333333-3333-4333-8333-333333333333", FirstName: "Munazza", LastName: "Kausar"}
	userBilal   = domain.User{ID: "44444444-4444-4444-8444-444444444444", FirstName: "Bilal", LastName: "Ahmed"}

	t0  = time.Date(2025, 9, 27, 8, 0, 0, 0, time.UTC)
	pkt = time.FixedZone("PKT", 5*3600)
)

type harness struct {
	store     *memStore
	wallets   *memWalletRepo
	locks     *memLockRepo
	sms       *memSmsRepo
	clock     *testClock
	pub       *recordingPublisher
	ledger    *LedgerUsecase
	topup     *TopupUsecase
	matcher   *FallbackMatcher
	reconcile *ReconcileUsecase
}

func newHarness(t *testing.T, locker cache.Locker) *harness {
	t.Helper()
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	logger := zap.NewNop()
	store := newMemStore()
	store.users = []domain.User{userAli, userSara, userMunazza, userBilal}

	h := &harness{
		store:   store,
		wallets: &memWalletRepo{s: store},
		locks:   &memLockRepo{s: store},
		sms:     &memSmsRepo{s: store},
		clock:   &testClock{t: t0},
		pub:     &recordingPublisher{},
	}

	h.ledger = NewLedgerUsecase(store, h.wallets, "PKR", logger)
	h.ledger.now = h.clock.Now

	h.topup = NewTopupUsecase(store, h.locks, h.ledger, locker, qrpay.NewEncoder(qrpay.DefaultMerchantAccount), h.pub,
		TopupConfig{LockTTL: 2 * time.Minute, DefaultCurrency: "PKR", Location: pkt}, logger)
	h.topup.now = h.clock.Now

	h.matcher = NewFallbackMatcher(h.sms, h.locks, &memUserRepo{s: store},
		MatcherConfig{SimilarityThreshold: 0.5, HistoryWindow: 30 * 24 * time.Hour}, logger)
	h.matcher.now = h.clock.Now

	h.reconcile = NewReconcileUsecase(store, h.sms, h.locks, h.ledger, h.matcher, smsparser.New(pkt), h.pub, logger)
	h.reconcile.now = h.clock.Now
	return h
}

func pkr(v int64) domain.Money { return domain.NewMoney(decimal.NewFromInt(v), "PKR") }

func raastSMS(amount, sender, txnID string) string {
	return fmt.Sprintf("PKR %s received from %s A/C via Raast on 27/09/2025 13:05:56, TXN ID %s. UAN:021111111425.",
		amount, sender, txnID)
}
