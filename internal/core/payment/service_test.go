package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
	"github.com/hmkhan10/RouteBase/internal/core/gateway"
)

// memStore is an in-memory TransactionStore + SellerStore. Its mutex plays
// the role of the database row lock: Complete serializes exactly like
// SELECT ... FOR UPDATE does in the real repository.
type memStore struct {
	mu      sync.Mutex
	byRef   map[string]*domain.Transaction
	byKey   map[string]string
	sellers map[uuid.UUID]*domain.Seller
}

func newMemStore() *memStore {
	return &memStore{
		byRef:   make(map[string]*domain.Transaction),
		byKey:   make(map[string]string),
		sellers: make(map[uuid.UUID]*domain.Seller),
	}
}

func (m *memStore) addSeller(s domain.Seller) *domain.Seller {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.sellers[s.ID] = &cp
	return &cp
}

func (m *memStore) Create(_ context.Context, txn domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byRef[txn.ReferenceID]; ok {
		return nil, domain.ErrDuplicateReference
	}
	if txn.IdempotencyKey != "" {
		if _, ok := m.byKey[txn.IdempotencyKey]; ok {
			return nil, domain.ErrDuplicateIdempotencyKey
		}
		m.byKey[txn.IdempotencyKey] = txn.ReferenceID
	}

	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt
	cp := txn
	m.byRef[txn.ReferenceID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) GetByReference(_ context.Context, ref string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.byRef[ref]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

func (m *memStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.byKey[key]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *m.byRef[ref]
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, ref string, to domain.TransactionStatus, message string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.byRef[ref]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if !domain.CanTransition(txn.Status, to) {
		return nil, domain.ErrInvalidTransition
	}
	txn.Status = to
	txn.StatusMessage = message
	txn.UpdatedAt = time.Now()
	cp := *txn
	return &cp, nil
}

func (m *memStore) Complete(_ context.Context, ref, gatewayTxnID string, response map[string]string) (*domain.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.byRef[ref]
	if !ok {
		return nil, false, domain.ErrTransactionNotFound
	}
	if txn.Status == domain.StatusCompleted {
		cp := *txn
		return &cp, true, nil
	}
	if !domain.CanTransition(txn.Status, domain.StatusCompleted) {
		return nil, false, domain.ErrInvalidTransition
	}

	now := time.Now()
	txn.Status = domain.StatusCompleted
	txn.StatusMessage = ""
	txn.GatewayTxnID = gatewayTxnID
	txn.GatewayResponse = response
	txn.CompletedAt = &now
	txn.UpdatedAt = now

	seller := m.sellers[txn.SellerID]
	seller.Balance = seller.Balance.Add(txn.SellerAmount)
	seller.TotalEarned = seller.TotalEarned.Add(txn.Amount)
	seller.PlatformFeesPaid = seller.PlatformFeesPaid.Add(txn.PlatformFee)

	cp := *txn
	return &cp, false, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sellers[id]
	if !ok {
		return nil, domain.ErrSellerNotFound
	}
	cp := *s
	return &cp, nil
}

type fakeGateway struct {
	mu           sync.Mutex
	createCalls  int
	createErr    error
	verifyResult gateway.VerificationResult
	statusResult *gateway.StatusResult
	statusErr    error
}

func (g *fakeGateway) CreatePaymentRequest(amount decimal.Decimal, orderID, phone, email, desc string) (*gateway.PaymentRequest, error) {
	g.mu.Lock()
	g.createCalls++
	g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.PaymentRequest{
		OrderID:     orderID,
		RedirectURL: "https://sandbox.example/pay",
		Method:      "POST",
		Fields:      map[string]string{"pp_TxnRefNo": orderID},
	}, nil
}

func (g *fakeGateway) VerifyCallback(fields map[string]string) gateway.VerificationResult {
	return g.verifyResult
}

func (g *fakeGateway) CheckStatus(ctx context.Context, orderID string) (*gateway.StatusResult, error) {
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.statusResult, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *fakeNotifier) PaymentReceived(_ context.Context, _ domain.Seller, _ domain.Transaction) error {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	return n.err
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

var testRate = decimal.RequireFromString("0.03")

func newFixture(t *testing.T) (*Service, *memStore, *fakeGateway, *fakeNotifier, *domain.Seller) {
	t.Helper()
	store := newMemStore()
	seller := store.addSeller(domain.Seller{
		ID:               uuid.New(),
		Name:             "Ali Traders",
		WalletNumber:     "03001234567",
		IsActive:         true,
		Balance:          decimal.Zero,
		TotalEarned:      decimal.Zero,
		PlatformFeesPaid: decimal.Zero,
	})
	gw := &fakeGateway{}
	notifier := &fakeNotifier{}
	svc := NewService(store, store, gw, notifier, testRate)
	return svc, store, gw, notifier, seller
}

func TestInitiatePaymentSuccess(t *testing.T) {
	svc, store, gw, _, seller := newFixture(t)

	result, err := svc.InitiatePayment(context.Background(), InitiateRequest{
		Amount:     decimal.RequireFromString("10000.00"),
		SellerID:   seller.ID,
		BuyerPhone: "03009990000",
		Method:     domain.MethodJazzCash,
	})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if !result.Success {
		t.Fatalf("not successful: %s", result.Message)
	}
	if result.Payment == nil {
		t.Fatal("no payment payload returned")
	}

	txn := result.Transaction
	if txn.Status != domain.StatusProcessing {
		t.Errorf("status: got %s, want processing", txn.Status)
	}
	if !txn.PlatformFee.Equal(decimal.RequireFromString("300")) {
		t.Errorf("platform fee: got %s, want 300", txn.PlatformFee)
	}
	if !txn.SellerAmount.Equal(decimal.RequireFromString("9700")) {
		t.Errorf("seller amount: got %s, want 9700", txn.SellerAmount)
	}
	if !txn.Amount.Equal(txn.PlatformFee.Add(txn.SellerAmount)) {
		t.Error("split invariant broken: amount != fee + payout")
	}
	if gw.createCalls != 1 {
		t.Errorf("gateway calls: got %d, want 1", gw.createCalls)
	}

	// Balance must not move at initiation.
	s, _ := store.GetByID(context.Background(), seller.ID)
	if !s.Balance.IsZero() {
		t.Errorf("seller balance moved at initiation: %s", s.Balance)
	}
}

func TestInitiatePaymentAdapterFailure(t *testing.T) {
	svc, _, gw, _, seller := newFixture(t)
	gw.createErr = errors.New("merchant id rejected")

	result, err := svc.InitiatePayment(context.Background(), InitiateRequest{
		Amount:   decimal.RequireFromString("500.00"),
		SellerID: seller.ID,
		Method:   domain.MethodJazzCash,
	})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
	if result.Transaction.Status != domain.StatusFailed {
		t.Errorf("status: got %s, want failed", result.Transaction.Status)
	}
	if result.Transaction.StatusMessage != "merchant id rejected" {
		t.Errorf("status message: got %q", result.Transaction.StatusMessage)
	}
}

func TestInitiatePaymentIdempotencyKey(t *testing.T) {
	svc, store, gw, _, seller := newFixture(t)

	req := InitiateRequest{
		Amount:         decimal.RequireFromString("2500.00"),
		SellerID:       seller.ID,
		Method:         domain.MethodEasyPaisa,
		IdempotencyKey: "order-42-attempt",
	}

	first, err := svc.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("first InitiatePayment: %v", err)
	}
	second, err := svc.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("second InitiatePayment: %v", err)
	}

	if !second.Replayed {
		t.Error("second call not flagged as replayed")
	}
	if second.Transaction.ReferenceID != first.Transaction.ReferenceID {
		t.Errorf("replay returned different transaction: %s vs %s",
			second.Transaction.ReferenceID, first.Transaction.ReferenceID)
	}
	if second.Transaction.TransactionID != first.Transaction.TransactionID {
		t.Error("replay returned different transaction id")
	}
	if gw.createCalls != 1 {
		t.Errorf("gateway calls: got %d, want 1 (replay must not touch the gateway)", gw.createCalls)
	}
	if len(store.byRef) != 1 {
		t.Errorf("transactions created: got %d, want 1", len(store.byRef))
	}
}

// raceStore simulates two requests with the same idempotency key hitting
// Create at once: the lookup misses but the unique constraint fires.
type raceStore struct {
	*memStore
	missOnce bool
}

func (r *raceStore) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	if r.missOnce {
		r.missOnce = false
		return nil, domain.ErrTransactionNotFound
	}
	return r.memStore.GetByIdempotencyKey(ctx, key)
}

func TestInitiatePaymentIdempotencyRace(t *testing.T) {
	store := newMemStore()
	seller := store.addSeller(domain.Seller{ID: uuid.New(), Name: "Racer", IsActive: true,
		Balance: decimal.Zero, TotalEarned: decimal.Zero, PlatformFeesPaid: decimal.Zero})
	gw := &fakeGateway{}
	svc := NewService(&raceStore{memStore: store}, store, gw, nil, testRate)

	req := InitiateRequest{
		Amount:         decimal.RequireFromString("100.00"),
		SellerID:       seller.ID,
		Method:         domain.MethodJazzCash,
		IdempotencyKey: "raced-key",
	}

	first, err := svc.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("first InitiatePayment: %v", err)
	}

	// Second request: lookup misses (race window), Create hits the
	// constraint, service must return the winner.
	svc2 := NewService(&raceStore{memStore: store, missOnce: true}, store, gw, nil, testRate)
	second, err := svc2.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("second InitiatePayment: %v", err)
	}
	if !second.Replayed {
		t.Error("raced call not flagged as replayed")
	}
	if second.Transaction.ReferenceID != first.Transaction.ReferenceID {
		t.Error("raced call returned a different transaction")
	}
	if len(store.byRef) != 1 {
		t.Errorf("transactions created: got %d, want 1", len(store.byRef))
	}
}

func settledVerification(orderID, amount string) gateway.VerificationResult {
	return gateway.VerificationResult{
		Success:      true,
		OrderID:      orderID,
		Amount:       decimal.RequireFromString(amount),
		ResponseCode: "000",
		Message:      "Payment Successful",
		GatewayTxnID: orderID,
		Raw:          map[string]string{"pp_TxnRefNo": orderID, "pp_ResponseCode": "000"},
	}
}

func initiateProcessing(t *testing.T, svc *Service, seller *domain.Seller, amount string) *domain.Transaction {
	t.Helper()
	result, err := svc.InitiatePayment(context.Background(), InitiateRequest{
		Amount:   decimal.RequireFromString(amount),
		SellerID: seller.ID,
		Method:   domain.MethodJazzCash,
	})
	if err != nil || !result.Success {
		t.Fatalf("initiate fixture failed: %v / %+v", err, result)
	}
	return result.Transaction
}

func TestHandleCallbackSettlesExactlyOnce(t *testing.T) {
	svc, store, gw, notifier, seller := newFixture(t)
	txn := initiateProcessing(t, svc, seller, "10000.00")

	gw.verifyResult = settledVerification(txn.ReferenceID, "10000.00")
	fields := map[string]string{"pp_TxnRefNo": txn.ReferenceID}

	first, err := svc.HandleCallback(context.Background(), fields)
	if err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if !first.Success || first.AlreadyProcessed {
		t.Fatalf("first callback: %+v", first)
	}
	if first.Transaction.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	second, err := svc.HandleCallback(context.Background(), fields)
	if err != nil {
		t.Fatalf("second callback: %v", err)
	}
	if !second.Success {
		t.Error("replayed callback must still succeed")
	}
	if !second.AlreadyProcessed {
		t.Error("replayed callback not flagged as already processed")
	}

	s, _ := store.GetByID(context.Background(), seller.ID)
	if !s.Balance.Equal(decimal.RequireFromString("9700")) {
		t.Errorf("seller balance: got %s, want 9700 (credited exactly once)", s.Balance)
	}
	if !s.TotalEarned.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("total earned: got %s, want 10000.00", s.TotalEarned)
	}
	if !s.PlatformFeesPaid.Equal(decimal.RequireFromString("300")) {
		t.Errorf("fees paid: got %s, want 300", s.PlatformFeesPaid)
	}
	if notifier.callCount() != 1 {
		t.Errorf("notifications: got %d, want 1", notifier.callCount())
	}
}

// Concurrent duplicate delivery is the common case with payment gateways:
// exactly one callback may settle, the rest must observe completed state.
func TestConcurrentDuplicateCallbacks(t *testing.T) {
	svc, store, gw, _, seller := newFixture(t)
	txn := initiateProcessing(t, svc, seller, "10000.00")

	gw.verifyResult = settledVerification(txn.ReferenceID, "10000.00")
	fields := map[string]string{"pp_TxnRefNo": txn.ReferenceID}

	const workers = 8
	results := make([]*CallbackResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.HandleCallback(context.Background(), fields)
		}(i)
	}
	wg.Wait()

	settled := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("callback %d: %v", i, errs[i])
		}
		if !results[i].Success {
			t.Errorf("callback %d failed: %s", i, results[i].Message)
		}
		if !results[i].AlreadyProcessed {
			settled++
		}
	}
	if settled != 1 {
		t.Errorf("settlements observed: got %d, want exactly 1", settled)
	}

	s, _ := store.GetByID(context.Background(), seller.ID)
	if !s.Balance.Equal(decimal.RequireFromString("9700")) {
		t.Errorf("seller balance: got %s, want 9700", s.Balance)
	}
}

func TestHandleCallbackRejectionsTouchNothing(t *testing.T) {
	svc, store, gw, notifier, seller := newFixture(t)
	txn := initiateProcessing(t, svc, seller, "10000.00")

	for _, reason := range []gateway.FailureReason{gateway.ReasonHashMismatch, gateway.ReasonMissingField, gateway.ReasonMalformed} {
		gw.verifyResult = gateway.VerificationResult{
			Success: false,
			OrderID: txn.ReferenceID,
			Reason:  reason,
			Message: string(reason),
		}

		result, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": txn.ReferenceID})
		if err != nil {
			t.Fatalf("callback (%s): %v", reason, err)
		}
		if result.Success {
			t.Errorf("callback (%s) unexpectedly succeeded", reason)
		}
		if result.Reason != reason {
			t.Errorf("reason: got %s, want %s", result.Reason, reason)
		}
	}

	stored, _ := store.GetByReference(context.Background(), txn.ReferenceID)
	if stored.Status != domain.StatusProcessing {
		t.Errorf("transaction mutated by rejected callback: %s", stored.Status)
	}
	s, _ := store.GetByID(context.Background(), seller.ID)
	if !s.Balance.IsZero() {
		t.Errorf("seller balance mutated by rejected callback: %s", s.Balance)
	}
	if notifier.callCount() != 0 {
		t.Errorf("notifications sent for rejected callback: %d", notifier.callCount())
	}
}

func TestHandleCallbackDecline(t *testing.T) {
	svc, store, gw, _, seller := newFixture(t)
	txn := initiateProcessing(t, svc, seller, "10000.00")

	gw.verifyResult = gateway.VerificationResult{
		Success:      false,
		OrderID:      txn.ReferenceID,
		ResponseCode: "101",
		Reason:       gateway.ReasonDeclined,
		Message:      "Insufficient balance in wallet",
	}

	result, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": txn.ReferenceID})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.Success {
		t.Fatal("decline reported as success")
	}

	stored, _ := store.GetByReference(context.Background(), txn.ReferenceID)
	if stored.Status != domain.StatusFailed {
		t.Errorf("status: got %s, want failed", stored.Status)
	}
	if stored.StatusMessage != "Insufficient balance in wallet" {
		t.Errorf("status message: got %q", stored.StatusMessage)
	}

	// The gateway may redeliver the decline; it must be acknowledged, not
	// rejected as an illegal failed-to-failed transition.
	replay, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": txn.ReferenceID})
	if err != nil {
		t.Fatalf("replayed decline: %v", err)
	}
	if replay.Success {
		t.Error("replayed decline reported success")
	}
	if !replay.AlreadyProcessed {
		t.Error("replayed decline not flagged as already processed")
	}
	if replay.Transaction.Status != domain.StatusFailed {
		t.Errorf("replay status: got %s, want failed", replay.Transaction.Status)
	}
}

// A late decline for an already-settled reference must never claw back the
// completed state.
func TestDeclineCannotOverwriteCompleted(t *testing.T) {
	svc, store, gw, _, seller := newFixture(t)
	txn := initiateProcessing(t, svc, seller, "10000.00")

	gw.verifyResult = settledVerification(txn.ReferenceID, "10000.00")
	if _, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": txn.ReferenceID}); err != nil {
		t.Fatalf("settling callback: %v", err)
	}

	gw.verifyResult = gateway.VerificationResult{
		Success: false,
		OrderID: txn.ReferenceID,
		Reason:  gateway.ReasonDeclined,
		Message: "late decline",
	}
	result, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": txn.ReferenceID})
	if err != nil {
		t.Fatalf("late decline callback: %v", err)
	}
	if !result.Success || !result.AlreadyProcessed {
		t.Errorf("late decline result: %+v", result)
	}

	stored, _ := store.GetByReference(context.Background(), txn.ReferenceID)
	if stored.Status != domain.StatusCompleted {
		t.Errorf("completed state overwritten: %s", stored.Status)
	}
}

func TestHandleCallbackUnknownReference(t *testing.T) {
	svc, _, gw, _, _ := newFixture(t)
	gw.verifyResult = settledVerification("PF01UNKNOWN", "100.00")

	_, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": "PF01UNKNOWN"})
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("got %v, want ErrTransactionNotFound", err)
	}
}

func TestNotifierFailureCannotFailSettlement(t *testing.T) {
	svc, store, gw, notifier, seller := newFixture(t)
	notifier.err = errors.New("smtp down")
	txn := initiateProcessing(t, svc, seller, "10000.00")

	gw.verifyResult = settledVerification(txn.ReferenceID, "10000.00")
	result, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": txn.ReferenceID})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !result.Success {
		t.Fatalf("settlement failed because of notifier: %s", result.Message)
	}

	stored, _ := store.GetByReference(context.Background(), txn.ReferenceID)
	if stored.Status != domain.StatusCompleted {
		t.Errorf("status: got %s, want completed", stored.Status)
	}
}

func TestReconcilePayment(t *testing.T) {
	t.Run("settled at gateway", func(t *testing.T) {
		svc, store, gw, _, seller := newFixture(t)
		txn := initiateProcessing(t, svc, seller, "10000.00")
		gw.statusResult = &gateway.StatusResult{ResponseCode: "000", Message: "Completed"}

		result, err := svc.ReconcilePayment(context.Background(), txn.ReferenceID)
		if err != nil {
			t.Fatalf("ReconcilePayment: %v", err)
		}
		if !result.Success {
			t.Fatalf("not successful: %s", result.Message)
		}

		s, _ := store.GetByID(context.Background(), seller.ID)
		if !s.Balance.Equal(decimal.RequireFromString("9700")) {
			t.Errorf("seller balance: got %s, want 9700", s.Balance)
		}
	})

	t.Run("inquiry unreachable leaves processing", func(t *testing.T) {
		svc, store, gw, _, seller := newFixture(t)
		txn := initiateProcessing(t, svc, seller, "10000.00")
		gw.statusErr = gateway.ErrGatewayUnreachable

		result, err := svc.ReconcilePayment(context.Background(), txn.ReferenceID)
		if err != nil {
			t.Fatalf("ReconcilePayment: %v", err)
		}
		if result.Success {
			t.Error("unreachable inquiry reported success")
		}
		if !result.Retryable {
			t.Error("unreachable inquiry not flagged retryable")
		}

		stored, _ := store.GetByReference(context.Background(), txn.ReferenceID)
		if stored.Status != domain.StatusProcessing {
			t.Errorf("status: got %s, want processing (recoverable)", stored.Status)
		}
	})

	t.Run("not settled marks failed", func(t *testing.T) {
		svc, store, gw, _, seller := newFixture(t)
		txn := initiateProcessing(t, svc, seller, "10000.00")
		gw.statusResult = &gateway.StatusResult{ResponseCode: "124", Message: "Transaction expired"}

		result, err := svc.ReconcilePayment(context.Background(), txn.ReferenceID)
		if err != nil {
			t.Fatalf("ReconcilePayment: %v", err)
		}
		if result.Success {
			t.Error("expired payment reported success")
		}

		stored, _ := store.GetByReference(context.Background(), txn.ReferenceID)
		if stored.Status != domain.StatusFailed {
			t.Errorf("status: got %s, want failed", stored.Status)
		}
		if stored.StatusMessage != "Transaction expired" {
			t.Errorf("status message: got %q", stored.StatusMessage)
		}
	})

	t.Run("already completed is a no-op", func(t *testing.T) {
		svc, _, gw, _, seller := newFixture(t)
		txn := initiateProcessing(t, svc, seller, "10000.00")
		gw.verifyResult = settledVerification(txn.ReferenceID, "10000.00")
		if _, err := svc.HandleCallback(context.Background(), map[string]string{"pp_TxnRefNo": txn.ReferenceID}); err != nil {
			t.Fatalf("settling callback: %v", err)
		}

		result, err := svc.ReconcilePayment(context.Background(), txn.ReferenceID)
		if err != nil {
			t.Fatalf("ReconcilePayment: %v", err)
		}
		if !result.Success {
			t.Errorf("reconcile of completed txn: %+v", result)
		}
	})
}

func TestInitiatePaymentValidation(t *testing.T) {
	svc, _, _, _, seller := newFixture(t)

	if _, err := svc.InitiatePayment(context.Background(), InitiateRequest{
		Amount:   decimal.Zero,
		SellerID: seller.ID,
		Method:   domain.MethodJazzCash,
	}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}

	if _, err := svc.InitiatePayment(context.Background(), InitiateRequest{
		Amount:   decimal.RequireFromString("100.00"),
		SellerID: seller.ID,
		Method:   "bitcoin",
	}); err == nil {
		t.Error("unsupported method accepted")
	}

	if _, err := svc.InitiatePayment(context.Background(), InitiateRequest{
		Amount:   decimal.RequireFromString("100.00"),
		SellerID: uuid.New(),
		Method:   domain.MethodJazzCash,
	}); !errors.Is(err, domain.ErrSellerNotFound) {
		t.Errorf("unknown seller: got %v, want ErrSellerNotFound", err)
	}
}
