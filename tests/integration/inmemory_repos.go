package integration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

// Create enforces the payments_offer_id_key unique index: one escrow
// record per offer, whatever the interleaving.
func (r *inMemoryPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.OfferID == p.OfferID {
			return fmt.Errorf("duplicate key value violates unique constraint \"payments_offer_id_key\"")
		}
	}
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) countByOfferID(offerID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.payments {
		if p.OfferID == offerID {
			n++
		}
	}
	return n
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) GetByGatewayIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.GatewayIntentID != nil && *p.GatewayIntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.OfferID == offerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID, intentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("payment not found")
	}
	if p.GatewaySessionID != nil {
		return fmt.Errorf("gateway session already set")
	}
	p.GatewaySessionID = &sessionID
	p.GatewayIntentID = &intentID
	return nil
}

// UpdateStatusCAS mirrors the SQL compare-and-set: the check and the write
// happen under one lock, so exactly one competing transition wins.
func (r *inMemoryPaymentRepo) UpdateStatusCAS(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.PaymentStatus, at time.Time, reason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, nil
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	if from != to {
		switch to {
		case domain.PaymentStatusEscrowHeld:
			p.EscrowHeldAt = &at
		case domain.PaymentStatusDisputed:
			p.DisputedAt = &at
		case domain.PaymentStatusReleased:
			p.ReleasedAt = &at
		case domain.PaymentStatusRefunded:
			p.RefundedAt = &at
		case domain.PaymentStatusCancelled:
			p.CancelledAt = &at
		}
	}
	if reason != nil {
		if to == domain.PaymentStatusDisputed {
			p.DisputeReason = reason
		} else {
			p.CancelReason = reason
		}
	}
	return true, nil
}

// --- In-Memory Refund Repo ---

type inMemoryRefundRepo struct {
	mu      sync.RWMutex
	refunds []domain.Refund
}

func newInMemoryRefundRepo() *inMemoryRefundRepo {
	return &inMemoryRefundRepo{}
}

func (r *inMemoryRefundRepo) Create(ctx context.Context, tx pgx.Tx, rf *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds = append(r.refunds, *rf)
	return nil
}

func (r *inMemoryRefundRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Refund
	for _, rf := range r.refunds {
		if rf.PaymentID == paymentID {
			out = append(out, rf)
		}
	}
	return out, nil
}

func (r *inMemoryRefundRepo) SumByPaymentID(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, rf := range r.refunds {
		if rf.PaymentID == paymentID {
			sum += rf.Amount
		}
	}
	return sum, nil
}

// --- In-Memory Webhook Event Repo ---

type inMemoryWebhookEventRepo struct {
	mu     sync.Mutex
	events map[string]*domain.WebhookEvent
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{events: make(map[string]*domain.WebhookEvent)}
}

func (r *inMemoryWebhookEventRepo) InsertIfAbsent(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.EventID]; ok {
		return false, nil
	}
	r.events[ev.EventID] = ev
	return true, nil
}

func (r *inMemoryWebhookEventRepo) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[eventID]
	if !ok {
		return nil, nil
	}
	return ev, nil
}

func (r *inMemoryWebhookEventRepo) Delete(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, eventID)
	return nil
}

func (r *inMemoryWebhookEventRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *inMemoryAuditRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditLog
	for _, l := range r.logs {
		if l.PaymentID != nil && *l.PaymentID == paymentID {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- In-Memory Transaction Reader / Stats ---

type inMemoryTransactionReader struct {
	payments *inMemoryPaymentRepo
	refunds  *inMemoryRefundRepo
}

func newInMemoryTransactionReader(p *inMemoryPaymentRepo, r *inMemoryRefundRepo) *inMemoryTransactionReader {
	return &inMemoryTransactionReader{payments: p, refunds: r}
}

func (r *inMemoryTransactionReader) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.payments.mu.RLock()
	var items []domain.Transaction
	for _, p := range r.payments.payments {
		if !params.AllUsers && p.PayerID != params.UserID && p.PayeeID != params.UserID {
			continue
		}
		perspective := params.UserID
		if params.AllUsers {
			perspective = p.PayerID
		}
		items = append(items, domain.TransactionFromPayment(p, perspective))
	}
	byID := make(map[uuid.UUID]*domain.Payment, len(r.payments.payments))
	for _, p := range r.payments.payments {
		byID[p.ID] = p
	}
	r.payments.mu.RUnlock()

	r.refunds.mu.RLock()
	for i := range r.refunds.refunds {
		rf := &r.refunds.refunds[i]
		p, ok := byID[rf.PaymentID]
		if !ok {
			continue
		}
		if !params.AllUsers && p.PayerID != params.UserID && p.PayeeID != params.UserID {
			continue
		}
		perspective := params.UserID
		if params.AllUsers {
			perspective = p.PayerID
		}
		items = append(items, domain.TransactionFromRefund(rf, p, perspective))
	}
	r.refunds.mu.RUnlock()

	var filtered []domain.Transaction
	for _, t := range items {
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Method != nil && t.Method != *params.Method {
			continue
		}
		if params.From != nil && t.CreatedAt.Unix() < *params.From {
			continue
		}
		if params.To != nil && t.CreatedAt.Unix() > *params.To {
			continue
		}
		filtered = append(filtered, t)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := int64(len(filtered))
	start := (params.Page - 1) * params.PageSize
	if start >= len(filtered) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], total, nil
}

func (r *inMemoryTransactionReader) GetLedgerStats(ctx context.Context) (*ports.LedgerStats, error) {
	r.payments.mu.RLock()
	defer r.payments.mu.RUnlock()
	stats := &ports.LedgerStats{}
	for _, p := range r.payments.payments {
		stats.TotalPayments++
		switch p.Status {
		case domain.PaymentStatusEscrowHeld:
			stats.EscrowHeld++
			stats.HeldAmount += p.Amount
		case domain.PaymentStatusReleased:
			stats.Released++
		case domain.PaymentStatusRefunded:
			stats.Refunded++
		case domain.PaymentStatusCancelled:
			stats.Cancelled++
		case domain.PaymentStatusDisputed:
			stats.Disputed++
			stats.HeldAmount += p.Amount
		}
	}
	return stats, nil
}

// --- Fake Gateway Client ---

// fakeGateway stands in for the external payment processor. Signatures use
// the same HMAC-SHA256-over-body scheme as the real adapter, so tests can
// sign webhook payloads end to end.
type fakeGateway struct {
	secret          string
	sessions        atomic.Int64
	payouts         atomic.Int64
	refundsCount    atomic.Int64
	failNextSession atomic.Bool
}

func newFakeGateway(secret string) *fakeGateway {
	return &fakeGateway{secret: secret}
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, p *domain.Payment) (*ports.CheckoutSession, error) {
	if g.failNextSession.CompareAndSwap(true, false) {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("gateway: connection reset"))
	}
	n := g.sessions.Add(1)
	return &ports.CheckoutSession{
		SessionID:   fmt.Sprintf("cs_test_%d", n),
		IntentID:    fmt.Sprintf("pi_test_%d", n),
		CheckoutURL: fmt.Sprintf("https://gateway.test/pay/cs_test_%d", n),
	}, nil
}

func (g *fakeGateway) IssueRefund(ctx context.Context, intentID string, amount int64, currency, reason string) (string, error) {
	n := g.refundsCount.Add(1)
	return fmt.Sprintf("re_test_%d", n), nil
}

func (g *fakeGateway) IssuePayout(ctx context.Context, payeeID uuid.UUID, amount int64, currency string) (string, error) {
	n := g.payouts.Add(1)
	return fmt.Sprintf("po_test_%d", n), nil
}

func (g *fakeGateway) VerifySignature(payload []byte, signature string) bool {
	return hmac.Equal([]byte(g.sign(payload)), []byte(signature))
}

func (g *fakeGateway) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// --- Fake Offer Provider ---

type fakeOfferProvider struct {
	mu     sync.RWMutex
	offers map[uuid.UUID]*ports.Offer
}

func newFakeOfferProvider() *fakeOfferProvider {
	return &fakeOfferProvider{offers: make(map[uuid.UUID]*ports.Offer)}
}

func (f *fakeOfferProvider) GetOffer(ctx context.Context, offerID uuid.UUID) (*ports.Offer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	o, ok := f.offers[offerID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOfferProvider) add(o *ports.Offer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers[o.ID] = o
}

func (f *fakeOfferProvider) setCompleted(offerID uuid.UUID, completed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.offers[offerID]; ok {
		o.Completed = completed
	}
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
