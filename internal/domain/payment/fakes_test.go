package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/domain/subscription"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// memStore is an in-memory intent and entitlement store. Transactions are
// serialized and roll back by restoring a snapshot.
type memStore struct {
	txMu   sync.Mutex
	dataMu sync.Mutex

	intents      map[uuid.UUID]model.PaymentIntent
	entitlements map[int64]model.Entitlement
	saves        int
	failSave     error
}

func newMemStore() *memStore {
	return &memStore{
		intents:      make(map[uuid.UUID]model.PaymentIntent),
		entitlements: make(map[int64]model.Entitlement),
	}
}

func (s *memStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.dataMu.Lock()
	intents := make(map[uuid.UUID]model.PaymentIntent, len(s.intents))
	for k, v := range s.intents {
		intents[k] = v
	}
	ents := make(map[int64]model.Entitlement, len(s.entitlements))
	for k, v := range s.entitlements {
		ents[k] = v
	}
	saves := s.saves
	s.dataMu.Unlock()

	if err := fn(ctx); err != nil {
		s.dataMu.Lock()
		s.intents, s.entitlements, s.saves = intents, ents, saves
		s.dataMu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) Create(ctx context.Context, intent *model.PaymentIntent) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.intents[intent.ID] = cloneIntent(*intent)
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, nil
	}
	out := cloneIntent(intent)
	return &out, nil
}

func (s *memStore) FindByProviderReference(ctx context.Context, provider model.Provider, reference string) (*model.PaymentIntent, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	for _, intent := range s.intents {
		if intent.Provider == provider && intent.Reference() == reference {
			out := cloneIntent(intent)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindStale(ctx context.Context, filter model.StaleIntentFilter) ([]*model.PaymentIntent, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	var out []*model.PaymentIntent
	for _, intent := range s.intents {
		if !containsStatus(filter.Statuses, intent.Status) {
			continue
		}
		if intent.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		if filter.CreatedAfter != nil && intent.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		if filter.UpdatedBefore != nil && intent.UpdatedAt.After(*filter.UpdatedBefore) {
			continue
		}
		c := cloneIntent(intent)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memStore) AssignProviderReference(ctx context.Context, id uuid.UUID, reference string) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return errors.New("not found")
	}
	if intent.ProviderReference == nil {
		intent.ProviderReference = &reference
		s.intents[id] = intent
	}
	return nil
}

func (s *memStore) TransitionStatus(ctx context.Context, t model.StatusTransition) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	intent, ok := s.intents[t.IntentID]
	if !ok || !containsStatus(t.From, intent.Status) {
		return false, nil
	}
	intent.Status = t.To
	intent.Metadata = intent.Metadata.Merge(t.Metadata)
	intent.UpdatedAt = t.At
	if t.To == model.PaymentStatusCompleted {
		at := t.At
		intent.CompletedAt = &at
	}
	s.intents[t.IntentID] = intent
	return true, nil
}

func (s *memStore) FindByUserID(ctx context.Context, userID int64, forUpdate bool) (*model.Entitlement, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	ent, ok := s.entitlements[userID]
	if !ok {
		return nil, nil
	}
	return &ent, nil
}

func (s *memStore) Save(ctx context.Context, ent *model.Entitlement, prev *model.Entitlement) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if s.failSave != nil {
		return false, s.failSave
	}
	current, exists := s.entitlements[ent.UserID]
	if prev == nil && exists {
		return false, nil
	}
	if prev != nil && (!exists || current.AppliedPayment() != prev.AppliedPayment()) {
		return false, nil
	}
	s.entitlements[ent.UserID] = *ent
	s.saves++
	return true, nil
}

func (s *memStore) intent(id uuid.UUID) model.PaymentIntent {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return s.intents[id]
}

func (s *memStore) entitlement(userID int64) (model.Entitlement, bool) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	ent, ok := s.entitlements[userID]
	return ent, ok
}

func (s *memStore) saveCount() int {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return s.saves
}

func cloneIntent(in model.PaymentIntent) model.PaymentIntent {
	in.Metadata = model.Metadata{}.Merge(in.Metadata)
	return in
}

func containsStatus(list []model.PaymentStatus, s model.PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// memCache implements the receipt and counter ports.
type memCache struct {
	mu       sync.Mutex
	receipts map[string]bool
	counters map[string]int64
	err      error
}

func newMemCache() *memCache {
	return &memCache{receipts: map[string]bool{}, counters: map[string]int64{}}
}

func (c *memCache) IsProcessed(ctx context.Context, provider, transactionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.receipts[provider+":"+transactionID], nil
}

func (c *memCache) MarkProcessed(ctx context.Context, provider, transactionID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	key := provider + ":" + transactionID
	if c.receipts[key] {
		return false, nil
	}
	c.receipts[key] = true
	return true, nil
}

func (c *memCache) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counters[key]++
	return c.counters[key], nil
}

// testGateway speaks a small JSON dialect signed with HMAC-SHA256 and uses
// the card redirect status vocabulary.
type testGateway struct {
	provider model.Provider
	secret   string
	ack      string

	mu          sync.Mutex
	lookup      map[string]*model.ProviderEvent
	lookupErr   error
	checkoutErr error
	lookups     int
}

type testPayload struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Type          string `json:"type"`
}

func newTestGateway() *testGateway {
	return &testGateway{
		provider: model.ProviderCardRedirect,
		secret:   "whsec-test",
		lookup:   map[string]*model.ProviderEvent{},
	}
}

func (g *testGateway) Provider() model.Provider { return g.provider }

func (g *testGateway) CreateCheckout(ctx context.Context, intent *model.PaymentIntent, plan *model.Plan) (*model.CheckoutArtifact, error) {
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	return &model.CheckoutArtifact{
		Provider:          g.provider,
		ProviderReference: intent.ID.String(),
		RedirectURL:       "https://pay.example.test/checkout/" + intent.ID.String(),
		Checksum:          security.Checksum("pk", intent.ID.String(), intent.Amount, intent.Currency),
	}, nil
}

func (g *testGateway) VerifyWebhook(payload []byte, signature string) error {
	if !security.VerifySignature(payload, signature, g.secret) {
		return security.ErrSignatureInvalid
	}
	return nil
}

func (g *testGateway) ParseWebhook(payload []byte) (*model.ProviderEvent, error) {
	var p testPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	if p.Type == "ping" {
		return nil, ErrEventIgnored
	}
	return &model.ProviderEvent{
		TransactionID: p.TransactionID,
		Reference:     p.Reference,
		RawStatus:     p.Status,
		Amount:        p.Amount,
		Currency:      p.Currency,
	}, nil
}

func (g *testGateway) MapStatus(event *model.ProviderEvent) (model.PaymentStatus, bool) {
	switch event.RawStatus {
	case "Accepted":
		return model.PaymentStatusCompleted, true
	case "Declined":
		return model.PaymentStatusFailed, true
	case "Pending":
		return model.PaymentStatusPending, true
	case "Secure3DS":
		return model.PaymentStatusAwaitingSecondaryAuth, true
	case "Cancelled":
		return model.PaymentStatusCancelled, true
	case "Refunded":
		return model.PaymentStatusRefunded, true
	}
	return "", false
}

func (g *testGateway) LookupStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	if g.lookupErr != nil {
		return nil, g.lookupErr
	}
	ev, ok := g.lookup[reference]
	if !ok {
		return nil, errors.New("reference not found")
	}
	return ev, nil
}

func (g *testGateway) Ack() string { return g.ack }

func (g *testGateway) setLookup(reference, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookup[reference] = &model.ProviderEvent{TransactionID: "lookup-" + reference, Reference: reference, RawStatus: status}
}

func (g *testGateway) setLookupErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookupErr = err
}

func (g *testGateway) sign(p testPayload) ([]byte, string) {
	body, _ := json.Marshal(p)
	return body, security.Sign(body, g.secret)
}

type testRegistry struct {
	gateways map[model.Provider]outbound.PaymentGatewayPort
}

func (r *testRegistry) Get(provider model.Provider) (outbound.PaymentGatewayPort, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return nil, errors.New("provider not registered")
	}
	return g, nil
}

func (r *testRegistry) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// harness wires the payment core against in-memory adapters.
type harness struct {
	store        *memStore
	cache        *memCache
	gateway      *testGateway
	registry     *testRegistry
	guard        *security.Guard
	publisher    *recordingPublisher
	transitions  *Transitioner
	orchestrator *Orchestrator
	ingestion    *IngestionService
	recovery     *RecoveryScheduler
	cleanup      *CleanupScheduler
	plans        *memPlans
}

type memPlans struct {
	plans map[string]*model.Plan
}

func (p *memPlans) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	return p.plans[id], nil
}

func newHarness() *harness {
	logger := zap.NewNop()
	store := newMemStore()
	cache := newMemCache()
	gateway := newTestGateway()
	registry := &testRegistry{gateways: map[model.Provider]outbound.PaymentGatewayPort{
		model.ProviderCardRedirect: gateway,
	}}
	publisher := &recordingPublisher{}
	plans := &memPlans{plans: map[string]*model.Plan{
		"monthly":  {ID: "monthly", Name: "Monthly", Amount: 999, Currency: "USD", DurationDays: 30, Active: true},
		"lifetime": {ID: "lifetime", Name: "Lifetime", Amount: 19900, Currency: "USD", Lifetime: true, Active: true},
		"retired":  {ID: "retired", Name: "Retired", Amount: 500, Currency: "USD", DurationDays: 30, Active: false},
	}}

	activator := subscription.NewActivator(store, logger).WithClock(clock)
	guard := security.NewGuard(cache, cache, nil)
	transitions := NewTransitioner(store, store, activator, publisher, nil, logger).WithClock(clock)

	return &harness{
		store:        store,
		cache:        cache,
		gateway:      gateway,
		registry:     registry,
		guard:        guard,
		publisher:    publisher,
		plans:        plans,
		transitions:  transitions,
		orchestrator: NewOrchestrator(plans, store, registry, guard, transitions, nil, nil, logger).WithClock(clock),
		ingestion:    NewIngestionService(registry, store, guard, transitions, nil, logger),
		recovery:     NewRecoveryScheduler(store, registry, transitions, nil, nil, nil, logger).WithClock(clock),
		cleanup:      NewCleanupScheduler(store, transitions, nil, nil, nil, logger).WithClock(clock),
	}
}

// seedIntent stores an intent for user 42 on the monthly plan.
func (h *harness) seedIntent(status model.PaymentStatus, createdAt time.Time) *model.PaymentIntent {
	id := uuid.New()
	ref := id.String()
	intent := &model.PaymentIntent{
		ID:                id,
		UserID:            42,
		PlanID:            "monthly",
		Provider:          model.ProviderCardRedirect,
		ProviderReference: &ref,
		Amount:            999,
		Currency:          "USD",
		PlanDurationDays:  30,
		Status:            status,
		Metadata:          model.Metadata{},
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	_ = h.store.Create(context.Background(), intent)
	return intent
}

// webhook builds a signed delivery for intent.
func (h *harness) webhook(intent *model.PaymentIntent, txID, status string) ([]byte, string) {
	return h.gateway.sign(testPayload{
		TransactionID: txID,
		Reference:     intent.Reference(),
		Status:        status,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
	})
}

func (g *testGateway) signRaw(body []byte) string {
	return security.Sign(body, g.secret)
}
