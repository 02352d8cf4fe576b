package entry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
	"github.com/xenking/till/internal/domain/product"
)

// --- Mock implementations ---

type mockProducts map[string]*product.Product

func (m mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type mockCounterparties map[string]*counterparty.Counterparty

func (m mockCounterparties) GetByID(_ context.Context, id string) (*counterparty.Counterparty, error) {
	cp, ok := m[id]
	if !ok {
		return nil, counterparty.ErrNotFound
	}
	return cp, nil
}

type mockPricer struct {
	// release, when set, blocks Checkout until it is closed.
	release  chan struct{}
	started  chan struct{}
	err      error
	lastReq  order.Request
	quoteReq order.Request
}

func (m *mockPricer) Quote(_ context.Context, req order.Request) (*order.Quote, error) {
	m.quoteReq = req
	return &order.Quote{}, nil
}

func (m *mockPricer) Checkout(_ context.Context, req order.Request) (*order.CheckoutResult, error) {
	m.lastReq = req
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}
	return &order.CheckoutResult{Order: &order.Order{ID: "o1"}}, nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func catalogue() mockProducts {
	return mockProducts{
		"tea": {
			ID:             "tea",
			RetailPrice:    d("4.00"),
			WholesalePrice: d("3.00"),
			CostPrice:      d("2.00"),
			Inventory:      product.Inventory{CurrentStock: 5},
		},
		"mug": {
			ID:          "mug",
			RetailPrice: d("8.00"),
			CostPrice:   d("6.00"),
			Inventory:   product.Inventory{CurrentStock: 2},
		},
	}
}

func people() mockCounterparties {
	return mockCounterparties{
		"alice": {ID: "alice", Kind: counterparty.KindCustomer, BusinessType: counterparty.BusinessRetail},
		"bulk":  {ID: "bulk", Kind: counterparty.KindCustomer, BusinessType: counterparty.BusinessWholesale},
		"acme":  {ID: "acme", Kind: counterparty.KindSupplier, BusinessType: counterparty.BusinessManufacturer},
		"leaf":  {ID: "leaf", Kind: counterparty.KindSupplier, BusinessType: counterparty.BusinessDistributor},
	}
}

func newTestManager(p *mockPricer) *Manager {
	if p == nil {
		p = &mockPricer{}
	}
	return NewManager(Deps{
		Products:       catalogue(),
		Counterparties: people(),
		Pricer:         p,
	}, time.Hour)
}

func open(t *testing.T, m *Manager, flow pricing.Flow) *Session {
	t.Helper()
	s, err := m.Open(flow, false)
	require.NoError(t, err)
	return s
}

// --- Tests ---

func TestSession_AddItemPicksPriceTier(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(nil)

	retail := open(t, m, pricing.FlowSales)
	res, err := retail.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)
	assert.False(t, res.Pending)
	assert.True(t, d("4.00").Equal(res.Effect.Line.UnitPrice))

	wholesale := open(t, m, pricing.FlowSales)
	_, err = wholesale.SetCounterparty(ctx, "bulk")
	require.NoError(t, err)
	res, err = wholesale.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)
	assert.True(t, d("3.00").Equal(res.Effect.Line.UnitPrice))

	purchase := open(t, m, pricing.FlowPurchase)
	res, err = purchase.AddItem(ctx, "tea", 50, nil)
	require.NoError(t, err, "purchases are not bounded by stock")
	assert.True(t, d("2.00").Equal(res.Effect.Line.UnitPrice))
}

func TestSession_DuplicateAddNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	s := open(t, newTestManager(nil), pricing.FlowSales)

	_, err := s.AddItem(ctx, "tea", 2, nil)
	require.NoError(t, err)

	res, err := s.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.True(t, res.Effect.Existing)

	snap := s.Snapshot()
	require.NotNil(t, snap.Pending)
	assert.Equal(t, 2, snap.Lines[0].Quantity, "not applied before confirmation")

	effect, err := s.ConfirmPending()
	require.NoError(t, err)
	assert.Equal(t, 3, effect.Line.Quantity)

	snap = s.Snapshot()
	assert.Nil(t, snap.Pending)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 3, snap.Lines[0].Quantity)
}

func TestSession_DeclinePendingLeavesCart(t *testing.T) {
	ctx := context.Background()
	s := open(t, newTestManager(nil), pricing.FlowSales)

	_, err := s.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeclinePending())
	assert.Equal(t, 1, s.Snapshot().Lines[0].Quantity)
	require.ErrorIs(t, s.DeclinePending(), ErrNoPendingAdd)
	_, err = s.ConfirmPending()
	require.ErrorIs(t, err, ErrNoPendingAdd)
}

func TestSession_BelowCostAddNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	s := open(t, newTestManager(nil), pricing.FlowSales)

	cheap := d("1.50")
	res, err := s.AddItem(ctx, "tea", 1, &cheap)
	require.NoError(t, err)
	assert.True(t, res.Pending)
	require.NotNil(t, res.Effect.BelowCost)
	assert.Equal(t, cart.StateEmpty, s.Snapshot().State)

	_, err = s.ConfirmPending()
	require.NoError(t, err)
	lines := s.Snapshot().Lines
	require.Len(t, lines, 1)
	assert.True(t, lines[0].BelowCost)
}

func TestSession_StaleConfirmationRechecksStock(t *testing.T) {
	ctx := context.Background()
	s := open(t, newTestManager(nil), pricing.FlowSales)

	_, err := s.AddItem(ctx, "mug", 1, nil)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "mug", 1, nil)
	require.NoError(t, err)

	// Raise the line to the stock limit while the merge is pending.
	require.NoError(t, s.UpdateQuantity("mug", 2))

	_, err = s.ConfirmPending()
	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Remaining())
	assert.Equal(t, 2, s.Snapshot().Lines[0].Quantity)
}

func TestSession_AddItemErrors(t *testing.T) {
	ctx := context.Background()
	s := open(t, newTestManager(nil), pricing.FlowSales)

	_, err := s.AddItem(ctx, "ghost", 1, nil)
	require.ErrorIs(t, err, product.ErrNotFound)

	_, err = s.AddItem(ctx, "mug", 3, nil)
	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	_, err = s.AddItem(ctx, "mug", 0, nil)
	var amtErr *cart.InvalidAmountError
	require.ErrorAs(t, err, &amtErr)

	assert.Equal(t, cart.StateEmpty, s.Snapshot().State)
}

func TestSession_SetCounterpartyClearsSalesCart(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(nil)

	tests := []struct {
		name        string
		flow        pricing.Flow
		editMode    bool
		first       string
		second      string
		wantCleared bool
	}{
		{name: "sales change clears", flow: pricing.FlowSales, first: "alice", second: "bulk", wantCleared: true},
		{name: "sales same customer keeps", flow: pricing.FlowSales, first: "alice", second: "alice"},
		{name: "sales edit mode keeps", flow: pricing.FlowSales, editMode: true, first: "alice", second: "bulk"},
		{name: "first selection keeps", flow: pricing.FlowSales, second: "alice"},
		{name: "purchase never clears", flow: pricing.FlowPurchase, first: "acme", second: "leaf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := m.Open(tt.flow, tt.editMode)
			require.NoError(t, err)
			if tt.first != "" {
				_, err = s.SetCounterparty(ctx, tt.first)
				require.NoError(t, err)
			}
			_, err = s.AddItem(ctx, "tea", 1, nil)
			require.NoError(t, err)

			cleared, err := s.SetCounterparty(ctx, tt.second)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCleared, cleared)

			snap := s.Snapshot()
			assert.Equal(t, tt.second, snap.Counterparty.ID)
			if tt.wantCleared {
				assert.Equal(t, cart.StateEmpty, snap.State)
			} else {
				assert.Equal(t, cart.StatePopulated, snap.State)
			}
		})
	}
}

func TestSession_SetCounterpartyWrongKind(t *testing.T) {
	s := open(t, newTestManager(nil), pricing.FlowPurchase)

	_, err := s.SetCounterparty(context.Background(), "alice")
	var kindErr *order.CounterpartyKindError
	require.ErrorAs(t, err, &kindErr)
	assert.Nil(t, s.Snapshot().Counterparty)
}

func TestSession_SetPricing(t *testing.T) {
	sale := open(t, newTestManager(nil), pricing.FlowSales)
	require.NoError(t, sale.SetPricing(PricingOptions{
		Discount:   pricing.DiscountSpec{Type: pricing.DiscountPercentage, Value: d("10")},
		TaxExempt:  true,
		CouponCode: "SAVE5",
	}))
	assert.Equal(t, "SAVE5", sale.Snapshot().Options.CouponCode)

	err := sale.SetPricing(PricingOptions{Discount: pricing.DiscountSpec{Type: pricing.DiscountAmount, Value: d("-1")}})
	var amtErr *cart.InvalidAmountError
	require.ErrorAs(t, err, &amtErr)

	purchase := open(t, newTestManager(nil), pricing.FlowPurchase)
	require.ErrorIs(t, purchase.SetPricing(PricingOptions{CouponCode: "SAVE5"}), ErrCouponNotAllowed)
}

func TestSession_QuoteBuildsRequest(t *testing.T) {
	ctx := context.Background()
	p := &mockPricer{}
	s := open(t, newTestManager(p), pricing.FlowSales)

	_, err := s.SetCounterparty(ctx, "alice")
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "tea", 2, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetPricing(PricingOptions{TaxExempt: true}))

	_, err = s.Quote(ctx)
	require.NoError(t, err)
	assert.Equal(t, pricing.FlowSales, p.quoteReq.Flow)
	assert.Equal(t, "alice", p.quoteReq.CounterpartyID)
	assert.True(t, p.quoteReq.TaxExempt)
	require.Len(t, p.quoteReq.Lines, 1)
	assert.Equal(t, 2, p.quoteReq.Lines[0].Quantity)
}

func TestSession_SubmitClearsOnSuccess(t *testing.T) {
	ctx := context.Background()
	p := &mockPricer{}
	s := open(t, newTestManager(p), pricing.FlowSales)

	_, err := s.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetPricing(PricingOptions{CouponCode: "SAVE5"}))

	res, err := s.Submit(ctx, order.Payment{Method: "cash", Amount: d("4.32")})
	require.NoError(t, err)
	assert.Equal(t, "o1", res.Order.ID)
	assert.Equal(t, "cash", p.lastReq.Payment.Method)

	snap := s.Snapshot()
	assert.Equal(t, cart.StateEmpty, snap.State)
	assert.Empty(t, snap.Options.CouponCode)
}

func TestSession_SubmitKeepsCartOnFailure(t *testing.T) {
	ctx := context.Background()
	p := &mockPricer{err: order.ErrMissingCounterparty}
	s := open(t, newTestManager(p), pricing.FlowSales)

	_, err := s.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)

	_, err = s.Submit(ctx, order.Payment{})
	require.ErrorIs(t, err, order.ErrMissingCounterparty)
	assert.Equal(t, cart.StatePopulated, s.Snapshot().State)
	assert.False(t, s.Snapshot().Submitting)
}

func TestSession_AtMostOneSubmissionInFlight(t *testing.T) {
	ctx := context.Background()
	p := &mockPricer{release: make(chan struct{}), started: make(chan struct{})}
	s := open(t, newTestManager(p), pricing.FlowSales)

	_, err := s.AddItem(ctx, "tea", 1, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx, order.Payment{})
		done <- err
	}()
	<-p.started

	_, err = s.Submit(ctx, order.Payment{})
	require.ErrorIs(t, err, ErrSubmissionInFlight)
	require.ErrorIs(t, s.UpdateQuantity("tea", 2), ErrSubmissionInFlight)
	assert.True(t, s.Snapshot().Submitting)

	close(p.release)
	require.NoError(t, <-done)
	assert.Equal(t, cart.StateEmpty, s.Snapshot().State)
}

func TestSession_EditsAfterAdd(t *testing.T) {
	ctx := context.Background()
	s := open(t, newTestManager(nil), pricing.FlowSales)

	_, err := s.AddItem(ctx, "tea", 2, nil)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "mug", 1, nil)
	require.NoError(t, err)

	warn, err := s.UpdateUnitPrice("mug", d("5"))
	require.NoError(t, err)
	require.NotNil(t, warn)

	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, s.UpdateQuantity("mug", 3), &stockErr)

	require.NoError(t, s.UpdateQuantity("tea", 0))
	require.Len(t, s.Snapshot().Lines, 1)

	var nf *cart.LineNotFoundError
	require.ErrorAs(t, s.RemoveItem("tea"), &nf)

	require.NoError(t, s.Clear())
	assert.Equal(t, cart.StateEmpty, s.Snapshot().State)
}

func TestManager_Lifecycle(t *testing.T) {
	m := newTestManager(nil)

	s := open(t, m, pricing.FlowSales)
	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Close(s.ID()))
	_, err = m.Get(s.ID())
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, m.Close(s.ID()), ErrSessionNotFound)

	_, err = m.Open("layaway", false)
	require.Error(t, err)
}

func TestManager_MaxActive(t *testing.T) {
	m := NewManager(Deps{Products: catalogue(), Counterparties: people(), Pricer: &mockPricer{}},
		time.Hour, WithMaxActive(2))

	first := open(t, m, pricing.FlowSales)
	open(t, m, pricing.FlowPurchase)
	assert.True(t, m.Full())

	_, err := m.Open(pricing.FlowSales, false)
	require.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, m.Len(), "open sessions are kept")

	require.NoError(t, m.Close(first.ID()))
	assert.False(t, m.Full())
	open(t, m, pricing.FlowSales)

	unbounded := newTestManager(nil)
	for range 5 {
		open(t, unbounded, pricing.FlowSales)
	}
	assert.False(t, unbounded.Full())
}

func TestManager_SweepEvictsIdle(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	m := newTestManager(nil)
	m.now = func() time.Time { return now }

	idle := open(t, m, pricing.FlowSales)
	now = now.Add(50 * time.Minute)
	active := open(t, m, pricing.FlowSales)

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, m.Sweep())

	_, err := m.Get(idle.ID())
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(active.ID())
	require.NoError(t, err)
}

func TestManager_SweepSkipsSubmitting(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	p := &mockPricer{release: make(chan struct{}), started: make(chan struct{})}
	m := newTestManager(p)
	m.now = func() time.Time { return now }

	s := open(t, m, pricing.FlowSales)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Submit(context.Background(), order.Payment{})
	}()
	<-p.started

	m.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.Equal(t, 0, m.Sweep())

	close(p.release)
	<-done
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := newTestManager(nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}
