package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/coupon"
	"github.com/xenking/till/internal/domain/pricing"
)

// --- Mock implementations ---

type mockCounterpartyRepo struct {
	byID map[string]*counterparty.Counterparty
	err  error
}

func (m *mockCounterpartyRepo) GetByID(_ context.Context, id string) (*counterparty.Counterparty, error) {
	if m.err != nil {
		return nil, m.err
	}
	cp, ok := m.byID[id]
	if !ok {
		return nil, counterparty.ErrNotFound
	}
	return cp, nil
}

type mockCouponValidator struct {
	discount    *coupon.Discount
	err         error
	redeemErr   error
	validated   int
	redeemed    int
	redeemedFor string
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, _ []coupon.Item) (*coupon.Discount, error) {
	m.validated++
	return m.discount, m.err
}

func (m *mockCouponValidator) Redeem(_ context.Context, code string, _ []coupon.Item) (*coupon.Discount, error) {
	m.redeemed++
	m.redeemedFor = code
	if m.redeemErr != nil {
		return nil, m.redeemErr
	}
	return m.discount, m.err
}

type mockOrderRepo struct {
	lastOrder *Order
	err       error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func counterparties(cps ...*counterparty.Counterparty) *mockCounterpartyRepo {
	byID := make(map[string]*counterparty.Counterparty, len(cps))
	for _, cp := range cps {
		byID[cp.ID] = cp
	}
	return &mockCounterpartyRepo{byID: byID}
}

var (
	walkIn = &counterparty.Counterparty{
		ID:           "c1",
		Kind:         counterparty.KindCustomer,
		BusinessType: counterparty.BusinessRetail,
	}
	limited = &counterparty.Counterparty{
		ID:             "c2",
		Kind:           counterparty.KindCustomer,
		CreditLimit:    d("1000"),
		CurrentBalance: d("800"),
		PendingBalance: d("100"),
	}
	manufacturer = &counterparty.Counterparty{
		ID:           "s1",
		Kind:         counterparty.KindSupplier,
		BusinessType: counterparty.BusinessManufacturer,
		Rating:       5,
		Reliability:  counterparty.ReliabilityExcellent,
	}
)

func newTestService(t *testing.T, cps *mockCounterpartyRepo, cv *mockCouponValidator, orders *mockOrderRepo) *Service {
	t.Helper()
	svc, err := NewService(cps, cv, orders,
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(metricnoop.NewMeterProvider()),
	)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func saleLines() []cart.LineItem {
	return []cart.LineItem{
		{ItemRef: "p1", Quantity: 2, UnitPrice: d("10"), AvailableStock: 10},
		{ItemRef: "p2", Quantity: 1, UnitPrice: d("5"), AvailableStock: 10},
	}
}

// --- Tests ---

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "empty cart",
			req:     Request{Flow: pricing.FlowSales, CounterpartyID: "c1"},
			wantErr: ErrEmptyCart,
		},
		{
			name:    "missing counterparty",
			req:     Request{Flow: pricing.FlowSales, Lines: saleLines()},
			wantErr: ErrMissingCounterparty,
		},
		{
			name:    "unknown counterparty",
			req:     Request{Flow: pricing.FlowSales, Lines: saleLines(), CounterpartyID: "ghost"},
			wantErr: counterparty.ErrNotFound,
		},
		{
			name: "supplier on a sale",
			req:  Request{Flow: pricing.FlowSales, Lines: saleLines(), CounterpartyID: "s1"},
			check: func(t *testing.T, err error) {
				var kindErr *CounterpartyKindError
				require.ErrorAs(t, err, &kindErr)
				assert.Equal(t, counterparty.KindSupplier, kindErr.Kind)
			},
		},
		{
			name: "negative payment",
			req: Request{Flow: pricing.FlowSales, Lines: saleLines(), CounterpartyID: "c1",
				Payment: Payment{Method: "cash", Amount: d("-1")}},
			check: func(t *testing.T, err error) {
				var amtErr *cart.InvalidAmountError
				require.ErrorAs(t, err, &amtErr)
				assert.Equal(t, "payment", amtErr.Field)
			},
		},
		{
			name: "zero quantity line",
			req: Request{Flow: pricing.FlowSales, CounterpartyID: "c1",
				Lines: []cart.LineItem{{ItemRef: "p1", Quantity: 0, UnitPrice: d("1")}}},
			check: func(t *testing.T, err error) {
				var amtErr *cart.InvalidAmountError
				require.ErrorAs(t, err, &amtErr)
				assert.Equal(t, "quantity", amtErr.Field)
			},
		},
		{
			name: "duplicate refs",
			req: Request{Flow: pricing.FlowSales, CounterpartyID: "c1",
				Lines: []cart.LineItem{
					{ItemRef: "p1", Quantity: 1, UnitPrice: d("1")},
					{ItemRef: "p1", Quantity: 2, UnitPrice: d("1")},
				}},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "duplicate line")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &mockOrderRepo{}
			svc := newTestService(t, counterparties(walkIn, manufacturer), &mockCouponValidator{}, orders)

			_, err := svc.Checkout(context.Background(), tt.req)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
			assert.Nil(t, orders.lastOrder, "nothing persisted on rejection")
		})
	}
}

func TestCheckout_Sale(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(t, counterparties(walkIn), &mockCouponValidator{}, orders)

	res, err := svc.Checkout(context.Background(), Request{
		Flow:           pricing.FlowSales,
		Lines:          saleLines(),
		Discount:       pricing.DiscountSpec{Type: pricing.DiscountPercentage, Value: d("10")},
		CounterpartyID: "c1",
		Payment:        Payment{Method: "cash", Amount: d("24.30")},
	})
	require.NoError(t, err)

	o := orders.lastOrder
	require.NotNil(t, o)
	assert.Equal(t, res.Order, o)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, pricing.FlowSales, o.Flow)
	assert.Equal(t, "c1", o.CounterpartyID)
	assert.Equal(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), o.CreatedAt)

	// 25 - 2.5 = 22.5, tax 8% = 1.8, total 24.3
	sub := o.Submission
	assert.True(t, d("25").Equal(sub.Subtotal))
	assert.True(t, d("2.5").Equal(sub.DiscountAmount))
	assert.True(t, d("1.8").Equal(sub.TaxAmount))
	assert.True(t, d("24.3").Equal(sub.Total))
	assert.Equal(t, "cash", sub.Payment.Method)
	require.Len(t, sub.Items, 2)
	assert.Equal(t, "p1", sub.Items[0].ItemRef)
	assert.Equal(t, 2, sub.Items[0].Quantity)
}

func TestCheckout_PurchaseUsesSupplierTax(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(t, counterparties(manufacturer), &mockCouponValidator{}, orders)

	res, err := svc.Checkout(context.Background(), Request{
		Flow:           pricing.FlowPurchase,
		Lines:          []cart.LineItem{{ItemRef: "raw", Quantity: 10, UnitPrice: d("100")}},
		CounterpartyID: "s1",
	})
	require.NoError(t, err)

	assert.True(t, d("0.03").Equal(res.Quote.Pricing.TaxRate))
	assert.True(t, d("1030").Equal(orders.lastOrder.Submission.Total))
	assert.False(t, res.Quote.Credit.Checked, "purchases skip the credit check")
}

func TestCheckout_CreditLimitExceeded(t *testing.T) {
	orders := &mockOrderRepo{}
	cv := &mockCouponValidator{}
	svc := newTestService(t, counterparties(limited), cv, orders)

	_, err := svc.Checkout(context.Background(), Request{
		Flow:           pricing.FlowSales,
		Lines:          []cart.LineItem{{ItemRef: "p1", Quantity: 1, UnitPrice: d("150"), AvailableStock: 5}},
		TaxExempt:      true,
		CounterpartyID: "c2",
	})

	var exceeded *pricing.CreditLimitExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.True(t, d("1050").Equal(exceeded.Projected))
	assert.Nil(t, orders.lastOrder)
	assert.Zero(t, cv.redeemed)
}

func TestCheckout_CreditWarningDoesNotBlock(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(t, counterparties(limited), &mockCouponValidator{}, orders)

	res, err := svc.Checkout(context.Background(), Request{
		Flow:           pricing.FlowSales,
		Lines:          []cart.LineItem{{ItemRef: "p1", Quantity: 1, UnitPrice: d("50"), AvailableStock: 5}},
		TaxExempt:      true,
		CounterpartyID: "c2",
	})
	require.NoError(t, err)
	require.NotNil(t, orders.lastOrder)

	require.Len(t, res.Quote.Warnings, 1)
	var warn *pricing.CreditLimitWarning
	require.ErrorAs(t, res.Quote.Warnings[0], &warn)
	assert.True(t, d("50").Equal(warn.Available))
}

func TestCheckout_RedeemsCoupon(t *testing.T) {
	orders := &mockOrderRepo{}
	cv := &mockCouponValidator{discount: &coupon.Discount{Code: "SAVE5", Amount: d("5")}}
	svc := newTestService(t, counterparties(walkIn), cv, orders)

	res, err := svc.Checkout(context.Background(), Request{
		Flow:           pricing.FlowSales,
		Lines:          saleLines(),
		CouponCode:     "save5",
		TaxExempt:      true,
		CounterpartyID: "c1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, cv.redeemed)
	assert.Equal(t, "save5", cv.redeemedFor)
	assert.Equal(t, "SAVE5", orders.lastOrder.CouponCode)
	assert.True(t, d("20").Equal(orders.lastOrder.Submission.Total))
	assert.True(t, d("5").Equal(res.Quote.Pricing.CouponDiscount))
}

func TestCouponRejectedOnPurchase(t *testing.T) {
	orders := &mockOrderRepo{}
	cv := &mockCouponValidator{discount: &coupon.Discount{Code: "SAVE5", Amount: d("5")}}
	svc := newTestService(t, counterparties(manufacturer), cv, orders)
	req := Request{
		Flow:           pricing.FlowPurchase,
		Lines:          saleLines(),
		CouponCode:     "SAVE5",
		CounterpartyID: "s1",
	}

	_, err := svc.Quote(context.Background(), req)
	require.ErrorIs(t, err, ErrCouponNotAllowed)

	_, err = svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrCouponNotAllowed)
	assert.Equal(t, "coupon_not_allowed", rejectReason(err))

	assert.Zero(t, cv.validated)
	assert.Zero(t, cv.redeemed)
	assert.Nil(t, orders.lastOrder)
}

func TestCheckout_InvalidCoupon(t *testing.T) {
	cv := &mockCouponValidator{err: coupon.ErrInvalidCoupon}
	svc := newTestService(t, counterparties(walkIn), cv, &mockOrderRepo{})

	_, err := svc.Checkout(context.Background(), Request{
		Flow:           pricing.FlowSales,
		Lines:          saleLines(),
		CouponCode:     "BOGUS",
		CounterpartyID: "c1",
	})
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

func TestCheckout_OrderCreateError(t *testing.T) {
	svc := newTestService(t, counterparties(walkIn), &mockCouponValidator{},
		&mockOrderRepo{err: errors.New("db write failed")})

	_, err := svc.Checkout(context.Background(), Request{
		Flow:           pricing.FlowSales,
		Lines:          saleLines(),
		CounterpartyID: "c1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestQuote_NoCounterpartyNoSideEffects(t *testing.T) {
	orders := &mockOrderRepo{}
	cv := &mockCouponValidator{discount: &coupon.Discount{Code: "SAVE5", Amount: d("5")}}
	svc := newTestService(t, counterparties(), cv, orders)

	q, err := svc.Quote(context.Background(), Request{
		Flow:       pricing.FlowSales,
		Lines:      saleLines(),
		CouponCode: "SAVE5",
	})
	require.NoError(t, err)

	assert.True(t, d("21.6").Equal(q.Pricing.Total))
	assert.Nil(t, q.Pricing.TotalPayables)
	assert.Equal(t, 1, cv.validated)
	assert.Zero(t, cv.redeemed)
	assert.Nil(t, orders.lastOrder)
}

func TestQuote_TotalPayablesAndBelowCost(t *testing.T) {
	owing := &counterparty.Counterparty{ID: "c3", Kind: counterparty.KindCustomer, CurrentBalance: d("40")}
	svc := newTestService(t, counterparties(owing), &mockCouponValidator{}, &mockOrderRepo{})

	q, err := svc.Quote(context.Background(), Request{
		Flow: pricing.FlowSales,
		Lines: []cart.LineItem{
			{ItemRef: "p1", Quantity: 1, UnitPrice: d("8"), CostPrice: d("9"), BelowCost: true},
		},
		TaxExempt:      true,
		CounterpartyID: "c3",
	})
	require.NoError(t, err)

	require.NotNil(t, q.Pricing.TotalPayables)
	assert.True(t, d("48").Equal(*q.Pricing.TotalPayables))
	require.Len(t, q.Warnings, 1)
	var bc *cart.BelowCostPriceWarning
	require.ErrorAs(t, q.Warnings[0], &bc)
	assert.Equal(t, "p1", bc.ItemRef)
}

func TestNewSubmission_RoundsAtBoundary(t *testing.T) {
	lines := []cart.LineItem{{ItemRef: "p1", Quantity: 3, UnitPrice: d("3.333")}}
	res, err := pricing.Compute(pricing.Input{Flow: pricing.FlowSales, Lines: lines})
	require.NoError(t, err)

	sub := NewSubmission(lines, res, Payment{Method: "card", Amount: d("10.799")})

	assert.True(t, d("3.33").Equal(sub.Items[0].UnitPrice))
	assert.True(t, d("10").Equal(sub.Subtotal))
	assert.True(t, d("0.8").Equal(sub.TaxAmount))
	assert.True(t, d("10.8").Equal(sub.Total))
	assert.True(t, d("10.8").Equal(sub.Payment.Amount))
	assert.True(t, d("9.999").Equal(res.Subtotal), "pricing result keeps precision")
}
