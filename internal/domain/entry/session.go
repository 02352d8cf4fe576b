// Package entry keeps the state of open Sale and Purchase entry screens.
//
// A Session owns exactly one cart. Edits go through the session so the
// confirmation gate for duplicate or below-cost adds and the single in-flight
// submission guard hold no matter how many requests touch the same screen.
package entry

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
	"github.com/xenking/till/internal/domain/product"
)

// Pricer quotes and checks out carts. *order.Service implements it.
type Pricer interface {
	Quote(ctx context.Context, req order.Request) (*order.Quote, error)
	Checkout(ctx context.Context, req order.Request) (*order.CheckoutResult, error)
}

var _ Pricer = (*order.Service)(nil)

// ProductSource looks products up by id.
type ProductSource interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// Deps are the collaborators a session needs.
type Deps struct {
	Products       ProductSource
	Counterparties counterparty.Repository
	Pricer         Pricer
}

// AddResult describes the outcome of AddItem.
type AddResult struct {
	Effect cart.MergeEffect
	// Pending is true when the add awaits ConfirmPending or DeclinePending.
	Pending bool
}

// PricingOptions are the transaction-level pricing inputs of a session.
type PricingOptions struct {
	Discount   pricing.DiscountSpec
	TaxExempt  bool
	CouponCode string
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID           string
	Flow         pricing.Flow
	EditMode     bool
	State        cart.State
	Lines        []cart.LineItem
	Counterparty *counterparty.Counterparty
	Options      PricingOptions
	Pending      *cart.MergeEffect
	Submitting   bool
	LastActive   time.Time
}

type pendingAdd struct {
	item   cart.LineItem
	effect cart.MergeEffect
}

// Session is one open entry screen.
type Session struct {
	id       string
	flow     pricing.Flow
	editMode bool
	deps     Deps
	now      func() time.Time

	mu           sync.Mutex
	cart         cart.Cart
	counterparty *counterparty.Counterparty
	opts         PricingOptions
	pending      *pendingAdd
	submitting   bool
	lastActive   time.Time
}

func newSession(id string, flow pricing.Flow, editMode bool, deps Deps, now func() time.Time) *Session {
	c := cart.New()
	if flow == pricing.FlowPurchase {
		c = cart.NewUnbounded()
	}
	return &Session{
		id:         id,
		flow:       flow,
		editMode:   editMode,
		deps:       deps,
		now:        now,
		cart:       c,
		opts:       PricingOptions{Discount: pricing.NoDiscount()},
		lastActive: now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Flow returns the session flow.
func (s *Session) Flow() pricing.Flow { return s.flow }

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		Flow:       s.flow,
		EditMode:   s.editMode,
		State:      s.cart.State(),
		Lines:      s.cart.Lines(),
		Options:    s.opts,
		Submitting: s.submitting,
		LastActive: s.lastActive,
	}
	if s.counterparty != nil {
		cp := *s.counterparty
		snap.Counterparty = &cp
	}
	if s.pending != nil {
		e := s.pending.effect
		snap.Pending = &e
	}
	return snap
}

// lock acquires the session for a mutation. It fails while a submission is
// in flight so that the cart being submitted is the cart that gets cleared.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return ErrSubmissionInFlight
	}
	s.lastActive = s.now()
	return nil
}

// AddItem looks the product up and adds qty units at the default price tier
// for the session counterparty, or at unitPrice when given. Adds that merge
// into an existing line or price below cost become the pending add and are
// not applied until confirmed; any earlier pending add is discarded.
func (s *Session) AddItem(ctx context.Context, ref string, qty int, unitPrice *decimal.Decimal) (AddResult, error) {
	p, err := s.deps.Products.GetByID(ctx, ref)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return AddResult{}, err
		}
		return AddResult{}, errors.Wrap(err, "get product")
	}

	if err := s.lock(); err != nil {
		return AddResult{}, err
	}
	defer s.mu.Unlock()

	var bt counterparty.BusinessType
	if s.counterparty != nil {
		bt = s.counterparty.BusinessType
	}
	price := p.UnitPriceFor(s.flow.CounterpartyKind(), bt)
	if unitPrice != nil {
		price = *unitPrice
	}

	item := cart.LineItem{
		ItemRef:        p.ID,
		Quantity:       qty,
		UnitPrice:      price,
		AvailableStock: p.Inventory.CurrentStock,
		CostPrice:      p.CostPrice,
	}
	effect, err := s.cart.ComputeMergeEffect(item)
	if err != nil {
		return AddResult{}, err
	}

	if effect.RequiresConfirmation() {
		s.pending = &pendingAdd{item: item, effect: effect}
		return AddResult{Effect: effect, Pending: true}, nil
	}
	s.pending = nil
	s.cart = s.cart.Commit(effect)
	return AddResult{Effect: effect}, nil
}

// ConfirmPending applies the pending add. The effect is recomputed against
// the current cart so a stale confirmation cannot bypass the stock guard.
func (s *Session) ConfirmPending() (cart.MergeEffect, error) {
	if err := s.lock(); err != nil {
		return cart.MergeEffect{}, err
	}
	defer s.mu.Unlock()

	if s.pending == nil {
		return cart.MergeEffect{}, ErrNoPendingAdd
	}
	effect, err := s.cart.ComputeMergeEffect(s.pending.item)
	if err != nil {
		s.pending = nil
		return cart.MergeEffect{}, err
	}
	s.pending = nil
	s.cart = s.cart.Commit(effect)
	return effect, nil
}

// DeclinePending discards the pending add.
func (s *Session) DeclinePending() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.pending == nil {
		return ErrNoPendingAdd
	}
	s.pending = nil
	return nil
}

// UpdateQuantity sets a line quantity. A quantity below one removes the line.
func (s *Session) UpdateQuantity(ref string, qty int) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	next, err := s.cart.UpdateQuantity(ref, qty)
	if err != nil {
		return err
	}
	s.cart = next
	return nil
}

// UpdateUnitPrice edits a line price. A below-cost price is applied and
// reported as a warning.
func (s *Session) UpdateUnitPrice(ref string, price decimal.Decimal) (*cart.BelowCostPriceWarning, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	next, warn, err := s.cart.UpdateUnitPrice(ref, price)
	if err != nil {
		return nil, err
	}
	s.cart = next
	return warn, nil
}

// RemoveItem drops a line.
func (s *Session) RemoveItem(ref string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	next, err := s.cart.Remove(ref)
	if err != nil {
		return err
	}
	s.cart = next
	return nil
}

// Clear empties the cart and drops the pending add.
func (s *Session) Clear() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.cart = s.cart.Clear()
	s.pending = nil
	return nil
}

// SetCounterparty selects the customer or supplier. On the sales flow,
// switching from one customer to another outside edit mode clears the cart
// because line prices were picked for the previous customer's tier. It
// reports whether the cart was cleared.
func (s *Session) SetCounterparty(ctx context.Context, id string) (bool, error) {
	cp, err := s.deps.Counterparties.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, counterparty.ErrNotFound) {
			return false, err
		}
		return false, errors.Wrap(err, "get counterparty")
	}
	if want := s.flow.CounterpartyKind(); cp.Kind != want {
		return false, &order.CounterpartyKindError{CounterpartyID: cp.ID, Kind: cp.Kind, Flow: s.flow}
	}

	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	cleared := false
	if s.flow == pricing.FlowSales && !s.editMode &&
		s.counterparty != nil && s.counterparty.ID != cp.ID {
		s.cart = s.cart.Clear()
		s.pending = nil
		cleared = true
	}
	s.counterparty = cp
	return cleared, nil
}

// SetPricing replaces the discount, tax exemption and coupon code.
func (s *Session) SetPricing(opts PricingOptions) error {
	if err := opts.Discount.Validate(); err != nil {
		return err
	}
	if opts.CouponCode != "" && s.flow != pricing.FlowSales {
		return ErrCouponNotAllowed
	}

	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.opts = opts
	return nil
}

// Quote prices the current cart.
func (s *Session) Quote(ctx context.Context) (*order.Quote, error) {
	s.mu.Lock()
	req := s.requestLocked(order.Payment{})
	s.lastActive = s.now()
	s.mu.Unlock()

	return s.deps.Pricer.Quote(ctx, req)
}

// Submit checks the cart out. At most one submission runs per session; a
// second call while one is in flight fails with ErrSubmissionInFlight. The
// cart is cleared only when the checkout succeeds.
func (s *Session) Submit(ctx context.Context, payment order.Payment) (*order.CheckoutResult, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	req := s.requestLocked(payment)
	s.submitting = true
	s.mu.Unlock()

	res, err := s.deps.Pricer.Checkout(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	s.lastActive = s.now()
	if err != nil {
		return nil, err
	}

	s.cart = s.cart.Clear()
	s.pending = nil
	s.opts = PricingOptions{Discount: pricing.NoDiscount()}
	return res, nil
}

func (s *Session) requestLocked(payment order.Payment) order.Request {
	req := order.Request{
		Flow:       s.flow,
		Lines:      s.cart.Lines(),
		Discount:   s.opts.Discount,
		CouponCode: s.opts.CouponCode,
		TaxExempt:  s.opts.TaxExempt,
		Payment:    payment,
	}
	if s.counterparty != nil {
		req.CounterpartyID = s.counterparty.ID
	}
	return req
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.submitting
}
