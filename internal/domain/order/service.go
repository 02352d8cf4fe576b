package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/coupon"
	"github.com/xenking/till/internal/domain/pricing"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrMissingCounterparty = errors.New("counterparty required")
	ErrCouponNotAllowed    = errors.New("coupons apply to sales only")
)

// CounterpartyKindError indicates the selected counterparty cannot trade on
// the requested flow, e.g. a supplier on a sale.
type CounterpartyKindError struct {
	CounterpartyID string
	Kind           counterparty.Kind
	Flow           pricing.Flow
}

func (e *CounterpartyKindError) Error() string {
	return fmt.Sprintf("counterparty %s is a %s and cannot be used for %s", e.CounterpartyID, e.Kind, e.Flow)
}

// Request holds the input for quoting or checking out a cart.
type Request struct {
	Flow           pricing.Flow
	Lines          []cart.LineItem
	Discount       pricing.DiscountSpec
	CouponCode     string
	TaxExempt      bool
	CounterpartyID string
	Payment        Payment
}

// Quote is a priced cart with its advisories.
type Quote struct {
	Pricing      pricing.Result
	Coupon       *coupon.Discount
	Credit       pricing.CreditCheck
	Counterparty *counterparty.Counterparty
	// Warnings are non-blocking advisories: *pricing.CreditLimitWarning and
	// *cart.BelowCostPriceWarning.
	Warnings []error
}

// CheckoutResult holds the output of a successful checkout.
type CheckoutResult struct {
	Order *Order
	Quote Quote
}

// Service encapsulates pricing and checkout of entry carts.
type Service struct {
	counterparties counterparty.Repository
	coupons        coupon.Validator
	orders         Repository
	now            func() time.Time

	tracer    trace.Tracer
	quotes    metric.Int64Counter
	checkouts metric.Int64Counter
	rejected  metric.Int64Counter
}

// Option configures a Service.
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

const instrumentationName = "github.com/xenking/till/internal/domain/order"

// NewService creates an order Service with the required domain dependencies.
func NewService(
	counterparties counterparty.Repository,
	coupons coupon.Validator,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	o := options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	s := &Service{
		counterparties: counterparties,
		coupons:        coupons,
		orders:         orders,
		now:            time.Now,
		tracer:         o.tracerProvider.Tracer(instrumentationName),
	}

	var err error
	if s.quotes, err = meter.Int64Counter("till.quotes",
		metric.WithDescription("Carts priced"),
	); err != nil {
		return nil, errors.Wrap(err, "quotes counter")
	}
	if s.checkouts, err = meter.Int64Counter("till.checkouts",
		metric.WithDescription("Orders submitted"),
	); err != nil {
		return nil, errors.Wrap(err, "checkouts counter")
	}
	if s.rejected, err = meter.Int64Counter("till.checkouts.rejected",
		metric.WithDescription("Checkouts rejected by validation or credit checks"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	return s, nil
}

// Quote prices a cart without side effects. The counterparty is optional.
func (s *Service) Quote(ctx context.Context, req Request) (*Quote, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote",
		trace.WithAttributes(attribute.String("till.flow", string(req.Flow))),
	)
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := validateLines(req.Lines); err != nil {
		return nil, err
	}

	var cp *counterparty.Counterparty
	if req.CounterpartyID != "" {
		var err error
		if cp, err = s.loadCounterparty(ctx, req); err != nil {
			return nil, err
		}
	}

	q, err := s.quote(ctx, req, cp)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.quotes.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", string(req.Flow))))
	return q, nil
}

// Checkout validates and prices a cart, enforces the customer's credit limit
// on sales, redeems the coupon and persists the order.
func (s *Service) Checkout(ctx context.Context, req Request) (_ *CheckoutResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(attribute.String("till.flow", string(req.Flow))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.rejected.Add(ctx, 1, metric.WithAttributes(
				attribute.String("flow", string(req.Flow)),
				attribute.String("reason", rejectReason(rerr)),
			))
		}
		span.End()
	}()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if req.CounterpartyID == "" {
		return nil, ErrMissingCounterparty
	}
	if err := validateLines(req.Lines); err != nil {
		return nil, err
	}
	if req.Payment.Amount.IsNegative() {
		return nil, &cart.InvalidAmountError{Field: "payment", Value: req.Payment.Amount.String()}
	}

	cp, err := s.loadCounterparty(ctx, req)
	if err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, req, cp)
	if err != nil {
		return nil, err
	}

	if req.Flow == pricing.FlowSales {
		check, err := pricing.CheckCreditLimit(cp, q.Pricing.Total, req.Payment.Amount)
		q.Credit = check
		if err != nil {
			return nil, err
		}
		if check.Warning != nil {
			q.Warnings = append(q.Warnings, check.Warning)
		}
	}

	couponCode := ""
	if q.Coupon != nil {
		redeemed, err := s.coupons.Redeem(ctx, req.CouponCode, coupon.ItemsFromLines(req.Lines))
		if err != nil {
			return nil, errors.Wrap(err, "redeem coupon")
		}
		couponCode = redeemed.Code
	}

	o := &Order{
		ID:             uuid.New().String(),
		Flow:           req.Flow,
		CounterpartyID: cp.ID,
		Submission:     NewSubmission(req.Lines, q.Pricing, req.Payment),
		CouponCode:     couponCode,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	span.SetAttributes(attribute.String("till.order_id", o.ID))
	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", string(req.Flow))))

	return &CheckoutResult{Order: o, Quote: *q}, nil
}

func (s *Service) loadCounterparty(ctx context.Context, req Request) (*counterparty.Counterparty, error) {
	cp, err := s.counterparties.GetByID(ctx, req.CounterpartyID)
	if err != nil {
		if errors.Is(err, counterparty.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get counterparty")
	}
	if want := req.Flow.CounterpartyKind(); cp.Kind != want {
		return nil, &CounterpartyKindError{CounterpartyID: cp.ID, Kind: cp.Kind, Flow: req.Flow}
	}
	return cp, nil
}

func (s *Service) quote(ctx context.Context, req Request, cp *counterparty.Counterparty) (*Quote, error) {
	q := &Quote{Counterparty: cp}

	couponAmount := decimal.Zero
	if req.Flow == pricing.FlowSales && req.CouponCode != "" {
		d, err := s.coupons.Validate(ctx, req.CouponCode, coupon.ItemsFromLines(req.Lines))
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		q.Coupon = d
		couponAmount = d.Amount
	}

	res, err := pricing.Compute(pricing.Input{
		Flow:           req.Flow,
		Lines:          req.Lines,
		Discount:       req.Discount,
		CouponDiscount: couponAmount,
		TaxExempt:      req.TaxExempt,
		Counterparty:   cp,
	})
	if err != nil {
		return nil, err
	}
	q.Pricing = res

	for _, l := range req.Lines {
		if l.BelowCost || (l.CostPrice.IsPositive() && l.UnitPrice.LessThan(l.CostPrice)) {
			q.Warnings = append(q.Warnings, &cart.BelowCostPriceWarning{
				ItemRef:   l.ItemRef,
				UnitPrice: l.UnitPrice,
				CostPrice: l.CostPrice,
			})
		}
	}
	return q, nil
}

func validateRequest(req Request) error {
	if _, err := pricing.ParseFlow(string(req.Flow)); err != nil {
		return err
	}
	if req.CouponCode != "" && req.Flow != pricing.FlowSales {
		return ErrCouponNotAllowed
	}
	return nil
}

func validateLines(lines []cart.LineItem) error {
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return &cart.InvalidAmountError{Field: "quantity", Value: fmt.Sprint(l.Quantity)}
		}
		if l.UnitPrice.IsNegative() {
			return &cart.InvalidAmountError{Field: "unitPrice", Value: l.UnitPrice.String()}
		}
		if _, dup := seen[l.ItemRef]; dup {
			return errors.Errorf("duplicate line for item %s", l.ItemRef)
		}
		seen[l.ItemRef] = struct{}{}
	}
	return nil
}

func rejectReason(err error) string {
	var (
		creditErr *pricing.CreditLimitExceededError
		amountErr *cart.InvalidAmountError
		kindErr   *CounterpartyKindError
	)
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrMissingCounterparty):
		return "missing_counterparty"
	case errors.Is(err, ErrCouponNotAllowed):
		return "coupon_not_allowed"
	case errors.As(err, &creditErr):
		return "credit_limit"
	case errors.As(err, &amountErr):
		return "invalid_amount"
	case errors.As(err, &kindErr):
		return "counterparty_kind"
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponUsageLimitReached):
		return "coupon"
	default:
		return "other"
	}
}
