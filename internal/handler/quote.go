package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
	"github.com/xenking/till/internal/domain/product"
)

// quote prices a cart sent in full, without a session or side effects.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeQuoteRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var cp *counterparty.Counterparty
	if req.CounterpartyID != "" {
		if cp, err = h.counterparties.GetByID(ctx, req.CounterpartyID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	lines, err := h.buildLines(ctx, req.Flow, cp, req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.pricer.Quote(ctx, order.Request{
		Flow:           req.Flow,
		Lines:          lines,
		Discount:       req.Pricing.Discount,
		CouponCode:     req.Pricing.CouponCode,
		TaxExempt:      req.Pricing.TaxExempt,
		CounterpartyID: req.CounterpartyID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// buildLines resolves requested items against the catalogue and merges them
// into a cart, so repeated refs sum and the sales stock guard applies.
func (h *Handler) buildLines(ctx context.Context, flow pricing.Flow, cp *counterparty.Counterparty, items []itemInput) ([]cart.LineItem, error) {
	if len(items) == 0 {
		return nil, order.ErrEmptyCart
	}

	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ItemRef]; !ok {
			seen[it.ItemRef] = struct{}{}
			ids = append(ids, it.ItemRef)
		}
	}
	products, err := h.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var bt counterparty.BusinessType
	if cp != nil {
		bt = cp.BusinessType
	}
	c := cart.New()
	if flow == pricing.FlowPurchase {
		c = cart.NewUnbounded()
	}
	for _, it := range items {
		p, ok := byID[it.ItemRef]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "item %s", it.ItemRef)
		}
		price := p.UnitPriceFor(flow.CounterpartyKind(), bt)
		if it.UnitPrice != nil {
			price = *it.UnitPrice
		}
		effect, err := c.ComputeMergeEffect(cart.LineItem{
			ItemRef:        p.ID,
			Quantity:       it.Quantity,
			UnitPrice:      price,
			AvailableStock: p.Inventory.CurrentStock,
			CostPrice:      p.CostPrice,
		})
		if err != nil {
			return nil, err
		}
		c = c.Commit(effect)
	}
	return c.Lines(), nil
}
