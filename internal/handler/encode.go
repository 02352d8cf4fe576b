package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/coupon"
	"github.com/xenking/till/internal/domain/entry"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
	"github.com/xenking/till/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// money renders an amount as a JSON number with two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("retailPrice", func(e *jx.Encoder) { money(e, p.RetailPrice) })
		e.Field("wholesalePrice", func(e *jx.Encoder) { money(e, p.WholesalePrice) })
		e.Field("costPrice", func(e *jx.Encoder) { money(e, p.CostPrice) })
		e.Field("currentStock", func(e *jx.Encoder) { e.Int(p.Inventory.CurrentStock) })
		e.Field("reorderPoint", func(e *jx.Encoder) { e.Int(p.Inventory.ReorderPoint) })
		e.Field("needsReorder", func(e *jx.Encoder) { e.Bool(p.Inventory.NeedsReorder()) })
	})
}

func encodeCounterparty(e *jx.Encoder, cp *counterparty.Counterparty) {
	if cp == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(cp.ID) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(cp.Kind)) })
		e.Field("name", func(e *jx.Encoder) { e.Str(cp.Name) })
		e.Field("businessType", func(e *jx.Encoder) { e.Str(string(cp.BusinessType)) })
		e.Field("outstandingBalance", func(e *jx.Encoder) { money(e, cp.OutstandingBalance()) })
		e.Field("creditLimit", func(e *jx.Encoder) { money(e, cp.CreditLimit) })
	})
}

func encodeLine(e *jx.Encoder, l cart.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("itemRef", func(e *jx.Encoder) { e.Str(l.ItemRef) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { money(e, l.UnitPrice) })
		e.Field("lineTotal", func(e *jx.Encoder) { money(e, l.LineTotal()) })
		e.Field("availableStock", func(e *jx.Encoder) { e.Int(l.AvailableStock) })
		e.Field("belowCost", func(e *jx.Encoder) { e.Bool(l.BelowCost) })
	})
}

func encodeEffect(e *jx.Encoder, eff cart.MergeEffect) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("line", func(e *jx.Encoder) { encodeLine(e, eff.Line) })
		e.Field("existing", func(e *jx.Encoder) { e.Bool(eff.Existing) })
		e.Field("previousQuantity", func(e *jx.Encoder) { e.Int(eff.PreviousQuantity) })
		e.Field("requiresConfirmation", func(e *jx.Encoder) { e.Bool(eff.RequiresConfirmation()) })
		if eff.BelowCost != nil {
			e.Field("warning", func(e *jx.Encoder) { encodeWarning(e, eff.BelowCost) })
		}
	})
}

func encodeWarning(e *jx.Encoder, w error) {
	kind := "warning"
	switch w.(type) {
	case *cart.BelowCostPriceWarning:
		kind = "below_cost"
	case *pricing.CreditLimitWarning:
		kind = "credit_limit"
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(kind) })
		e.Field("message", func(e *jx.Encoder) { e.Str(w.Error()) })
	})
}

func encodeWarnings(e *jx.Encoder, ws []error) {
	e.Arr(func(e *jx.Encoder) {
		for _, w := range ws {
			encodeWarning(e, w)
		}
	})
}

func encodePricing(e *jx.Encoder, res pricing.Result) {
	r := res.Rounded()
	e.Field("flow", func(e *jx.Encoder) { e.Str(string(r.Flow)) })
	e.Field("subtotal", func(e *jx.Encoder) { money(e, r.Subtotal) })
	e.Field("directDiscount", func(e *jx.Encoder) { money(e, r.DirectDiscount) })
	e.Field("couponDiscount", func(e *jx.Encoder) { money(e, r.CouponDiscount) })
	e.Field("discountAmount", func(e *jx.Encoder) { money(e, r.DiscountAmount) })
	e.Field("taxRate", func(e *jx.Encoder) { e.Raw([]byte(r.TaxRate.String())) })
	e.Field("taxAmount", func(e *jx.Encoder) { money(e, r.TaxAmount) })
	e.Field("total", func(e *jx.Encoder) { money(e, r.Total) })
	if r.TotalPayables != nil {
		e.Field("totalPayables", func(e *jx.Encoder) { money(e, *r.TotalPayables) })
	}
}

func encodeCoupon(e *jx.Encoder, d *coupon.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(d.Code) })
		e.Field("amount", func(e *jx.Encoder) { money(e, d.Amount) })
		e.Field("description", func(e *jx.Encoder) { e.Str(d.Description) })
	})
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.Obj(func(e *jx.Encoder) {
		encodePricing(e, q.Pricing)
		if q.Coupon != nil {
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, q.Coupon) })
		}
		if q.Credit.Checked {
			e.Field("credit", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("outstanding", func(e *jx.Encoder) { money(e, q.Credit.Outstanding) })
					e.Field("projected", func(e *jx.Encoder) { money(e, q.Credit.Projected) })
				})
			})
		}
		e.Field("counterparty", func(e *jx.Encoder) { encodeCounterparty(e, q.Counterparty) })
		e.Field("warnings", func(e *jx.Encoder) { encodeWarnings(e, q.Warnings) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	s := o.Submission
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("flow", func(e *jx.Encoder) { e.Str(string(o.Flow)) })
		e.Field("counterpartyId", func(e *jx.Encoder) { e.Str(o.CounterpartyID) })
		if o.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range s.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("itemRef", func(e *jx.Encoder) { e.Str(it.ItemRef) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, s.Subtotal) })
		e.Field("discountAmount", func(e *jx.Encoder) { money(e, s.DiscountAmount) })
		e.Field("taxAmount", func(e *jx.Encoder) { money(e, s.TaxAmount) })
		e.Field("total", func(e *jx.Encoder) { money(e, s.Total) })
		e.Field("payment", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("method", func(e *jx.Encoder) { e.Str(s.Payment.Method) })
				e.Field("amount", func(e *jx.Encoder) { money(e, s.Payment.Amount) })
			})
		})
	})
}

func encodeSession(e *jx.Encoder, s entry.Snapshot) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("flow", func(e *jx.Encoder) { e.Str(string(s.Flow)) })
		e.Field("editMode", func(e *jx.Encoder) { e.Bool(s.EditMode) })
		e.Field("state", func(e *jx.Encoder) { e.Str(string(s.State)) })
		e.Field("submitting", func(e *jx.Encoder) { e.Bool(s.Submitting) })
		e.Field("counterparty", func(e *jx.Encoder) { encodeCounterparty(e, s.Counterparty) })
		e.Field("discount", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				typ := s.Options.Discount.Type
				if typ == "" {
					typ = pricing.DiscountAmount
				}
				e.Field("type", func(e *jx.Encoder) { e.Str(string(typ)) })
				e.Field("value", func(e *jx.Encoder) { e.Raw([]byte(s.Options.Discount.Value.String())) })
			})
		})
		e.Field("taxExempt", func(e *jx.Encoder) { e.Bool(s.Options.TaxExempt) })
		if s.Options.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(s.Options.CouponCode) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range s.Lines {
					encodeLine(e, l)
				}
			})
		})
		e.Field("pending", func(e *jx.Encoder) {
			if s.Pending == nil {
				e.Null()
				return
			}
			encodeEffect(e, *s.Pending)
		})
	})
}
