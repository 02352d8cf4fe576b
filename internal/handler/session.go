package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/entry"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
)

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*entry.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func writeSession(w http.ResponseWriter, status int, s *entry.Session) {
	snap := s.Snapshot()
	writeJSON(w, status, func(e *jx.Encoder) { encodeSession(e, snap) })
}

// writeSessionWith renders {"session":...} plus extra fields.
func writeSessionWith(w http.ResponseWriter, status int, s *entry.Session, extra func(e *jx.Encoder)) {
	snap := s.Snapshot()
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			extra(e)
			e.Field("session", func(e *jx.Encoder) { encodeSession(e, snap) })
		})
	})
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var (
		flow     pricing.Flow
		editMode bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "flow":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			flow, err = pricing.ParseFlow(s)
			return err
		case "editMode":
			var err error
			if editMode, err = d.Bool(); err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err == nil && flow == "" {
		err = badRequest(errors.New("flow required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.sessions.Open(flow, editMode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+s.ID())
	writeSession(w, http.StatusCreated, s)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeSession(w, http.StatusOK, s)
	}
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) quoteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	q, err := s.Quote(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

func (h *Handler) setCounterparty(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var id string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "counterpartyId" {
			return d.Skip()
		}
		var err error
		if id, err = d.Str(); err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err == nil && id == "" {
		err = badRequest(errors.New("counterpartyId required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	cleared, err := s.SetCounterparty(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSessionWith(w, http.StatusOK, s, func(e *jx.Encoder) {
		e.Field("cartCleared", func(e *jx.Encoder) { e.Bool(cleared) })
	})
}

func (h *Handler) setPricing(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	in := pricingInput{Discount: pricing.NoDiscount()}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := in.field(d, key); ok {
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = s.SetPricing(entry.PricingOptions{
		Discount:   in.Discount,
		TaxExempt:  in.TaxExempt,
		CouponCode: in.CouponCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, s)
}

// addItem answers 409 with the pending effect when the add merges into an
// existing line or prices below cost; the client then confirms or declines.
func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in itemInput
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		return in.field(d, key)
	})
	if err == nil && in.ItemRef == "" {
		err = badRequest(errors.New("itemRef required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.AddItem(r.Context(), in.ItemRef, in.Quantity, in.UnitPrice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Pending {
		status = http.StatusConflict
	}
	writeSessionWith(w, status, s, func(e *jx.Encoder) {
		if res.Pending {
			e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusConflict) })
			e.Field("message", func(e *jx.Encoder) { e.Str("confirmation required") })
		}
		e.Field("effect", func(e *jx.Encoder) { encodeEffect(e, res.Effect) })
	})
}

func (h *Handler) confirmItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	effect, err := s.ConfirmPending()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSessionWith(w, http.StatusOK, s, func(e *jx.Encoder) {
		e.Field("effect", func(e *jx.Encoder) { encodeEffect(e, effect) })
	})
}

func (h *Handler) declineItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.DeclinePending(); err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, s)
}

// updateItem applies a quantity and/or unit price edit. A quantity below one
// removes the line.
func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var (
		qty   *int
		price *decimal.Decimal
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity":
			n, err := d.Int()
			if err != nil {
				return errors.Wrap(err, key)
			}
			qty = &n
			return nil
		case "unitPrice":
			p, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			price = &p
			return nil
		default:
			return d.Skip()
		}
	})
	if err == nil && qty == nil && price == nil {
		err = badRequest(errors.New("quantity or unitPrice required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	ref := r.PathValue("ref")
	var warnings []error
	if price != nil {
		warn, err := s.UpdateUnitPrice(ref, *price)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if warn != nil {
			warnings = append(warnings, warn)
		}
	}
	if qty != nil {
		if err := s.UpdateQuantity(ref, *qty); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeSessionWith(w, http.StatusOK, s, func(e *jx.Encoder) {
		e.Field("warnings", func(e *jx.Encoder) { encodeWarnings(e, warnings) })
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveItem(r.PathValue("ref")); err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, s)
}

func (h *Handler) clearItems(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Clear(); err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, s)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payment order.Payment
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "payment" {
			return d.Skip()
		}
		var err error
		if payment, err = decodePayment(d); err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.Submit(r.Context(), payment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
			e.Field("quote", func(e *jx.Encoder) { encodeQuote(e, &res.Quote) })
		})
	})
}
