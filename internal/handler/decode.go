package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/pricing"
)

const maxBodySize = 1 << 20

// badRequestError marks malformed input. It maps to 400.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// decodeBody reads the request body and decodes a JSON object with fn.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest(errors.Wrap(err, "read body"))
	}
	if len(body) == 0 {
		return badRequest(errors.New("request body required"))
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return badRequest(errors.Wrap(err, "decode body"))
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch t := d.Next(); t {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("expected number, got %s", t)
	}
}

// itemInput is one requested cart line. UnitPrice overrides the catalogue tier.
type itemInput struct {
	ItemRef   string
	Quantity  int
	UnitPrice *decimal.Decimal
}

// field decodes one key of an item object.
func (in *itemInput) field(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "itemRef":
		in.ItemRef, err = d.Str()
	case "quantity":
		in.Quantity, err = d.Int()
	case "unitPrice":
		if d.Next() == jx.Null {
			return d.Null()
		}
		var p decimal.Decimal
		if p, err = decodeDecimal(d); err == nil {
			in.UnitPrice = &p
		}
	default:
		return d.Skip()
	}
	if err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}

func decodeItem(d *jx.Decoder) (itemInput, error) {
	var in itemInput
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return in.field(d, string(key))
	}); err != nil {
		return in, err
	}
	if in.ItemRef == "" {
		return in, errors.New("itemRef required")
	}
	return in, nil
}

func decodeDiscount(d *jx.Decoder) (pricing.DiscountSpec, error) {
	spec := pricing.NoDiscount()
	if d.Next() == jx.Null {
		return spec, d.Null()
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "type":
			var s string
			s, err = d.Str()
			spec.Type = pricing.DiscountType(s)
		case "value":
			spec.Value, err = decodeDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return spec, err
	}
	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

func decodePayment(d *jx.Decoder) (order.Payment, error) {
	var p order.Payment
	if d.Next() == jx.Null {
		return p, d.Null()
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "method":
			p.Method, err = d.Str()
		case "amount":
			p.Amount, err = decodeDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	return p, err
}

// pricingInput is the transaction-level pricing part of a request.
type pricingInput struct {
	Discount   pricing.DiscountSpec
	TaxExempt  bool
	CouponCode string
}

// field decodes the shared pricing keys. It reports false for other keys.
func (p *pricingInput) field(d *jx.Decoder, key string) (bool, error) {
	var err error
	switch key {
	case "discount":
		p.Discount, err = decodeDiscount(d)
	case "taxExempt":
		p.TaxExempt, err = d.Bool()
	case "couponCode":
		if d.Next() == jx.Null {
			return true, d.Null()
		}
		p.CouponCode, err = d.Str()
	default:
		return false, nil
	}
	if err != nil {
		return true, errors.Wrap(err, key)
	}
	return true, nil
}

// quoteRequest is the body of POST /api/quote.
type quoteRequest struct {
	Flow           pricing.Flow
	CounterpartyID string
	Items          []itemInput
	Pricing        pricingInput
}

func decodeQuoteRequest(w http.ResponseWriter, r *http.Request) (quoteRequest, error) {
	req := quoteRequest{Pricing: pricingInput{Discount: pricing.NoDiscount()}}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := req.Pricing.field(d, key); ok {
			return err
		}
		switch key {
		case "flow":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			req.Flow, err = pricing.ParseFlow(s)
			return err
		case "counterpartyId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			req.CounterpartyID = s
			return nil
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(req.Items))
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, err
	}
	if req.Flow == "" {
		return req, badRequest(errors.New("flow required"))
	}
	return req, nil
}
