package main

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/coupon"
	"github.com/xenking/till/internal/domain/product"
)

type productJSON struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	RetailPrice    decimal.Decimal `json:"retailPrice"`
	WholesalePrice decimal.Decimal `json:"wholesalePrice"`
	CostPrice      decimal.Decimal `json:"costPrice"`
	CurrentStock   int             `json:"currentStock"`
	ReorderPoint   int             `json:"reorderPoint"`
}

type counterpartyJSON struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Name           string          `json:"name"`
	BusinessType   string          `json:"businessType"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	PendingBalance decimal.Decimal `json:"pendingBalance"`
	CreditLimit    decimal.Decimal `json:"creditLimit"`
	Rating         int             `json:"rating"`
	Reliability    string          `json:"reliability"`
}

type couponJSON struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	MinItems     int             `json:"minItems"`
	MaxUses      int             `json:"maxUses"`
	MaxDiscount  decimal.Decimal `json:"maxDiscount"`
	Description  string          `json:"description"`
}

type catalogueJSON struct {
	Products       []productJSON      `json:"products"`
	Counterparties []counterpartyJSON `json:"counterparties"`
	Coupons        []couponJSON       `json:"coupons"`
}

// catalogue is the seed data in domain form.
type catalogue struct {
	Products       []product.Product
	Counterparties []counterparty.Counterparty
	Coupons        []coupon.Rule
}

func parseCatalogue(data []byte) (*catalogue, error) {
	var raw catalogueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse catalogue JSON")
	}

	c := &catalogue{}
	for _, p := range raw.Products {
		if p.ID == "" {
			return nil, errors.New("product without id")
		}
		if p.RetailPrice.IsNegative() || p.WholesalePrice.IsNegative() || p.CostPrice.IsNegative() {
			return nil, errors.Errorf("product %s: negative price", p.ID)
		}
		c.Products = append(c.Products, product.Product{
			ID:             p.ID,
			SKU:            p.SKU,
			Name:           p.Name,
			Category:       p.Category,
			RetailPrice:    p.RetailPrice,
			WholesalePrice: p.WholesalePrice,
			CostPrice:      p.CostPrice,
			Inventory: product.Inventory{
				CurrentStock: p.CurrentStock,
				ReorderPoint: p.ReorderPoint,
			},
		})
	}

	for _, cp := range raw.Counterparties {
		kind := counterparty.Kind(cp.Kind)
		if kind != counterparty.KindCustomer && kind != counterparty.KindSupplier {
			return nil, errors.Errorf("counterparty %s: unknown kind %q", cp.ID, cp.Kind)
		}
		c.Counterparties = append(c.Counterparties, counterparty.Counterparty{
			ID:             cp.ID,
			Kind:           kind,
			Name:           cp.Name,
			BusinessType:   counterparty.ParseBusinessType(cp.BusinessType),
			CurrentBalance: cp.CurrentBalance,
			PendingBalance: cp.PendingBalance,
			CreditLimit:    cp.CreditLimit,
			Rating:         cp.Rating,
			Reliability:    cp.Reliability,
		})
	}

	for _, r := range raw.Coupons {
		typ := coupon.DiscountType(r.DiscountType)
		switch typ {
		case coupon.DiscountPercentage, coupon.DiscountFixed, coupon.DiscountFreeLowest:
		default:
			return nil, errors.Errorf("coupon %s: unknown discount type %q", r.Code, r.DiscountType)
		}
		c.Coupons = append(c.Coupons, coupon.Rule{
			Code:         coupon.NormalizeCode(r.Code),
			DiscountType: typ,
			Value:        r.Value,
			MinItems:     r.MinItems,
			MaxUses:      r.MaxUses,
			MaxDiscount:  r.MaxDiscount,
			Description:  r.Description,
		})
	}
	return c, nil
}
