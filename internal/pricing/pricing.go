package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRate     = errors.New("invalid provider rate")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrInvalidMarkup   = errors.New("markup must not be negative")
)

var (
	perThousand = decimal.NewFromInt(1000)
	hundred     = decimal.NewFromInt(100)
)

// Quote is the price breakdown of one order. ProviderCost keeps full
// precision; FinalPrice and Profit are rounded to cents.
type Quote struct {
	ProviderCost decimal.Decimal
	FinalPrice   decimal.Decimal
	Profit       decimal.Decimal
}

type Calculator struct {
	MarkupPercent decimal.Decimal
}

func NewCalculator(markupPercent float64) Calculator {
	return Calculator{MarkupPercent: decimal.NewFromFloat(markupPercent)}
}

// Quote prices quantity units of a service sold at ratePer1000. A zero
// quantity means a fixed-price package, priced at the rate itself.
func (c Calculator) Quote(ratePer1000 decimal.Decimal, quantity int64) (Quote, error) {
	return Price(ratePer1000, quantity, c.MarkupPercent)
}

func Price(ratePer1000 decimal.Decimal, quantity int64, markupPercent decimal.Decimal) (Quote, error) {
	if !ratePer1000.IsPositive() {
		return Quote{}, ErrInvalidRate
	}
	if quantity < 0 {
		return Quote{}, ErrInvalidQuantity
	}
	if markupPercent.IsNegative() {
		return Quote{}, ErrInvalidMarkup
	}

	cost := ratePer1000
	if quantity > 0 {
		cost = ratePer1000.Mul(decimal.NewFromInt(quantity)).Div(perThousand)
	}
	raw := cost.Mul(decimal.NewFromInt(1).Add(markupPercent.Div(hundred)))
	final := raw.RoundCeil(2)

	return Quote{
		ProviderCost: cost,
		FinalPrice:   final,
		Profit:       final.Sub(cost).Round(2),
	}, nil
}

// PricePer1000 is the marked-up price shown for a catalog entry.
func (c Calculator) PricePer1000(ratePer1000 decimal.Decimal) (decimal.Decimal, error) {
	q, err := c.Quote(ratePer1000, 1000)
	if err != nil {
		return decimal.Zero, err
	}
	return q.FinalPrice, nil
}
