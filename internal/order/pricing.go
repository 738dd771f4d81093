package order

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ms-fulfillment/internal/catalog"
	"ms-fulfillment/internal/models"
)

var hundred = decimal.NewFromInt(100)

// priceCartLines turns cart lines into line items at catalog prices.
func (s *OrderService) priceCartLines(ctx context.Context, eventID int64, lines []models.CartLine) ([]models.LineItem, error) {
	items := make([]models.LineItem, 0, len(lines))
	for _, line := range lines {
		ref, err := line.Ref()
		if err != nil {
			return nil, validationError(CodeItemUnavailable, "cart line has an invalid item reference", err)
		}
		price, err := s.Catalog.UnitPrice(ctx, eventID, ref)
		if errors.Is(err, catalog.ErrItemNotFound) {
			return nil, validationError(CodeItemUnavailable, "an item in the cart is no longer sold", err)
		}
		if err != nil {
			return nil, fatalError("price cart", err)
		}
		items = append(items, models.LineItem{Ref: ref, Quantity: line.Quantity, UnitPrice: models.RoundMoney(price)})
	}
	return items, nil
}

// computeBreakdown totals lines, subtracts the discount and adds tax on the
// discounted amount. Every figure is rounded to minor units.
func computeBreakdown(lines []models.LineItem, discount decimal.Decimal, code string, taxRatePercent decimal.Decimal) models.Breakdown {
	sub := decimal.Zero
	for _, l := range lines {
		sub = sub.Add(l.Total())
	}
	sub = models.RoundMoney(sub)
	discount = models.RoundMoney(decimal.Min(discount, sub))
	tax := models.RoundMoney(sub.Sub(discount).Mul(taxRatePercent).Div(hundred))

	return models.Breakdown{
		SubTotal:       sub,
		TaxTotal:       tax,
		DiscountAmount: discount,
		DiscountCode:   code,
		GrandTotal:     sub.Sub(discount).Add(tax),
	}
}

func linesTotal(lines []models.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return models.RoundMoney(total)
}
