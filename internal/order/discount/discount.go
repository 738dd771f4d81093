package discount

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

// Lookup finds a discount by its customer-facing code.
type Lookup interface {
	GetByCode(ctx context.Context, code string) (*models.Discount, error)
}

// DiscountService handles validation and calculation of discounts
type DiscountService struct {
	Store  Lookup
	logger *logger.Logger
}

func NewDiscountService(store Lookup, log *logger.Logger) *DiscountService {
	return &DiscountService{Store: store, logger: log}
}

// ApplyDiscountResult represents the result of applying a discount
type ApplyDiscountResult struct {
	IsValid        bool            // Whether the discount is valid and applicable
	DiscountAmount decimal.Decimal // Amount of the discount to be applied
	Reason         string          // Reason why discount was not applied (if invalid)
	Code           string
}

// Apply looks up code and evaluates it against the priced lines of eventID.
func (s *DiscountService) Apply(ctx context.Context, code string, eventID int64, lines []models.LineItem, now time.Time) (*ApplyDiscountResult, error) {
	d, err := s.Store.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("DISCOUNT", fmt.Sprintf("Discount not found: %s", code))
		return &ApplyDiscountResult{Code: code, Reason: "Discount code not found"}, nil
	}
	if err != nil {
		return nil, err
	}
	res, err := s.ValidateAndCalculateDiscount(d, lines, eventID, now)
	if err != nil {
		return nil, err
	}
	if !res.IsValid {
		s.logger.Info("DISCOUNT", fmt.Sprintf("Discount %s rejected: %s", code, res.Reason))
	}
	return res, nil
}

// ValidateAndCalculateDiscount validates and calculates the discount for an order
func (s *DiscountService) ValidateAndCalculateDiscount(
	discount *models.Discount,
	lines []models.LineItem,
	eventID int64,
	now time.Time,
) (*ApplyDiscountResult, error) {
	result := &ApplyDiscountResult{DiscountAmount: decimal.Zero}
	if discount == nil {
		return result, nil
	}
	result.Code = discount.Code

	// Universal pre-conditions
	if !discount.Active {
		result.Reason = "Discount is not active"
		return result, nil
	}
	if now.Before(discount.ActiveFrom) {
		result.Reason = "Discount is not yet active"
		return result, nil
	}
	if !now.Before(discount.ExpiresAt) {
		result.Reason = "Discount has expired"
		return result, nil
	}
	if discount.MaxUsage > 0 && discount.CurrentUsage >= discount.MaxUsage {
		result.Reason = "Discount usage limit has been reached"
		return result, nil
	}
	if discount.EventID != nil && *discount.EventID != eventID {
		result.Reason = "Discount is not applicable to this event"
		return result, nil
	}

	// One price per purchased unit
	var units []decimal.Decimal
	cartSubtotal := decimal.Zero
	for _, line := range lines {
		for i := 0; i < line.Quantity; i++ {
			units = append(units, line.UnitPrice)
		}
		cartSubtotal = cartSubtotal.Add(line.Total())
	}

	if discount.Type == models.PERCENTAGE || discount.Type == models.FLAT_OFF {
		if discount.MinSpend != nil && cartSubtotal.LessThan(*discount.MinSpend) {
			result.Reason = fmt.Sprintf("Cart subtotal does not meet minimum spend requirement of %s", discount.MinSpend.StringFixed(2))
			return result, nil
		}
	}

	var amount decimal.Decimal
	switch discount.Type {
	case models.FLAT_OFF:
		if discount.Amount == nil {
			return nil, errors.New("amount parameter is required for FLAT_OFF discount type")
		}
		amount = *discount.Amount

	case models.PERCENTAGE:
		if discount.Percentage == nil {
			return nil, errors.New("percentage parameter is required for PERCENTAGE discount type")
		}
		amount = cartSubtotal.Mul(*discount.Percentage).Div(decimal.NewFromInt(100))
		if discount.MaxDiscount != nil && amount.GreaterThan(*discount.MaxDiscount) {
			amount = *discount.MaxDiscount
		}

	case models.BUY_N_GET_N_FREE:
		if discount.BuyQuantity == nil || discount.GetQuantity == nil || *discount.BuyQuantity <= 0 {
			return nil, errors.New("buyQuantity and getQuantity parameters are required for BUY_N_GET_N_FREE discount type")
		}
		buyQty, getQty := *discount.BuyQuantity, *discount.GetQuantity
		if len(units) < buyQty {
			result.Reason = fmt.Sprintf("Not enough items for BOGO discount (need %d, have %d)", buyQty, len(units))
			return result, nil
		}

		// cheapest units go free
		sort.Slice(units, func(i, j int) bool { return units[i].LessThan(units[j]) })
		free := (len(units) / buyQty) * getQty
		if free > len(units) {
			free = len(units)
		}
		amount = decimal.Zero
		for i := 0; i < free; i++ {
			amount = amount.Add(units[i])
		}

	default:
		return nil, fmt.Errorf("unsupported discount type: %s", discount.Type)
	}

	// never more than the cart
	if amount.GreaterThan(cartSubtotal) {
		amount = cartSubtotal
	}

	result.IsValid = true
	result.DiscountAmount = models.RoundMoney(amount)
	return result, nil
}
