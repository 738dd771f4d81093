package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/utils"
)

// HandlePaymentConfirmed fulfils one payment-confirmed message. Messages that
// can never succeed are logged and acknowledged with a nil error. A busy cart
// lock and infrastructure failures are returned so the caller redelivers.
func (s *OrderService) HandlePaymentConfirmed(ctx context.Context, value []byte) error {
	var snap models.PaymentConfirmedEvent
	if err := json.Unmarshal(value, &snap); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("dropping undecodable payment event: %v", err))
		return nil
	}
	if err := utils.Validate(snap); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("dropping payment event %q: %v", snap.PaymentReference, err))
		return nil
	}

	res, err := s.CreateOrderFromSnapshot(ctx, snap)
	if err != nil {
		var fe *FulfillmentError
		if errors.As(err, &fe) && (fe.Category == CategoryValidation || fe.Code == CodePaymentReferenceInUse) {
			s.Logger.Error("KAFKA", fmt.Sprintf("dropping payment event %q: %s: %s", snap.PaymentReference, fe.Code, fe.Message))
			return nil
		}
		return err
	}

	if res.Replayed {
		s.Logger.LogOrder("REPLAYED", res.Order.ID, fmt.Sprintf("payment %s delivered again", snap.PaymentReference))
	}
	return nil
}
