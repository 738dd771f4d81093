package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	cartdb "ms-fulfillment/internal/cart/db"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

const (
	CodeConflictMulti      = "CART_CONFLICT_MULTI"
	CodeConflictOtherEvent = "CART_CONFLICT_OTHER_EVENT"
)

var (
	ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", models.MaxLineQuantity)
	ErrCartBusy        = errors.New("cart is being modified or checked out")
	ErrLineNotFound    = cartdb.ErrLineNotFound
)

// ConflictError is returned when a mutation would make the cart span more
// than one event.
type ConflictError struct {
	Code               string
	ConflictingEventID int64
	EventIDs           []int64
}

func (e *ConflictError) Error() string {
	if e.Code == CodeConflictMulti {
		return fmt.Sprintf("cart already spans multiple events %v", e.EventIDs)
	}
	return fmt.Sprintf("cart holds items for event %d", e.ConflictingEventID)
}

type CartDBLayer interface {
	DistinctEventIDs(ctx context.Context, userID int64) ([]int64, error)
	ListLines(ctx context.Context, userID, eventID int64) ([]models.CartLine, error)
	GetLine(ctx context.Context, userID, lineID int64) (*models.CartLine, error)
	FindLine(ctx context.Context, userID, eventID int64, ref models.ItemRef) (*models.CartLine, error)
	InsertLine(ctx context.Context, line *models.CartLine) error
	UpdateQuantity(ctx context.Context, lineID int64, quantity int) error
	DeleteLine(ctx context.Context, userID, lineID int64) error
	DeleteByEvent(ctx context.Context, userID, eventID int64) (int64, error)
	DeleteAll(ctx context.Context, userID int64) (int64, error)
}

// PriceLookup confirms an item is sold for an event.
type PriceLookup interface {
	UnitPrice(ctx context.Context, eventID int64, ref models.ItemRef) (decimal.Decimal, error)
}

// Locker serializes cart mutations per user.
type Locker interface {
	LockWait(ctx context.Context, key string, wait time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

type CartService struct {
	DB      CartDBLayer
	Catalog PriceLookup
	Lock    Locker
	Logger  *logger.Logger

	LockWait time.Duration
}

func NewCartService(db CartDBLayer, catalog PriceLookup, lock Locker, log *logger.Logger) *CartService {
	return &CartService{
		DB:       db,
		Catalog:  catalog,
		Lock:     lock,
		Logger:   log,
		LockWait: time.Second,
	}
}

// Guard checks that adding to eventID keeps the cart on a single event.
func (s *CartService) Guard(ctx context.Context, userID, eventID int64) error {
	ids, err := s.DB.DistinctEventIDs(ctx, userID)
	if err != nil {
		return err
	}
	switch {
	case len(ids) > 1:
		return &ConflictError{Code: CodeConflictMulti, EventIDs: ids}
	case len(ids) == 1 && ids[0] != eventID:
		return &ConflictError{Code: CodeConflictOtherEvent, ConflictingEventID: ids[0], EventIDs: ids}
	}
	return nil
}

// AddItem adds qty units of ref, merging into an existing line for the same item.
func (s *CartService) AddItem(ctx context.Context, userID, eventID int64, ref models.ItemRef, qty int) (*models.CartLine, error) {
	if qty < 1 || qty > models.MaxLineQuantity {
		return nil, ErrInvalidQuantity
	}
	if s.Catalog != nil {
		if _, err := s.Catalog.UnitPrice(ctx, eventID, ref); err != nil {
			return nil, err
		}
	}

	var line *models.CartLine
	err := s.withUserLock(ctx, userID, func() error {
		if err := s.Guard(ctx, userID, eventID); err != nil {
			return err
		}

		existing, err := s.DB.FindLine(ctx, userID, eventID, ref)
		switch {
		case err == nil:
			if existing.Quantity+qty > models.MaxLineQuantity {
				return ErrInvalidQuantity
			}
			existing.Quantity += qty
			if err := s.DB.UpdateQuantity(ctx, existing.ID, existing.Quantity); err != nil {
				return err
			}
			line = existing
			return nil
		case errors.Is(err, cartdb.ErrLineNotFound):
		default:
			return err
		}

		kind, refID, slotID := models.RefColumns(ref)
		line = &models.CartLine{
			UserID:    userID,
			EventID:   eventID,
			ItemKind:  kind,
			ItemRefID: refID,
			SlotRefID: slotID,
			Quantity:  qty,
		}
		return s.DB.InsertLine(ctx, line)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("CART", fmt.Sprintf("user %d: line %d for event %d now has %d unit(s)", userID, line.ID, eventID, line.Quantity))
	return line, nil
}

// ChangeQuantity applies delta to a line. A result below 1 removes the line
// and returns nil. Only increases are guarded.
func (s *CartService) ChangeQuantity(ctx context.Context, userID, lineID int64, delta int) (*models.CartLine, error) {
	var line *models.CartLine
	err := s.withUserLock(ctx, userID, func() error {
		current, err := s.DB.GetLine(ctx, userID, lineID)
		if err != nil {
			return err
		}
		if delta > 0 {
			if err := s.Guard(ctx, userID, current.EventID); err != nil {
				return err
			}
		}

		current.Quantity += delta
		if current.Quantity > models.MaxLineQuantity {
			return ErrInvalidQuantity
		}
		if current.Quantity < 1 {
			return s.DB.DeleteLine(ctx, userID, lineID)
		}
		if err := s.DB.UpdateQuantity(ctx, lineID, current.Quantity); err != nil {
			return err
		}
		line = current
		return nil
	})
	return line, err
}

func (s *CartService) RemoveLine(ctx context.Context, userID, lineID int64) error {
	return s.withUserLock(ctx, userID, func() error {
		return s.DB.DeleteLine(ctx, userID, lineID)
	})
}

func (s *CartService) ListLines(ctx context.Context, userID, eventID int64) ([]models.CartLine, error) {
	return s.DB.ListLines(ctx, userID, eventID)
}

// ClearEvent empties the user's cart for one event. It does not take the cart
// lock; fulfillment calls it while already holding it.
func (s *CartService) ClearEvent(ctx context.Context, userID, eventID int64) error {
	n, err := s.DB.DeleteByEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}
	s.Logger.Debug("CART", fmt.Sprintf("user %d: cleared %d line(s) for event %d", userID, n, eventID))
	return nil
}

// ClearAll empties the whole cart so the user can continue with another event.
func (s *CartService) ClearAll(ctx context.Context, userID int64) error {
	var n int64
	err := s.withUserLock(ctx, userID, func() error {
		var err error
		n, err = s.DB.DeleteAll(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}
	s.Logger.Info("CART", fmt.Sprintf("user %d: cleared whole cart (%d line(s))", userID, n))
	return nil
}

func (s *CartService) withUserLock(ctx context.Context, userID int64, fn func() error) error {
	if s.Lock == nil {
		return fn()
	}

	key := models.CartLockKey(userID)
	token, ok, err := s.Lock.LockWait(ctx, key, s.LockWait)
	if err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	if !ok {
		return ErrCartBusy
	}
	defer func() {
		if err := s.Lock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.Logger.Warn("CART", fmt.Sprintf("failed to release %s: %v", key, err))
		}
	}()

	return fn()
}
