package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"ms-fulfillment/internal/cart"
	"ms-fulfillment/internal/catalog"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order/discount"
	orderdb "ms-fulfillment/internal/order/db"
	"ms-fulfillment/internal/utils"
)

var ErrOrderNotFound = orderdb.ErrNotFound

type OrderDBLayer interface {
	CreateOrderWithItems(ctx context.Context, order *models.Order, lines []models.LineItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByPaymentReference(ctx context.Context, ref string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
}

type Catalog interface {
	GetEvent(ctx context.Context, eventID int64) (*models.Event, error)
	UnitPrice(ctx context.Context, eventID int64, ref models.ItemRef) (decimal.Decimal, error)
}

// Cart is the subset of the cart service used while the user's cart lock is
// held. None of these methods take the lock themselves.
type Cart interface {
	Guard(ctx context.Context, userID, eventID int64) error
	ListLines(ctx context.Context, userID, eventID int64) ([]models.CartLine, error)
	ClearEvent(ctx context.Context, userID, eventID int64) error
}

type DiscountApplier interface {
	Apply(ctx context.Context, code string, eventID int64, lines []models.LineItem, now time.Time) (*discount.ApplyDiscountResult, error)
}

// ArtifactIssuer signs, renders and stores the artifact of one order item,
// updating the item in place.
type ArtifactIssuer interface {
	Issue(ctx context.Context, item *models.OrderItem) error
}

type Locker interface {
	LockWait(ctx context.Context, key string, wait time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Notifier runs after an order commits. Errors are logged, never returned to the buyer.
type Notifier interface {
	OrderFulfilled(ctx context.Context, order *models.Order, event *models.Event) error
}

type FulfillRequest struct {
	UserID           int64
	EventID          int64
	PaymentReference string
	PaymentMethod    string
	Breakdown        models.Breakdown
	Lines            []models.LineItem
}

type IssueFailure struct {
	OrderItemID int64  `json:"order_item_id"`
	Error       string `json:"error"`
}

type FulfillResult struct {
	Order         *models.Order  `json:"order"`
	Replayed      bool           `json:"replayed"`
	IssueFailures []IssueFailure `json:"issue_failures,omitempty"`
}

type CheckoutRequest struct {
	UserID           int64
	EventID          int64
	PaymentMethod    string
	DiscountCode     string
	PaymentReference string
}

type OrderService struct {
	DB        OrderDBLayer
	Catalog   Catalog
	Cart      Cart
	Discounts DiscountApplier
	Issuer    ArtifactIssuer
	Lock      Locker
	Notifier  Notifier
	Logger    *logger.Logger

	TaxRatePercent decimal.Decimal
	DefaultMethod  string
	IssueWorkers   int
	LockWait       time.Duration
	IssueTimeout   time.Duration
	NotifyTimeout  time.Duration
	Now            func() time.Time

	notifications sync.WaitGroup
}

func NewOrderService(db OrderDBLayer, catalog Catalog, cart Cart, discounts DiscountApplier, issuer ArtifactIssuer, lock Locker, notifier Notifier, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:            db,
		Catalog:       catalog,
		Cart:          cart,
		Discounts:     discounts,
		Issuer:        issuer,
		Lock:          lock,
		Notifier:      notifier,
		Logger:        log,
		DefaultMethod: "Online",
		IssueWorkers:  4,
		LockWait:      2 * time.Second,
		IssueTimeout:  30 * time.Second,
		NotifyTimeout: 30 * time.Second,
		Now:           time.Now,
	}
}

// Fulfill turns pre-priced lines into a committed order with one item per unit.
func (s *OrderService) Fulfill(ctx context.Context, req FulfillRequest) (*FulfillResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	var res *FulfillResult
	err = s.withCartLock(ctx, req.UserID, func() error {
		var ferr error
		res, ferr = s.fulfillLocked(ctx, req, event)
		return ferr
	})
	return res, err
}

// CreateOrderFromCart prices the user's cart for eventID at catalog prices and fulfills it.
func (s *OrderService) CreateOrderFromCart(ctx context.Context, req CheckoutRequest) (*FulfillResult, error) {
	var res *FulfillResult
	err := s.withCartLock(ctx, req.UserID, func() error {
		cartLines, err := s.Cart.ListLines(ctx, req.UserID, req.EventID)
		if err != nil {
			return fatalError("load cart", err)
		}
		if len(cartLines) == 0 {
			return validationError(CodeEmptyCart, "cart has no items for this event", nil)
		}

		var conflict *cart.ConflictError
		if err := s.Cart.Guard(ctx, req.UserID, req.EventID); err != nil {
			if errors.As(err, &conflict) {
				return conflictError(conflict.Code, conflict.Error(), err)
			}
			return fatalError("check cart", err)
		}

		event, err := s.loadEvent(ctx, req.EventID)
		if err != nil {
			return err
		}

		lines, err := s.priceCartLines(ctx, req.EventID, cartLines)
		if err != nil {
			return err
		}

		discountAmount, code := decimal.Zero, ""
		if req.DiscountCode != "" {
			result, err := s.Discounts.Apply(ctx, req.DiscountCode, req.EventID, lines, s.Now())
			if err != nil {
				return fatalError("apply discount", err)
			}
			if !result.IsValid {
				return validationError(CodeInvalidDiscount, result.Reason, nil)
			}
			discountAmount, code = result.DiscountAmount, result.Code
		}

		method := req.PaymentMethod
		if method == "" {
			method = s.DefaultMethod
		}
		fr := FulfillRequest{
			UserID:           req.UserID,
			EventID:          req.EventID,
			PaymentReference: req.PaymentReference,
			PaymentMethod:    method,
			Breakdown:        computeBreakdown(lines, discountAmount, code, s.TaxRatePercent),
			Lines:            lines,
		}
		if err := validateRequest(fr); err != nil {
			return err
		}

		res, err = s.fulfillLocked(ctx, fr, event)
		return err
	})
	return res, err
}

// CreateOrderFromSnapshot fulfills a confirmed payment. Prices and totals are
// taken from the snapshot as-is.
func (s *OrderService) CreateOrderFromSnapshot(ctx context.Context, snap models.PaymentConfirmedEvent) (*FulfillResult, error) {
	if snap.PaymentReference == "" {
		return nil, validationError(CodeInvalidSnapshot, "payment reference is required", nil)
	}
	if len(snap.Items) == 0 {
		return nil, validationError(CodeEmptyCart, "snapshot has no items", nil)
	}

	lines := make([]models.LineItem, 0, len(snap.Items))
	for i, item := range snap.Items {
		if item.Quantity < 1 {
			return nil, validationError(CodeEmptyCart, fmt.Sprintf("item %d has quantity %d", i, item.Quantity), nil)
		}
		if item.Quantity > models.MaxLineQuantity {
			return nil, validationError(CodeInvalidSnapshot,
				fmt.Sprintf("item %d has quantity %d, at most %d allowed", i, item.Quantity, models.MaxLineQuantity), nil)
		}
		line, err := item.LineItem()
		if err != nil {
			return nil, validationError(CodeInvalidSnapshot, fmt.Sprintf("item %d is invalid", i), err)
		}
		lines = append(lines, line)
	}
	if !linesTotal(lines).Equal(snap.Breakdown.SubTotal) {
		return nil, validationError(CodeInvalidSnapshot,
			fmt.Sprintf("sub_total %s does not match items total %s", snap.Breakdown.SubTotal.StringFixed(2), linesTotal(lines).StringFixed(2)), nil)
	}

	method := snap.PaymentMethod
	if method == "" {
		method = s.DefaultMethod
	}
	return s.Fulfill(ctx, FulfillRequest{
		UserID:           snap.UserID,
		EventID:          snap.EventID,
		PaymentReference: snap.PaymentReference,
		PaymentMethod:    method,
		Breakdown:        snap.Breakdown,
		Lines:            lines,
	})
}

// GetOrder returns an order with its items. Orders of other users are reported as missing.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	o, err := s.DB.GetOrderByID(ctx, orderID)
	if errors.Is(err, orderdb.ErrNotFound) || (err == nil && o.UserID != userID) {
		return nil, validationError(CodeOrderNotFound, fmt.Sprintf("order %d not found", orderID), ErrOrderNotFound)
	}
	if err != nil {
		return nil, fatalError("load order", err)
	}
	return o, nil
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, err := s.DB.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fatalError("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) GetOrderItems(ctx context.Context, userID, orderID int64) ([]*models.OrderItem, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return o.Items, nil
}

// Wait blocks until in-flight post-commit notifications finish.
func (s *OrderService) Wait() {
	s.notifications.Wait()
}

func validateRequest(req FulfillRequest) error {
	if len(req.Lines) == 0 {
		return validationError(CodeEmptyCart, "no items to fulfill", nil)
	}
	for _, l := range req.Lines {
		if l.Quantity < 1 {
			return validationError(CodeEmptyCart, fmt.Sprintf("%s has quantity %d", l.Ref.Kind(), l.Quantity), nil)
		}
		if l.Quantity > models.MaxLineQuantity {
			return validationError(CodeInvalidSnapshot, fmt.Sprintf("%s has quantity %d", l.Ref.Kind(), l.Quantity), nil)
		}
	}
	if !req.Breakdown.Consistent() {
		return validationError(CodeInvalidSnapshot, "breakdown is negative or does not add up", nil)
	}
	return nil
}

// sameBuyer refuses to replay an order that a different user or event already
// claimed with the same payment reference.
func sameBuyer(existing *models.Order, req FulfillRequest) error {
	if existing.UserID == req.UserID && existing.EventID == req.EventID {
		return nil
	}
	return conflictError(CodePaymentReferenceInUse,
		fmt.Sprintf("payment reference %s belongs to another order", req.PaymentReference), nil)
}

func (s *OrderService) loadEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	event, err := s.Catalog.GetEvent(ctx, eventID)
	if errors.Is(err, catalog.ErrEventNotFound) {
		return nil, validationError(CodeEventNotFound, fmt.Sprintf("event %d not found", eventID), err)
	}
	if err != nil {
		return nil, fatalError("load event", err)
	}
	return event, nil
}

func (s *OrderService) withCartLock(ctx context.Context, userID int64, fn func() error) error {
	if s.Lock == nil {
		return fn()
	}

	key := models.CartLockKey(userID)
	token, ok, err := s.Lock.LockWait(ctx, key, s.LockWait)
	if err != nil {
		return fatalError("acquire cart lock", err)
	}
	if !ok {
		return conflictError(CodeFulfillmentInProgress, "another checkout for this user is in progress", nil)
	}
	defer func() {
		if err := s.Lock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("failed to release %s: %v", key, err))
		}
	}()

	return fn()
}

func (s *OrderService) fulfillLocked(ctx context.Context, req FulfillRequest, event *models.Event) (*FulfillResult, error) {
	if req.PaymentReference != "" {
		existing, err := s.DB.GetOrderByPaymentReference(ctx, req.PaymentReference)
		switch {
		case err == nil:
			if err := sameBuyer(existing, req); err != nil {
				return nil, err
			}
			return s.replay(ctx, existing), nil
		case !errors.Is(err, orderdb.ErrNotFound):
			return nil, fatalError("check payment reference", err)
		}
	}

	b := req.Breakdown
	o := &models.Order{
		OrderUID:         utils.GenerateOrderUID(),
		UserID:           req.UserID,
		EventID:          req.EventID,
		PaymentReference: req.PaymentReference,
		PaymentMethod:    req.PaymentMethod,
		Status:           models.OrderStatusFulfilled,
		SubTotal:         models.RoundMoney(b.SubTotal),
		TaxTotal:         models.RoundMoney(b.TaxTotal),
		DiscountAmount:   models.RoundMoney(b.DiscountAmount),
		DiscountCode:     b.DiscountCode,
		GrandTotal:       models.RoundMoney(b.GrandTotal),
		Currency:         event.Currency,
		CreatedAt:        s.Now().UTC(),
	}

	err := s.DB.CreateOrderWithItems(ctx, o, req.Lines)
	if errors.Is(err, orderdb.ErrDuplicatePayment) {
		winner, gerr := s.DB.GetOrderByPaymentReference(ctx, req.PaymentReference)
		if gerr != nil {
			return nil, fatalError("load concurrent order", gerr)
		}
		if err := sameBuyer(winner, req); err != nil {
			return nil, err
		}
		s.Logger.LogOrder("REPLAYED", winner.ID, fmt.Sprintf("lost race for payment %s", req.PaymentReference))
		return s.replay(ctx, winner), nil
	}
	if errors.Is(err, orderdb.ErrDiscountExhausted) {
		return nil, validationError(CodeInvalidDiscount, "Discount usage limit has been reached", err)
	}
	if err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("user %d event %d: fulfillment rolled back: %v", req.UserID, req.EventID, err))
		return nil, fatalError("persist order", err)
	}
	s.Logger.LogOrder("CREATED", o.ID, fmt.Sprintf("%d unit(s), grand total %s %s", len(o.Items), o.GrandTotal.StringFixed(2), o.Currency))

	failures := s.issueArtifacts(ctx, o.Items)

	if err := s.Cart.ClearEvent(ctx, req.UserID, req.EventID); err != nil {
		s.Logger.Warn("ORDER", fmt.Sprintf("order %d: failed to clear cart: %v", o.ID, err))
	}

	s.notify(o, event)

	return &FulfillResult{Order: o, IssueFailures: failures}, nil
}

// replay returns an already committed order. Items whose artifacts never made
// it are retried and the cart is cleared again; no second notification is sent.
func (s *OrderService) replay(ctx context.Context, o *models.Order) *FulfillResult {
	failures := s.issueArtifacts(ctx, o.Items)
	if err := s.Cart.ClearEvent(ctx, o.UserID, o.EventID); err != nil {
		s.Logger.Warn("ORDER", fmt.Sprintf("order %d: failed to clear cart: %v", o.ID, err))
	}
	return &FulfillResult{Order: o, Replayed: true, IssueFailures: failures}
}

// issueArtifacts issues every active item still missing an artifact on a
// bounded pool. Failures are collected, never returned as an error.
func (s *OrderService) issueArtifacts(ctx context.Context, items []*models.OrderItem) []IssueFailure {
	if s.Issuer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.IssueTimeout)
	defer cancel()

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []IssueFailure
	)
	g.SetLimit(max(s.IssueWorkers, 1))

	for _, item := range items {
		if item.HasArtifact() || item.Status != models.OrderItemActive {
			continue
		}
		g.Go(func() error {
			if err := s.Issuer.Issue(ctx, item); err != nil {
				mu.Lock()
				failures = append(failures, IssueFailure{OrderItemID: item.ID, Error: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].OrderItemID < failures[j].OrderItemID })
	if len(failures) > 0 {
		s.Logger.Warn("ORDER", fmt.Sprintf("%d artifact(s) pending after issuance", len(failures)))
	}
	return failures
}

func (s *OrderService) notify(o *models.Order, event *models.Event) {
	if s.Notifier == nil {
		return
	}
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.NotifyTimeout)
		defer cancel()
		if err := s.Notifier.OrderFulfilled(ctx, o, event); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("order %d: notification failed: %v", o.ID, err))
		}
	}()
}
