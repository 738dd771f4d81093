package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	qr "ms-fulfillment/internal/tickets/qr_genrator"
	ticketdb "ms-fulfillment/internal/tickets/db"
)

type VerifyReason string

const (
	ReasonValid            VerifyReason = "VALID"
	ReasonMalformed        VerifyReason = "MALFORMED"
	ReasonTampered         VerifyReason = "TAMPERED"
	ReasonUnknownItem      VerifyReason = "UNKNOWN_ITEM"
	ReasonCancelled        VerifyReason = "CANCELLED"
	ReasonAlreadyCheckedIn VerifyReason = "ALREADY_CHECKED_IN"
)

var (
	ErrItemNotFound    = ticketdb.ErrItemNotFound
	ErrItemCancelled   = errors.New("order item is cancelled")
	ErrArtifactPending = errors.New("artifact has not been issued yet")
)

type VerifyResult struct {
	Valid  bool              `json:"valid"`
	Reason VerifyReason      `json:"reason"`
	Item   *models.OrderItem `json:"item,omitempty"`
}

type TicketDBLayer interface {
	GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error)
	ListItemsByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SaveArtifact(ctx context.Context, item *models.OrderItem) error
	RecordArtifactError(ctx context.Context, itemID int64, msg string) error
	ListPendingArtifacts(ctx context.Context, limit int) ([]models.OrderItem, error)
	MarkCheckedIn(ctx context.Context, itemID int64, at time.Time) (bool, error)
	CancelItem(ctx context.Context, itemID int64) error
}

type Renderer interface {
	Render(orderItemID int64, content []byte) ([]byte, error)
}

type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// TicketService issues and verifies the per-unit artifacts of an order.
type TicketService struct {
	DB     TicketDBLayer
	Signer *qr.Signer
	QR     Renderer
	Store  ArtifactStore
	Logger *logger.Logger
	Now    func() time.Time
}

func NewTicketService(db TicketDBLayer, signer *qr.Signer, renderer Renderer, store ArtifactStore, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:     db,
		Signer: signer,
		QR:     renderer,
		Store:  store,
		Logger: log,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue signs, renders and stores the artifact for item and persists the
// result on the row. On failure the error is recorded on the row as well.
func (s *TicketService) Issue(ctx context.Context, item *models.OrderItem) error {
	if err := s.issue(ctx, item); err != nil {
		// record even when ctx was cancelled mid-issue
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if recErr := s.DB.RecordArtifactError(recordCtx, item.ID, err.Error()); recErr != nil {
			s.Logger.Error("ARTIFACT", fmt.Sprintf("item %d: failed to record issue error: %v", item.ID, recErr))
		}
		item.ArtifactError = err.Error()
		s.Logger.Warn("ARTIFACT", fmt.Sprintf("item %d: issue failed: %v", item.ID, err))
		return err
	}
	return nil
}

func (s *TicketService) issue(ctx context.Context, item *models.OrderItem) error {
	payload := models.NewArtifactPayload(item)
	payload.Hash = s.Signer.Sign(payload)

	raw, err := qr.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	png, err := s.QR.Render(item.ID, raw)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("tickets/%d/%d/%d-%s.png", item.EventID, item.OrderID, item.ID, uuid.NewString())
	ref, err := s.Store.Put(ctx, key, png, "image/png")
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}

	issued := *item
	issued.ArtifactPayload = string(raw)
	issued.ArtifactSecureHash = payload.Hash
	issued.ArtifactImageRef = ref
	issued.ArtifactError = ""
	issued.IssuedAt = s.Now()
	if err := s.DB.SaveArtifact(ctx, &issued); err != nil {
		return err
	}
	*item = issued
	return nil
}

// Reissue renders a fresh image for an item. The hash is unchanged.
func (s *TicketService) Reissue(ctx context.Context, itemID int64) (*models.OrderItem, error) {
	item, err := s.DB.GetOrderItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status == models.OrderItemCancelled {
		return nil, ErrItemCancelled
	}
	if err := s.Issue(ctx, item); err != nil {
		return nil, err
	}
	s.Logger.LogArtifact("REISSUE", item.ID, fmt.Sprintf("order=%d stored as %s", item.OrderID, item.ArtifactImageRef))
	return item, nil
}

func (s *TicketService) ListPending(ctx context.Context, limit int) ([]models.OrderItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.DB.ListPendingArtifacts(ctx, limit)
}

func (s *TicketService) ListItemsByOrder(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return s.DB.ListItemsByOrder(ctx, orderID)
}

// Verify checks a scanned payload without changing anything. Only storage
// failures are returned as errors; every verdict is in the result.
func (s *TicketService) Verify(ctx context.Context, raw []byte) (VerifyResult, error) {
	payload, err := qr.DecodePayload(raw)
	if err != nil {
		return VerifyResult{Reason: ReasonMalformed}, nil
	}
	if !s.Signer.Verify(payload) {
		return VerifyResult{Reason: ReasonTampered}, nil
	}

	item, err := s.DB.GetOrderItem(ctx, payload.OrderItemID)
	if errors.Is(err, ticketdb.ErrItemNotFound) {
		return VerifyResult{Reason: ReasonUnknownItem}, nil
	}
	if err != nil {
		return VerifyResult{}, err
	}

	if !matchesStored(payload, item) {
		s.Logger.LogSecurity("ARTIFACT_MISMATCH", fmt.Sprintf("item %d: signed payload disagrees with stored row", item.ID))
		return VerifyResult{Reason: ReasonTampered}, nil
	}
	if item.Status == models.OrderItemCancelled {
		return VerifyResult{Reason: ReasonCancelled, Item: item}, nil
	}
	return VerifyResult{Valid: true, Reason: ReasonValid, Item: item}, nil
}

// CheckIn verifies the payload and admits the item once.
func (s *TicketService) CheckIn(ctx context.Context, raw []byte) (VerifyResult, error) {
	res, err := s.Verify(ctx, raw)
	if err != nil || !res.Valid {
		return res, err
	}

	at := s.Now()
	admitted, err := s.DB.MarkCheckedIn(ctx, res.Item.ID, at)
	if err != nil {
		return VerifyResult{}, err
	}
	if !admitted {
		current, err := s.DB.GetOrderItem(ctx, res.Item.ID)
		if err != nil {
			return VerifyResult{}, err
		}
		if current.Status == models.OrderItemCancelled {
			return VerifyResult{Reason: ReasonCancelled, Item: current}, nil
		}
		return VerifyResult{Reason: ReasonAlreadyCheckedIn, Item: current}, nil
	}

	res.Item.CheckedInAt = at
	s.Logger.LogArtifact("CHECKIN", res.Item.ID, fmt.Sprintf("order=%d admitted", res.Item.OrderID))
	return res, nil
}

func (s *TicketService) CancelItem(ctx context.Context, itemID int64) error {
	if err := s.DB.CancelItem(ctx, itemID); err != nil {
		return err
	}
	s.Logger.LogArtifact("CANCEL", itemID, "unit cancelled")
	return nil
}

// GetArtifactImage returns the stored PNG of an item owned by userID.
func (s *TicketService) GetArtifactImage(ctx context.Context, userID, itemID int64) ([]byte, error) {
	item, err := s.DB.GetOrderItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, ErrItemNotFound
	}
	if item.ArtifactImageRef == "" {
		return nil, ErrArtifactPending
	}
	return s.Store.Get(ctx, item.ArtifactImageRef)
}

func matchesStored(p models.ArtifactPayload, item *models.OrderItem) bool {
	if p.OrderID != item.OrderID || p.EventID != item.EventID || p.UserID != item.UserID || p.ItemKind != item.ItemKind {
		return false
	}
	if !sameID(p.ItemRefID, item.ItemRefID) || !sameID(p.SlotRefID, item.SlotRefID) {
		return false
	}
	return item.ArtifactSecureHash == "" || item.ArtifactSecureHash == p.Hash
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
