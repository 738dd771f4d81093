package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/cart"
	cartdb "ms-fulfillment/internal/cart/db"
	"ms-fulfillment/internal/catalog"
	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/kafka"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/notification"
	"ms-fulfillment/internal/order"
	orderdb "ms-fulfillment/internal/order/db"
	"ms-fulfillment/internal/order/discount"
	rediswrap "ms-fulfillment/internal/order/redis"
	ticketdb "ms-fulfillment/internal/tickets/db"
	qr "ms-fulfillment/internal/tickets/qr_genrator"
	tickets "ms-fulfillment/internal/tickets/service"
	"ms-fulfillment/internal/tickets/storage"
)

// Services is the wired domain layer shared by the binaries.
type Services struct {
	Catalog  *catalog.DB
	Cart     *cart.CartService
	Orders   *order.OrderService
	Tickets  *tickets.TicketService
	Producer *kafka.Producer
}

// Close flushes pending notifications and the Kafka producer.
func (s *Services) Close() {
	if s.Orders != nil {
		s.Orders.Wait()
	}
	if s.Producer != nil {
		_ = s.Producer.Close()
	}
}

// NewTicketService wires issuance and verification. It needs no Redis or Kafka.
func NewTicketService(ctx context.Context, cfg *config.Config, bunDB *bun.DB, log *logger.Logger) (*tickets.TicketService, storage.ArtifactStore, error) {
	signer, err := qr.NewSigner(cfg.Artifacts.Secret)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(ctx, cfg.Artifacts)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact store: %w", err)
	}
	log.Info("ARTIFACT", fmt.Sprintf("Using %s artifact store", cfg.Artifacts.Store))
	return tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, signer, qr.NewQRGenerator(), store, log), store, nil
}

// Build wires every service against the given connections.
func Build(ctx context.Context, cfg *config.Config, bunDB *bun.DB, redisClient *redis.Client, log *logger.Logger) (*Services, error) {
	taxRate, err := cfg.Fulfillment.TaxRate()
	if err != nil {
		return nil, err
	}

	ticketSvc, store, err := NewTicketService(ctx, cfg, bunDB, log)
	if err != nil {
		return nil, err
	}

	lock := rediswrap.NewRedis(redisClient, cfg.Fulfillment.LockTTL, log)
	cat := &catalog.DB{Bun: bunDB}
	cartSvc := cart.NewCartService(&cartdb.DB{Bun: bunDB}, cat, lock, log)

	s := &Services{Catalog: cat, Cart: cartSvc, Tickets: ticketSvc}

	// a nil *Producer must not reach the notifier as a non-nil interface
	var publisher order.EventPublisher
	if cfg.Kafka.Enabled {
		s.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		publisher = s.Producer
		topics := []string{cfg.Kafka.Topics.OrderFulfilled, cfg.Kafka.Topics.PaymentConfirmed}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled; order events will not be published")
	}

	notifier := order.NewPostCommitNotifier(cat, notification.NewDispatcher(cfg.Email, log), store, publisher, cfg.Kafka.Topics.OrderFulfilled, log)

	orders := order.NewOrderService(
		&orderdb.DB{Bun: bunDB},
		cat,
		cartSvc,
		discount.NewDiscountService(&discount.Store{Bun: bunDB}, log),
		ticketSvc,
		lock,
		notifier,
		log,
	)
	orders.TaxRatePercent = taxRate
	orders.DefaultMethod = cfg.Fulfillment.DefaultMethod
	orders.IssueWorkers = cfg.Fulfillment.IssueWorkers
	s.Orders = orders

	return s, nil
}

// NewVerifier picks OIDC verification, or unverified tokens in dev mode.
func NewVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.TokenVerifier, error) {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, err
		}
		log.Info("AUTH", fmt.Sprintf("Verifying tokens against %s", cfg.OIDCIssuer))
		return v, nil
	}
	log.Warn("AUTH", "AUTH_DEV_MODE: accepting unverified bearer tokens")
	return auth.UnverifiedVerifier{}, nil
}
