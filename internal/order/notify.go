package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/notification"
)

type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

type ArtifactReader interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// PostCommitNotifier emails the buyer their codes and announces the order on Kafka.
type PostCommitNotifier struct {
	Users      UserLookup
	Composer   notification.Composer
	Dispatcher notification.Dispatcher
	Artifacts  ArtifactReader
	Publisher  EventPublisher
	Topic      string
	Logger     *logger.Logger
}

func NewPostCommitNotifier(users UserLookup, dispatcher notification.Dispatcher, artifacts ArtifactReader, publisher EventPublisher, topic string, log *logger.Logger) *PostCommitNotifier {
	return &PostCommitNotifier{
		Users:      users,
		Dispatcher: dispatcher,
		Artifacts:  artifacts,
		Publisher:  publisher,
		Topic:      topic,
		Logger:     log,
	}
}

// OrderFulfilled attempts both the email and the event; one failing does not skip the other.
func (n *PostCommitNotifier) OrderFulfilled(ctx context.Context, o *models.Order, event *models.Event) error {
	var errs []error
	if err := n.sendEmail(ctx, o, event); err != nil {
		errs = append(errs, fmt.Errorf("email: %w", err))
	}
	if err := n.publish(ctx, o); err != nil {
		errs = append(errs, fmt.Errorf("publish: %w", err))
	}
	return errors.Join(errs...)
}

func (n *PostCommitNotifier) sendEmail(ctx context.Context, o *models.Order, event *models.Event) error {
	if n.Dispatcher == nil {
		return nil
	}
	user, err := n.Users.GetUser(ctx, o.UserID)
	if err != nil {
		return err
	}

	var attachments []notification.Attachment
	for _, item := range o.Items {
		if !item.HasArtifact() || n.Artifacts == nil {
			continue
		}
		png, err := n.Artifacts.Get(ctx, item.ArtifactImageRef)
		if err != nil {
			n.Logger.Warn("EMAIL", fmt.Sprintf("order %d: skipping artifact of item %d: %v", o.ID, item.ID, err))
			continue
		}
		attachments = append(attachments, notification.Attachment{
			Filename:    fmt.Sprintf("%s.png", models.ScannableCode(item.EventID, item.ID)),
			ContentType: "image/png",
			Data:        png,
		})
	}

	msg, err := n.Composer.Confirmation(user, event, o, attachments)
	if err != nil {
		return err
	}
	if err := n.Dispatcher.Send(ctx, msg); err != nil {
		return err
	}
	n.Logger.LogOrder("EMAILED", o.ID, fmt.Sprintf("confirmation sent with %d code(s)", len(attachments)))
	return nil
}

func (n *PostCommitNotifier) publish(ctx context.Context, o *models.Order) error {
	if n.Publisher == nil || n.Topic == "" {
		return nil
	}
	issued := 0
	for _, item := range o.Items {
		if item.HasArtifact() {
			issued++
		}
	}
	value, err := models.OrderFulfilledEvent{
		OrderID:          o.ID,
		OrderUID:         o.OrderUID,
		UserID:           o.UserID,
		EventID:          o.EventID,
		PaymentReference: o.PaymentReference,
		GrandTotal:       o.GrandTotal,
		Currency:         o.Currency,
		Units:            len(o.Items),
		IssuedArtifacts:  issued,
		FulfilledAt:      o.CreatedAt,
	}.Marshal()
	if err != nil {
		return err
	}
	return n.Publisher.Publish(ctx, n.Topic, []byte(strconv.FormatInt(o.ID, 10)), value)
}
