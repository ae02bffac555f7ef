package notify

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Event names used for buy request notifications.
const (
	EventBuyRequestCreated  = "buy_request.created"
	EventBuyRequestAccepted = "buy_request.accepted"
	EventBuyRequestDeclined = "buy_request.declined"
)

// Notifier dispatches buy request notifications. Callers treat it as
// fire-and-forget: errors are reported but never undo a state change.
type Notifier interface {
	NotifyBuyRequestCreated(ctx context.Context, sellerEmail, buyerName, carBrand, carModel string) error
	NotifyBuyRequestAccepted(ctx context.Context, buyerEmail, buyerName, carBrand, carModel string) error
	NotifyBuyRequestDeclined(ctx context.Context, buyerEmail, buyerName, carBrand, carModel string) error
}

// Message is the payload delivered to a notification sink.
type Message struct {
	Event      string    `json:"event"`
	Recipient  string    `json:"recipient"`
	BuyerName  string    `json:"buyerName"`
	CarBrand   string    `json:"carBrand"`
	CarModel   string    `json:"carModel"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Sink delivers a single message.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher adapts one or more sinks to the Notifier interface.
type Dispatcher struct {
	sinks []Sink
	now   func() time.Time
}

// NewDispatcher fans every notification out to all sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, now: time.Now}
}

func (d *Dispatcher) NotifyBuyRequestCreated(ctx context.Context, sellerEmail, buyerName, carBrand, carModel string) error {
	return d.dispatch(ctx, EventBuyRequestCreated, sellerEmail, buyerName, carBrand, carModel)
}

func (d *Dispatcher) NotifyBuyRequestAccepted(ctx context.Context, buyerEmail, buyerName, carBrand, carModel string) error {
	return d.dispatch(ctx, EventBuyRequestAccepted, buyerEmail, buyerName, carBrand, carModel)
}

func (d *Dispatcher) NotifyBuyRequestDeclined(ctx context.Context, buyerEmail, buyerName, carBrand, carModel string) error {
	return d.dispatch(ctx, EventBuyRequestDeclined, buyerEmail, buyerName, carBrand, carModel)
}

// dispatch tries every sink even if an earlier one fails.
func (d *Dispatcher) dispatch(ctx context.Context, event, recipient, buyerName, brand, model string) error {
	msg := Message{
		Event:      event,
		Recipient:  recipient,
		BuyerName:  buyerName,
		CarBrand:   brand,
		CarModel:   model,
		OccurredAt: d.now().UTC(),
	}
	var errs []error
	for _, s := range d.sinks {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger log.FieldLogger
}

func (s LogSink) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{
		"event":     msg.Event,
		"recipient": msg.Recipient,
		"buyer":     msg.BuyerName,
		"car":       msg.CarBrand + " " + msg.CarModel,
	}).Info("Notification dispatched")
	return nil
}
