package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/logger"
)

// Event types the provider delivers.
const (
	EventTypeTransfers = "transfers"
	EventTypePayments  = "payments"
	EventTypePayouts   = "payouts"
)

// Event is the provider's webhook payload after verification. Amount is
// absent on events that carry no value movement.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	Amount          *float64   `json:"amount,omitempty"`
	CreateDate      time.Time  `json:"createDate"`
	UpdateDate      time.Time  `json:"updateDate"`
}

// Handler consumes one verified event of a given type.
type Handler func(ctx context.Context, event Event) error

// Dispatcher routes verified events to per-type handlers. Event types
// without a registered handler are acknowledged and dropped so the
// provider does not redeliver them forever.
type Dispatcher struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger.Log,
	}
}

// On registers the handler for an event type, replacing any previous one.
func (d *Dispatcher) On(eventType string, handler Handler) {
	d.handlers[eventType] = handler
}

// Dispatch parses the raw verified body and invokes the matching handler.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) error {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to parse webhook event: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("webhook event missing type")
	}

	handler, ok := d.handlers[event.Type]
	if !ok {
		d.logger.Warn("dropping webhook event with no handler",
			zap.String("type", event.Type),
			zap.String("event_id", event.Data.ID))
		return nil
	}

	if err := handler(ctx, event); err != nil {
		return fmt.Errorf("failed to handle %s event: %w", event.Type, err)
	}
	return nil
}
