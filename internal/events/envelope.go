package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/samber/lo"
)

const (
	TopicStockEvents = "stock.events"

	EnvelopeVersion = 1

	ReasonOutOfStock = "OUT_OF_STOCK"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type StockReservedPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
}

type StockRejectedDetail struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

type StockRejectedPayload struct {
	OrderID string                `json:"order_id"`
	Reason  string                `json:"reason"`
	Details []StockRejectedDetail `json:"details,omitempty"`
}

type StockRestoredPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
}

// NewEnvelope wraps a ledger event into the versioned wire format.
func NewEnvelope(producer string, event domain.StockEvent) (Envelope, error) {
	orderID := event.OrderID.String()

	var payload any
	switch event.Type {
	case domain.StockEventReserved:
		payload = StockReservedPayload{OrderID: orderID, Items: toItemQty(event.Items)}
	case domain.StockEventRestored:
		payload = StockRestoredPayload{OrderID: orderID, Items: toItemQty(event.Items)}
	case domain.StockEventRejected:
		payload = StockRejectedPayload{
			OrderID: orderID,
			Reason:  ReasonOutOfStock,
			Details: lo.Map(event.Shortages, func(s domain.Shortage, _ int) StockRejectedDetail {
				return StockRejectedDetail{ProductID: s.ProductID.String(), Required: s.Requested, Available: s.Available}
			}),
		}
	default:
		return Envelope{}, fmt.Errorf("unknown event type: %s", event.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("json.Marshal: %w", err)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(event.Type),
		EventVersion:  EnvelopeVersion,
		OccurredAt:    occurredAt,
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID uuid.UUID) []byte { return []byte(orderID.String()) }

func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

func toItemQty(items []domain.StockItem) []ItemQty {
	return lo.Map(items, func(item domain.StockItem, _ int) ItemQty {
		return ItemQty{ProductID: item.ProductID.String(), Qty: item.Quantity}
	})
}
