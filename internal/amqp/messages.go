package amqp

import (
	"encoding/json"
	"time"

	"finsight/internal/core"
)

// Overlay event kinds.
const (
	KindNudgeDismissed    = "nudge_dismissed"
	KindManualTransaction = "manual_transaction"
)

// OverlayEvent is the envelope for session overlay changes published
// to the journal worker. Payload carries the kind-specific body.
type OverlayEvent struct {
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NudgeDismissedPayload is the body of a nudge_dismissed event.
type NudgeDismissedPayload struct {
	Category string `json:"category"`
}

// NewNudgeDismissedEvent builds the event for a dismissed nudge
// category.
func NewNudgeDismissedEvent(sessionID, category string) (*OverlayEvent, error) {
	payload, err := json.Marshal(NudgeDismissedPayload{Category: category})
	if err != nil {
		return nil, err
	}
	return &OverlayEvent{
		SessionID: sessionID,
		Kind:      KindNudgeDismissed,
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

// NewManualTransactionEvent builds the event for a manually added
// transaction.
func NewManualTransactionEvent(sessionID string, txn core.Transaction) (*OverlayEvent, error) {
	payload, err := json.Marshal(txn)
	if err != nil {
		return nil, err
	}
	return &OverlayEvent{
		SessionID: sessionID,
		Kind:      KindManualTransaction,
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

// ToJSON converts the event to JSON bytes.
func (e *OverlayEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// OverlayEventFromJSON parses an event from JSON bytes.
func OverlayEventFromJSON(data []byte) (*OverlayEvent, error) {
	var ev OverlayEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
