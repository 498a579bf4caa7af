package amqp

import (
	"encoding/json"
	"time"

	"ledger/internal/core"
)

// LedgerEventMessage announces one applied ledger mutation. Amount is the
// change in balance the mutation caused; Budget and Remaining describe the
// user's budget afterwards.
type LedgerEventMessage struct {
	Kind      core.EventKind `json:"kind"`
	Username  string         `json:"username"`
	Index     int            `json:"index"`
	RecordID  string         `json:"record_id,omitempty"`
	Category  string         `json:"category,omitempty"`
	Amount    core.Money     `json:"amount"`
	Budget    core.Money     `json:"budget"`
	Remaining core.Money     `json:"remaining"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewLedgerEventMessage builds the wire form of ev.
func NewLedgerEventMessage(ev core.LedgerEvent) *LedgerEventMessage {
	msg := &LedgerEventMessage{
		Kind:      ev.Kind,
		Username:  ev.Username,
		Index:     ev.Index,
		RecordID:  ev.RecordID(),
		Amount:    ev.Delta(),
		Budget:    ev.Budget,
		Remaining: ev.Remaining,
		Timestamp: ev.At,
	}
	switch {
	case ev.After != nil:
		msg.Category = ev.After.Category
	case ev.Before != nil:
		msg.Category = ev.Before.Category
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

// OverBudget reports whether the user has a budget and has exceeded it.
func (m *LedgerEventMessage) OverBudget() bool {
	return core.Budget{Limit: m.Budget, Remaining: m.Remaining}.Exceeded()
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON creates a message from JSON bytes
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
