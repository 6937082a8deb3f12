package amqp

import (
	"encoding/json"
	"time"

	"household/internal/core"
)

// TransactionSyncMessage announces a stored transaction that still has to be
// mirrored. It carries only identifiers; the worker reloads the row from the
// database.
type TransactionSyncMessage struct {
	TransactionID string    `json:"transactionId"`
	RuleID        string    `json:"ruleId,omitempty"`
	Date          string    `json:"date"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(t core.Transaction) *TransactionSyncMessage {
	msg := &TransactionSyncMessage{
		TransactionID: t.ID,
		Date:          t.Date.String(),
		Timestamp:     time.Now(),
	}
	if t.RecurringRuleID != nil {
		msg.RuleID = *t.RecurringRuleID
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionSyncMessageFromJSON creates a message from JSON bytes
func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
