package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operations carried by TransactionChangedMessage.
const (
	OperationCreate    = "create"
	OperationUpdate    = "update"
	OperationDelete    = "delete"
	OperationRecompute = "recompute"
)

// TransactionChangedMessage announces a committed ledger mutation. It carries
// only identifiers; consumers read the current ledger state from the store.
type TransactionChangedMessage struct {
	UserID        int64     `json:"user_id"`
	TransactionID int64     `json:"transaction_id"`
	Operation     string    `json:"operation"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionChangedMessage(userID, transactionID int64, operation string) *TransactionChangedMessage {
	return &TransactionChangedMessage{
		UserID:        userID,
		TransactionID: transactionID,
		Operation:     operation,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionChangedMessageFromJSON decodes and validates a message.
func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID <= 0 {
		return nil, fmt.Errorf("message without user_id")
	}
	switch msg.Operation {
	case OperationCreate, OperationUpdate, OperationDelete, OperationRecompute:
	default:
		return nil, fmt.Errorf("unknown operation %q", msg.Operation)
	}
	return &msg, nil
}
