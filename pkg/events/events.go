// Package events carries messages between the scheduler and the workers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fintrack/backend/pkg/ledger"
	"github.com/google/uuid"
)

// TopicRecurringProcess carries one message per due recurring transaction.
const TopicRecurringProcess = "transaction.recurring.process"

// ErrMalformed marks messages that can never be handled. Transports drop them
// instead of delivering them again.
var ErrMalformed = errors.New("malformed message")

// Handler handles the body of a message.
type Handler func(ctx context.Context, body []byte) error

// Publisher publishes a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Source delivers the messages of a topic to a handler until ctx is done.
type Source interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// Bus is a transport that can both publish and deliver messages.
type Bus interface {
	Publisher
	Source
}

// EncodeRecurring returns the message body for a due recurring transaction.
func EncodeRecurring(ref ledger.TransactionRef) ([]byte, error) {
	return json.Marshal(ref)
}

// DecodeRecurring parses the body of a transaction.recurring.process message.
func DecodeRecurring(body []byte) (ledger.TransactionRef, error) {
	var ref ledger.TransactionRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return ledger.TransactionRef{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if ref.TransactionID == uuid.Nil || ref.UserID == uuid.Nil {
		return ledger.TransactionRef{}, fmt.Errorf("%w: transactionId and userId are required", ErrMalformed)
	}

	return ref, nil
}
