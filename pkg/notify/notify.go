// Package notify sends budget alerts and monthly reports to users.
//
// Rendering and delivering the email is the job of an external mailer. This
// package only hands over the recipient, subject and template data.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// TemplateType selects the email template the mailer renders.
type TemplateType string

const (
	BudgetAlert   TemplateType = "budget-alert"
	MonthlyReport TemplateType = "monthly-report"
)

// Message is a notification for a single recipient.
type Message struct {
	Recipient    string         `json:"recipient" example:"jane@example.com"`
	Subject      string         `json:"subject" example:"Budget Alert for Checking"`
	TemplateType TemplateType   `json:"templateType" example:"budget-alert"`
	TemplateData map[string]any `json:"templateData"`
}

var ErrNoRecipient = errors.New("message has no recipient")

// Validate checks that the message can be delivered.
func (m Message) Validate() error {
	if m.Recipient == "" {
		return ErrNoRecipient
	}

	if m.TemplateType != BudgetAlert && m.TemplateType != MonthlyReport {
		return fmt.Errorf("unknown template type %q", m.TemplateType)
	}

	return nil
}

// Notifier delivers messages. Delivery is fire-and-forget: implementations
// do not retry.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(m.TemplateData)
	if err != nil {
		return fmt.Errorf("could not encode template data: %w", err)
	}

	log.Info().
		Str("recipient", m.Recipient).
		Str("subject", m.Subject).
		Str("template", string(m.TemplateType)).
		RawJSON("data", data).
		Msg("Notification")
	return nil
}

// Publisher publishes a message body with a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// QueueNotifier publishes messages as JSON for the mailer to consume.
type QueueNotifier struct {
	publisher Publisher
	queue     string
}

// DefaultQueue is the queue the mailer consumes.
const DefaultQueue = "notifications"

func NewQueueNotifier(publisher Publisher, queue string) *QueueNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &QueueNotifier{publisher: publisher, queue: queue}
}

func (n *QueueNotifier) Notify(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("could not encode notification: %w", err)
	}

	if err := n.publisher.Publish(ctx, n.queue, body); err != nil {
		return fmt.Errorf("could not publish notification: %w", err)
	}

	return nil
}
