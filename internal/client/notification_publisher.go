package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

// natsConn is the subset of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes approval workflow events to NATS for the
// notification service.
//
// Subject convention: <prefix>.<event_type>
// Event types: document_submitted, approval_required, document_approved,
// document_rejected, document_recalled
//
// Publishing is non-fatal: errors are logged and never returned, so a
// notification outage cannot interrupt an approval.
type NotificationPublisher struct {
	conn   natsConn
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Status       string         `json:"status"`
	Version      int64          `json:"version"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Category     string         `json:"category"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. conn may be nil, in which
// case every publish is a no-op.
func NewNotificationPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NotificationPublisher {
	p := &NotificationPublisher{prefix: prefix, log: log}
	if conn != nil {
		p.conn = conn
	}
	return p
}

// Connect dials NATS with reconnect handlers that log through log.
func Connect(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
}

// PublishDocumentEvent publishes a document event to <prefix>.<eventType>.
func (p *NotificationPublisher) PublishDocumentEvent(_ context.Context, eventType string, doc *domain.Document, actorID string, recipients []string, payload map[string]any) {
	if p.conn == nil || len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "document",
		ResourceID:   doc.ID,
		Status:       string(doc.Status),
		Version:      doc.Version,
		IsActionable: eventType == service.EventApprovalRequired,
		Category:     "approval_line",
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", doc.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", doc.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
