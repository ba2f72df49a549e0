// Package events publishes trip lifecycle notifications to NATS so dispatch
// boards and downstream consumers can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/intercity-bus/internal/application"
)

// Connect dials the NATS server with retry-friendly defaults.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("intercity-bus"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to %s: %w", url, err)
	}
	return conn, nil
}

// Publisher broadcasts trip events on per-company subjects. Delivery is fire
// and forget: a broker outage degrades to a log line, never a failed request.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewPublisher wraps an established NATS connection.
func NewPublisher(conn *nats.Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish implements application.Publisher.
func (p *Publisher) Publish(ctx context.Context, companyID, event string, trip application.TripView) {
	payload, err := json.Marshal(envelope{
		Event:      event,
		CompanyID:  companyID,
		OccurredAt: time.Now().UTC(),
		Trip:       trip,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "event payload encoding failed", "event", event, "error", err)
		return
	}

	subject := Subject(companyID, event)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}

// Close drains buffered messages before closing the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("event connection drain failed", "error", err)
	}
}

// Subject names the NATS subject for a company's trip event.
func Subject(companyID, event string) string {
	return fmt.Sprintf("trips.%s.%s", companyID, event)
}

type envelope struct {
	Event      string               `json:"event"`
	CompanyID  string               `json:"company_id"`
	OccurredAt time.Time            `json:"occurred_at"`
	Trip       application.TripView `json:"trip"`
}
