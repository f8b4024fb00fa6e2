// Package notify publishes pipeline lifecycle notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shawcc/trumpsword/internal/domain"
)

// Subjects published by the pipeline.
const (
	SubjectEventCreated    = "trumpsword.event.created"
	SubjectEventSynced     = "trumpsword.event.synced"
	SubjectEventSyncFailed = "trumpsword.event.sync_failed"
)

// Notification is the JSON body of every message.
type Notification struct {
	EventID    string           `json:"event_id"`
	ExternalID string           `json:"external_id"`
	Type       domain.EventType `json:"type"`
	Source     domain.Source    `json:"source"`
	Title      string           `json:"title"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// NewNotification builds a notification for event. err may be nil.
func NewNotification(e domain.Event, err error, at time.Time) Notification {
	n := Notification{
		EventID:    e.ID,
		ExternalID: e.ExternalID,
		Type:       e.Type,
		Source:     e.Source,
		Title:      e.Title,
		At:         at,
	}
	if err != nil {
		n.Error = err.Error()
	}
	return n
}

// Publisher sends notifications. Publishing is best effort: callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, subject string, n Notification) error
	Close() error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Publish(context.Context, string, Notification) error { return nil }
func (Nop) Close() error                                        { return nil }

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes notifications as JSON on core NATS subjects.
type NATSPublisher struct {
	nc     conn
	logger *slog.Logger
}

// Connect dials the NATS server at url.
func Connect(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("trumpsword"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	p.logger.Debug("notification published", "subject", subject, "event_id", n.EventID)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
