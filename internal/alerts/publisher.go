// Package alerts emits change events to the Alert Dispatcher over NATS.
// The dispatcher owns delivery and per-user dedup; this side only needs the
// publish to be idempotent-safe to repeat.
package alerts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/changeonly/changeonly/internal/chunker"
)

// SubjectFilingChanged carries one event per diff that has at least one
// added, removed, or modified item.
const SubjectFilingChanged = "changeonly.filing.changed"

// ChangeEvent is the payload for SubjectFilingChanged.
type ChangeEvent struct {
	Symbol          string           `json:"symbol"`
	CompanyName     string           `json:"company_name"`
	FormType        chunker.FormType `json:"form_type"`
	OlderAccession  string           `json:"older_accession"`
	NewerAccession  string           `json:"newer_accession"`
	FiledAt         time.Time        `json:"filed_at"`
	ChangedSections []string         `json:"changed_sections"`
}

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewPublisher(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, logger: logger}, nil
}

// PublishChange sends one change event.
func (p *Publisher) PublishChange(evt ChangeEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := p.conn.Publish(SubjectFilingChanged, payload); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectFilingChanged, err)
	}
	p.logger.Info("change event published",
		"symbol", evt.Symbol,
		"form_type", evt.FormType,
		"newer_accession", evt.NewerAccession,
		"changed_sections", len(evt.ChangedSections),
	)
	return nil
}

func (p *Publisher) Close() {
	p.conn.Close()
}
