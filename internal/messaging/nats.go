package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yegors/navwatch/internal/telemetry"
	"github.com/yegors/navwatch/pkg/logger"
)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "navwatch.telemetry"

// Conn is the part of a NATS connection the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards telemetry events to NATS subjects
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
	logger *logger.Logger
}

// Connect dials the NATS server and returns a publisher
func Connect(url, name, prefix string, log *logger.Logger) (*Publisher, error) {
	l := log.Named("nats")

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn("Disconnected from NATS", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("Reconnected to NATS", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	l.Info("Connected to NATS",
		logger.String("url", nc.ConnectedUrl()),
		logger.String("subject_prefix", prefix))

	p := NewPublisher(nc, prefix, log)
	p.nc = nc
	return p, nil
}

// NewPublisher wraps an existing connection
func NewPublisher(conn Conn, prefix string, log *logger.Logger) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: log.Named("nats"),
	}
}

// Subject returns the subject an event type is published on
func (p *Publisher) Subject(t telemetry.EventType) string {
	return p.prefix + "." + string(t)
}

// HandleEvent implements telemetry.Listener
func (p *Publisher) HandleEvent(ctx context.Context, evt telemetry.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(p.Subject(evt.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains and closes the connection when the publisher owns it
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("Failed to drain NATS connection", logger.Error(err))
		p.nc.Close()
	}
}
