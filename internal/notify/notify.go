// Package notify publishes session lifecycle notifications over NATS,
// grounded on the connection/reconnect handling in the teacher's sibling
// fork's internal/events publisher (a real NATS publisher, as opposed to
// the teacher's own copy which was later stubbed to a no-op in favor of
// direct WebSocket delivery to agents).
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sessionforge/sessionforge/internal/logger"
)

const (
	SubjectSessionKilled  = "sessionforge.session.killed"
	SubjectSessionCreated = "sessionforge.session.created"
	SubjectSessionDeleted = "sessionforge.session.deleted"
)

// KillNotification is published by the monitor sweep whenever it terminates
// a session, so any interested subscriber (an alerting bridge, an audit
// sink) can react without polling the store.
type KillNotification struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	KilledAt  time.Time `json:"killed_at"`
}

// Publisher wraps a NATS connection. When no NATS URL is configured, it
// degrades to a logging no-op rather than failing startup.
type Publisher struct {
	conn    *nats.Conn
	enabled bool
}

func NewPublisher(url string) (*Publisher, error) {
	log := logger.Manager()
	if url == "" {
		log.Warn().Msg("NATS_URL not configured, session notifications disabled")
		return &Publisher{enabled: false}, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("sessionforge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("failed to connect to nats, notifications disabled")
		return &Publisher{enabled: false}, nil
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("connected to nats")
	return &Publisher{conn: conn, enabled: true}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
		p.conn.Close()
	}
}

func (p *Publisher) publish(subject string, event interface{}) error {
	if !p.enabled {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.conn.Publish(subject, data)
}

// PublishKilled notifies subscribers that the monitor sweep terminated a
// session. Best-effort: callers log but do not fail the sweep on error.
func (p *Publisher) PublishKilled(n KillNotification) error {
	if n.KilledAt.IsZero() {
		n.KilledAt = time.Now()
	}
	return p.publish(SubjectSessionKilled, n)
}

// PublishCreated notifies subscribers of a new session.
func (p *Publisher) PublishCreated(sessionID, userID string) error {
	return p.publish(SubjectSessionCreated, map[string]string{"session_id": sessionID, "user_id": userID})
}

// PublishDeleted notifies subscribers of a deleted session.
func (p *Publisher) PublishDeleted(sessionID, userID string) error {
	return p.publish(SubjectSessionDeleted, map[string]string{"session_id": sessionID, "user_id": userID})
}
