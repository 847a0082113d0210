package coreevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kandev/agentcore/internal/corelog"
)

// NATSConfig configures the optional NATS-backed broadcaster.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// NATSBroadcaster publishes events onto a NATS subject per channel, for
// embedding hosts that run the core as one of several cooperating
// processes. It is not part of spec.md's required component set — it is
// an additional backend exercising the teacher's nats.go dependency — and
// in-process subscribers (the WebSocket bridge) never depend on it.
type NATSBroadcaster struct {
	conn   *nats.Conn
	logger *corelog.Logger
}

// NewNATSBroadcaster connects to NATS with the teacher's reconnect/drain
// handling: bounded reconnect attempts, a reconnect buffer so in-flight
// publishes survive a brief network blip, and logged lifecycle transitions.
func NewNATSBroadcaster(cfg NATSConfig, log *corelog.Logger) (*NATSBroadcaster, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(5 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Error("nats connection closed", zap.Error(err))
			}
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSBroadcaster{conn: conn, logger: log}, nil
}

// Publish marshals event and publishes it to its derived channel as the
// NATS subject. Publish failures are logged; the error is also returned,
// for callers that construct a NATSBroadcaster directly and want to
// distinguish them (the Broadcaster interface's callers ignore it).
func (b *NATSBroadcaster) Publish(_ context.Context, event Event) error {
	subject := Channel(event)
	data, err := json.Marshal(event.Payload())
	if err != nil {
		b.logger.Error("failed to marshal event for nats publish", zap.Error(err))
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Error("nats publish failed", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

// Close drains the connection (letting in-flight publishes complete) then
// closes it, falling back to an immediate close if draining fails.
func (b *NATSBroadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("error draining nats connection", zap.Error(err))
		b.conn.Close()
		return nil
	}
	return nil
}
