package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS signal publisher
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	// Connection
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes signals on core NATS subjects "<prefix>.<type>"
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(config NATSConfig, log *zap.Logger) (*NATSPublisher, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 60
	}

	opts := []natsgo.Option{
		natsgo.Timeout(config.ConnectTimeout),
		natsgo.ReconnectWait(config.ReconnectWait),
		natsgo.MaxReconnects(config.MaxReconnects),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			log.Warn("Disconnected from NATS", zap.Error(err))
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if config.Name != "" {
		opts = append(opts, natsgo.Name(config.Name))
	}

	nc, err := natsgo.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("NATS signal publisher connected",
		zap.String("url", nc.ConnectedUrl()),
		zap.String("subject_prefix", config.SubjectPrefix))

	return newNATSPublisher(nc, config.SubjectPrefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject a signal type is published on
func (p *NATSPublisher) Subject(t Type) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "." + string(t)
}

// Publish marshals the signal as JSON and publishes it
func (p *NATSPublisher) Publish(ctx context.Context, s Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	if err := p.conn.Publish(p.Subject(s.Type), data); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
