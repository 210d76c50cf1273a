package signal

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes signals to the log; used when no broker is configured
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, s Signal) error {
	p.log.Info("Signal",
		zap.String("type", string(s.Type)),
		zap.String("subject", s.Subject),
		zap.Any("data", s.Data))
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
