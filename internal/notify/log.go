package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// LogPublisher writes notifications to the log. Used when no broker is
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.logger.Info("notification",
		zap.String("routing_key", routingKey),
		zap.ByteString("payload", body),
	)
	return nil
}
