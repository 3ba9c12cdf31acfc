package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sink delivers formatted alerts to the chat
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// RedisChannelSink publishes alerts to a redis channel the chat bot is subscribed to
type RedisChannelSink struct {
	client     *redis.Client
	pubChannel string
}

func NewRedisChannelSink(client *redis.Client, pubChannel string) *RedisChannelSink {
	return &RedisChannelSink{
		client:     client,
		pubChannel: pubChannel,
	}
}

func (s *RedisChannelSink) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.pubChannel, data).Err()
}

// LogSink writes alerts to the log, used when no chat is configured
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("alerts")}
}

func (s *LogSink) Send(_ context.Context, msg Message) error {
	s.log.Info("Alert", zap.String("kind", msg.Kind), zap.String("text", msg.Text), zap.Strings("tags", msg.Tags))
	return nil
}

// MultiSink sends to every sink and joins the errors
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
