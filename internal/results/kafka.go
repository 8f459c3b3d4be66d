package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes results keyed by queue name.
type KafkaSink struct {
	writer      messageWriter
	includeBody bool
}

// NewKafkaSink creates a producer for the given broker and topic.
func NewKafkaSink(broker, topic string, includeBody bool) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
		includeBody: includeBody,
	}
}

// NewKafkaSinkWithWriter builds a sink using a custom writer (tests).
func NewKafkaSinkWithWriter(writer messageWriter, includeBody bool) *KafkaSink {
	return &KafkaSink{writer: writer, includeBody: includeBody}
}

// Write publishes the JSON encoded result.
func (s *KafkaSink) Write(ctx context.Context, result crawler.Result) error {
	if !s.includeBody {
		result.Response.Body = ""
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(result.Queue),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
