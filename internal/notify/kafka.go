package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTopic is where password reset messages are published.
const DefaultTopic = "library.mail.password-reset"

const messageTypePasswordReset = "password_reset"

// Envelope is the Kafka record value consumed by the mail service.
type Envelope struct {
	ID         string                       `json:"id"`
	Type       string                       `json:"type"`
	OccurredAt time.Time                    `json:"occurredAt"`
	Payload    libauth.PasswordResetMessage `json:"payload"`
}

// NewKafkaConfig returns the producer settings used by NewKafkaProducer.
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0

	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

// NewKafkaProducer connects an async producer to brokers.
func NewKafkaProducer(brokers []string) (sarama.AsyncProducer, error) {
	producer, err := sarama.NewAsyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaSender publishes reset messages keyed by recipient so that messages
// for one address stay ordered on a partition.
type KafkaSender struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	failed atomic.Uint64
}

// NewKafkaSender takes ownership of producer and starts its error handler.
// An empty topic selects DefaultTopic.
func NewKafkaSender(producer sarama.AsyncProducer, topic string, log *zap.Logger) *KafkaSender {
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &KafkaSender{
		producer: producer,
		topic:    topic,
		logger:   log.Named("kafka"),
		now:      time.Now,
	}

	s.wg.Add(1)
	go s.handleErrors()

	s.logger.Info("kafka sender initialized", zap.String("topic", topic))
	return s
}

// handleErrors drains the producer's error channel until it is closed.
func (s *KafkaSender) handleErrors() {
	defer s.wg.Done()

	for perr := range s.producer.Errors() {
		if perr == nil {
			continue
		}
		s.failed.Add(1)
		fields := []zap.Field{zap.Error(perr.Err)}
		if perr.Msg != nil {
			fields = append(fields,
				zap.String("topic", perr.Msg.Topic),
				zap.Int32("partition", perr.Msg.Partition),
			)
		}
		s.logger.Error("kafka producer error", fields...)
	}
}

// SendPasswordReset implements Sender. It returns once the record is handed
// to the producer; broker failures surface through Failed.
func (s *KafkaSender) SendPasswordReset(ctx context.Context, msg libauth.PasswordResetMessage) error {
	value, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       messageTypePasswordReset,
		OccurredAt: s.now().UTC(),
		Payload:    msg,
	})
	if err != nil {
		return fmt.Errorf("encode password reset envelope: %w", err)
	}

	record := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(msg.To),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(messageTypePasswordReset)},
		},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.producer.Input() <- record:
		logger.WithContext(ctx, s.logger).Debug("password reset message published",
			zap.String("to", logger.MaskEmail(msg.To)),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed returns the number of records the producer reported as failed.
func (s *KafkaSender) Failed() uint64 { return s.failed.Load() }

// Close flushes the producer and waits for the error handler.
func (s *KafkaSender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("closing kafka sender")
	err := s.producer.Close()
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
