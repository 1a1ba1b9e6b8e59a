// Package eventsink delivers routing events to Kafka, the process log or memory.
package eventsink

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/routing"
)

// Sink kinds accepted by New.
const (
	KindNone  = "none"
	KindLog   = "log"
	KindKafka = "kafka"
)

// Config selects and configures a sink.
type Config struct {
	Kind         string
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// New builds the sink named by cfg.Kind.
func New(cfg Config, logger *log.Logger) (routing.EventSink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindNone:
		return routing.NopSink{}, nil
	case KindLog:
		return NewLog(logger), nil
	case KindKafka:
		return NewKafka(cfg.Brokers, cfg.Topic, cfg.WriteTimeout, logger)
	default:
		return nil, errs.New("eventsink", errs.CodeInvalid,
			errs.WithMessage("unsupported event sink"),
			errs.WithField("kind", cfg.Kind))
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Kafka publishes events as JSON, keyed by merchant id so one merchant's events stay ordered
// within a partition. Writes are asynchronous: Emit only enqueues, and delivery failures are
// logged from the writer's completion callback.
type Kafka struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafka constructs an asynchronous Kafka writer for the topic. A nil logger discards
// delivery failures.
func NewKafka(brokers []string, topic string, timeout time.Duration, logger *log.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers must not be empty")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("topic must not be empty")
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
		Async:        true,
		Completion:   completionLogger(topic, logger),
	}
	return &Kafka{writer: writer, timeout: timeout}, nil
}

// completionLogger reports batches the async writer failed to deliver.
func completionLogger(topic string, logger *log.Logger) func([]kafkago.Message, error) {
	return func(msgs []kafkago.Message, err error) {
		if err == nil {
			return
		}
		logger.Printf("eventsink: routing events dropped: topic=%s count=%d err=%v", topic, len(msgs), err)
	}
}

// Emit implements routing.EventSink.
func (k *Kafka) Emit(ctx context.Context, evt *routing.RoutingEvent) error {
	if evt == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode routing event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	msg := kafkago.Message{
		Key:   []byte(evt.MerchantID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "routing_engine", Value: []byte(evt.Engine)},
			{Key: "flow", Value: []byte(evt.Flow)},
		},
		Time: evt.CreatedAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errs.New("eventsink", errs.CodeUnavailable,
			errs.WithMessage("publish routing event"),
			errs.WithField("event_id", evt.ID),
			errs.WithCause(err))
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Log writes one line per event.
type Log struct {
	logger *log.Logger
}

// NewLog constructs a log sink; a nil logger discards.
func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Log{logger: logger}
}

// Emit implements routing.EventSink.
func (l *Log) Emit(_ context.Context, evt *routing.RoutingEvent) error {
	if evt == nil {
		return nil
	}
	l.logger.Printf("routing event: engine=%s flow=%s merchant=%s profile=%s reference=%s approach=%s connectors=%s status=%d latency=%s err=%q",
		evt.Engine, evt.Flow, evt.MerchantID, evt.ProfileID, evt.ReferenceID, evt.Approach,
		strings.Join(evt.Connectors, ","), evt.StatusCode, evt.Latency, evt.Error)
	return nil
}

// Memory keeps events in order of emission.
type Memory struct {
	mu     sync.Mutex
	events []routing.RoutingEvent
}

// NewMemory returns an empty memory sink.
func NewMemory() *Memory { return &Memory{} }

// Emit implements routing.EventSink.
func (m *Memory) Emit(_ context.Context, evt *routing.RoutingEvent) error {
	if evt == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *evt)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []routing.RoutingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// ByEngine returns the recorded events produced by the engine.
func (m *Memory) ByEngine(engine routing.RoutingEngine) []routing.RoutingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []routing.RoutingEvent
	for _, evt := range m.events {
		if evt.Engine == engine {
			out = append(out, evt)
		}
	}
	return out
}

// Reset drops every recorded event.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}
