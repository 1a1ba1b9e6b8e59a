package eventsink

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/payroute/errs"
	"github.com/coachpo/payroute/internal/domain/routing"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleEvent() *routing.RoutingEvent {
	evt := routing.NewRoutingEvent("mer_1", "pro_1", "pay_1", routing.EngineStatic, "static_routing", time.Unix(1700000000, 0))
	evt.SetConnectors([]routing.RoutableConnectorChoice{routing.NewChoice(routing.ConnectorStripe, "mca_a")})
	evt.Approach = routing.ApproachNone
	return evt
}

func TestKafkaEmitKeysByMerchant(t *testing.T) {
	writer := &fakeWriter{}
	sink := &Kafka{writer: writer, timeout: time.Second}

	require.NoError(t, sink.Emit(context.Background(), sampleEvent()))
	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	require.Equal(t, "mer_1", string(msg.Key))

	var decoded routing.RoutingEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, routing.EngineStatic, decoded.Engine)
	require.Equal(t, []string{"stripe:mca_a"}, decoded.Connectors)

	require.NoError(t, sink.Close())
	require.True(t, writer.closed)
}

func TestKafkaEmitWrapsWriterFailure(t *testing.T) {
	sink := &Kafka{writer: &fakeWriter{err: errors.New("broker down")}, timeout: time.Second}
	err := sink.Emit(context.Background(), sampleEvent())
	require.Error(t, err)
	var e *errs.E
	require.True(t, errors.As(err, &e))
	require.Equal(t, errs.CodeUnavailable, e.Code)
}

func TestNewKafkaValidatesArguments(t *testing.T) {
	_, err := NewKafka(nil, "routing-events", 0, nil)
	require.Error(t, err)
	_, err = NewKafka([]string{"localhost:9092"}, " ", 0, nil)
	require.Error(t, err)
	sink, err := NewKafka([]string{"localhost:9092"}, "routing-events", 0, nil)
	require.NoError(t, err)
	require.Equal(t, time.Second, sink.timeout)
}

func TestNewKafkaWriterIsAsync(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewKafka([]string{"localhost:9092"}, "routing-events", 0, log.New(&buf, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	writer, ok := sink.writer.(*kafkago.Writer)
	require.True(t, ok)
	require.True(t, writer.Async)
	require.NotNil(t, writer.Completion)

	writer.Completion([]kafkago.Message{{}, {}}, nil)
	require.Empty(t, buf.String())
	writer.Completion([]kafkago.Message{{}, {}}, errors.New("broker down"))
	require.Contains(t, buf.String(), "topic=routing-events count=2")
	require.Contains(t, buf.String(), "broker down")
}

func TestLogSinkWritesLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLog(log.New(&buf, "", 0))
	require.NoError(t, sink.Emit(context.Background(), sampleEvent()))
	line := buf.String()
	if !strings.Contains(line, "engine=static") || !strings.Contains(line, "connectors=stripe:mca_a") {
		t.Fatalf("unexpected log line %q", line)
	}
}

func TestMemorySinkRecordsInOrder(t *testing.T) {
	sink := NewMemory()
	first := sampleEvent()
	second := sampleEvent()
	second.Engine = routing.EngineIntelligentRouter

	require.NoError(t, sink.Emit(context.Background(), first))
	require.NoError(t, sink.Emit(context.Background(), second))
	require.NoError(t, sink.Emit(context.Background(), nil))

	events := sink.Events()
	require.Len(t, events, 2)
	require.Equal(t, first.ID, events[0].ID)
	require.Len(t, sink.ByEngine(routing.EngineIntelligentRouter), 1)

	sink.Reset()
	require.Empty(t, sink.Events())
}

func TestNewSelectsKind(t *testing.T) {
	sink, err := New(Config{}, nil)
	require.NoError(t, err)
	require.IsType(t, routing.NopSink{}, sink)

	sink, err = New(Config{Kind: "LOG"}, nil)
	require.NoError(t, err)
	require.IsType(t, &Log{}, sink)

	_, err = New(Config{Kind: "carrier-pigeon"}, nil)
	require.Error(t, err)
}
