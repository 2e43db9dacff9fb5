package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"liquidator/internal/adapters/kafka"
	"liquidator/internal/domain/notification"
	"liquidator/pkg/errors"
)

const SinkName = "kafka"

// BinaryPublisher is satisfied by *kafka.Producer
type BinaryPublisher interface {
	PublishBinary(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
}

// NotificationPublisher mirrors every notification onto the event bus as a
// protobuf google.protobuf.Struct, keyed by event kind
type NotificationPublisher struct {
	producer BinaryPublisher
	topic    string
	source   string
}

func NewNotificationPublisher(producer BinaryPublisher, topic, source string) *NotificationPublisher {
	if topic == "" {
		topic = kafka.TopicLiquidatorEvents
	}
	return &NotificationPublisher{producer: producer, topic: topic, source: source}
}

func (np *NotificationPublisher) Name() string { return SinkName }

// Notify implements notification.Sink
func (np *NotificationPublisher) Notify(ctx context.Context, event notification.Event) error {
	msg, err := EncodeEvent(event, np.source)
	if err != nil {
		return err
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal protobuf")
	}

	headers := []kafkago.Header{
		{Key: kafka.HeaderEventKind, Value: []byte(event.Kind)},
		{Key: kafka.HeaderSeverity, Value: []byte(event.Severity)},
		{Key: kafka.HeaderContentType, Value: []byte(kafka.ContentTypeProtobuf)},
	}
	if err := np.producer.PublishBinary(ctx, np.topic, []byte(event.Kind), data, headers...); err != nil {
		return errors.Wrap(err, "publish to kafka")
	}
	return nil
}

// EncodeEvent converts an event into a Struct envelope
func EncodeEvent(event notification.Event, source string) (*structpb.Struct, error) {
	fields := make(map[string]interface{}, len(event.Fields))
	for k, v := range event.Fields {
		fields[sanitizeUTF8(k)] = protoValue(v)
	}

	msg, err := structpb.NewStruct(map[string]interface{}{
		"id":        event.ID.String(),
		"kind":      string(event.Kind),
		"severity":  string(event.Severity),
		"title":     sanitizeUTF8(event.Title),
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
		"source":    sanitizeUTF8(source),
		"version":   "1.0",
		"fields":    fields,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s event", event.Kind)
	}
	return msg, nil
}

// protoValue reduces v to a type structpb.NewValue accepts
func protoValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, float64, float32, int, int32, int64, uint8, uint32, uint64:
		return x
	case string:
		return sanitizeUTF8(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.Seconds()
	case error:
		return sanitizeUTF8(x.Error())
	case fmt.Stringer:
		return sanitizeUTF8(x.String())
	default:
		return sanitizeUTF8(fmt.Sprintf("%v", x))
	}
}

// Protobuf strings must be valid UTF-8; upstream error bodies are not always
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
