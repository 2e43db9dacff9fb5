package kafka

// Topic definitions for Kafka event streaming
const (
	// Bot lifecycle, scan and liquidation events; overridable via KAFKA_EVENTS_TOPIC
	TopicLiquidatorEvents = "liquidator.events"
)

// Message headers
const (
	HeaderEventKind     = "event-kind"
	HeaderSeverity      = "severity"
	HeaderContentType   = "content-type"
	ContentTypeProtobuf = "application/x-protobuf; messageType=google.protobuf.Struct"
)
