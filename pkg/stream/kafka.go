package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/multivenue/pkg/book"
	"github.com/uhyunpark/multivenue/pkg/util"
)

const (
	EventTrade  = "trade"
	EventReject = "reject"
)

// Envelope is the message value written to the topic. The venue name is
// also the message key, so one venue's events stay ordered in a partition.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Venue     string          `json:"venue"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards book events to Kafka. Writes are asynchronous; a
// broker outage is logged and never blocks matching.
type Publisher struct {
	writer messageWriter
	clock  util.Clock
	log    *zap.SugaredLogger
}

var _ book.Listener = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, clock util.Clock, log *zap.SugaredLogger) *Publisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warnw("kafka_publish_failed", "messages", len(msgs), "err", err)
			}
		},
	}
	return newPublisher(w, clock, log)
}

func newPublisher(w messageWriter, clock util.Clock, log *zap.SugaredLogger) *Publisher {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Publisher{writer: w, clock: clock, log: log}
}

func (p *Publisher) OnTrade(venue string, t book.Trade) {
	p.publish(EventTrade, venue, t)
}

func (p *Publisher) OnReject(venue string, r book.Rejection) {
	p.publish(EventReject, venue, r)
}

func (p *Publisher) Close() error { return p.writer.Close() }

func (p *Publisher) publish(kind, venue string, payload any) {
	value, err := p.encode(kind, venue, payload)
	if err != nil {
		p.log.Errorw("event_encode_failed", "type", kind, "venue", venue, "err", err)
		return
	}
	msg := kafka.Message{Key: []byte(venue), Value: value}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.log.Warnw("kafka_publish_failed", "type", kind, "venue", venue, "err", err)
	}
}

func (p *Publisher) encode(kind, venue string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:        uuid.NewString(),
		Type:      kind,
		Venue:     venue,
		Timestamp: p.clock.Now().UTC(),
		Payload:   body,
	})
}
