// Package kafka mirrors audit events onto a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "safetyaudit/pkg/platform/audit"
)

// Sink implements audit.Appender. Records are keyed by owner so one owner's
// events stay ordered within a partition.
type Sink struct {
	client *kgo.Client
	topic  string
}

// payload is the JSON record value.
type payload struct {
	Category   string    `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Subject    string    `json:"subject"`
	Action     string    `json:"action"`
	Collection string    `json:"collection,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

func New(brokers []string, topic string, opts ...kgo.Opt) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka sink requires a topic")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic when missing.
func (s *Sink) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", s.topic, resp.Err)
	}
	return nil
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	value, err := Encode(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.OwnerID.String()),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}

// Encode renders an event as the record value.
func Encode(event audit.Event) ([]byte, error) {
	p := payload{
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.UTC(),
		Subject:    event.Subject,
		Action:     event.Action,
		Collection: event.Collection,
		ActorID:    event.ActorID,
		RequestID:  event.RequestID,
		Reason:     event.Reason,
	}
	if !event.OwnerID.IsNil() {
		p.OwnerID = event.OwnerID.String()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return b, nil
}
