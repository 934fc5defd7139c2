// Package events publishes completed sync items to Kafka so downstream
// consumers see every committed write without polling the store.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/bernardzulu23/phasesync/internal/phase"
	"github.com/bernardzulu23/phasesync/internal/sync"
)

const (
	topicPartitions  = 3
	topicReplication = 1
	flushTimeout     = 10 * time.Second

	maxBufferedRecords = 10_000
)

// Event is the JSON value of each published record. The record key is the
// user ID, so one user's events stay ordered within a partition.
type Event struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Key       phase.Key     `json:"key"`
	Priority  sync.Priority `json:"priority"`
	Derived   bool          `json:"derived"`
	Attempts  int           `json:"attempts"`
	Payload   phase.Payload `json:"payload"`
	Published time.Time     `json:"published_at"`
}

// Source is the subset of *sync.Coordinator the publisher listens on.
type Source interface {
	AddSyncListener(p phase.Phase, dt phase.DataType, fn sync.Listener) sync.ListenerID
	RemoveSyncListener(p phase.Phase, dt phase.DataType, id sync.ListenerID) bool
}

// producer is satisfied by *kgo.Client. TryProduce fails the promise with
// kgo.ErrMaxBuffered instead of waiting for buffer space.
type producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
}

// Publisher forwards completed items to one topic. Publish runs on the
// coordinator's processing goroutine, so it only ever buffers: when the
// client's buffer is full, as during a broker outage, the event is dropped
// and counted. Delivery failures are logged, never returned.
type Publisher struct {
	producer producer
	client   *kgo.Client // nil when the producer is borrowed
	topic    string
	logger   *slog.Logger
	nowFunc  func() time.Time
	dropped  atomic.Uint64
}

// NewPublisher wraps an existing client. The client's lifecycle stays with
// the caller.
func NewPublisher(client *kgo.Client, topic string, logger *slog.Logger) *Publisher {
	return newPublisher(client, topic, logger)
}

func newPublisher(p producer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: p,
		topic:    topic,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Dial connects to brokers, makes sure topic exists and returns a publisher
// that owns its client.
func Dial(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: no kafka brokers")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.MaxBufferedRecords(maxBufferedRecords),
	)
	if err != nil {
		return nil, fmt.Errorf("events: creating kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("events: kafka ping failed: %w", err)
	}

	if err := ensureTopic(ctx, kadm.NewClient(client), topic); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("kafka publisher connected",
		slog.String("topic", topic),
		slog.Int("brokers", len(brokers)),
	)

	p := newPublisher(client, topic, logger)
	p.client = client

	return p, nil
}

// ensureTopic creates topic unless it already exists.
func ensureTopic(ctx context.Context, adm *kadm.Client, topic string) error {
	resps, err := adm.CreateTopics(ctx, topicPartitions, topicReplication, nil, topic)
	if err != nil {
		return fmt.Errorf("events: creating topic %s: %w", topic, err)
	}

	for _, r := range resps {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("events: creating topic %s: %w", r.Topic, r.Err)
		}
	}

	return nil
}

// Attach registers the publisher on every registered key of src. The
// returned function removes those listeners.
func (p *Publisher) Attach(src Source) (detach func()) {
	type reg struct {
		key phase.Key
		id  sync.ListenerID
	}

	keys := phase.Keys()
	regs := make([]reg, 0, len(keys))

	for _, k := range keys {
		regs = append(regs, reg{key: k, id: src.AddSyncListener(k.Phase, k.DataType, p.Publish)})
	}

	return func() {
		for _, r := range regs {
			src.RemoveSyncListener(r.key.Phase, r.key.DataType, r.id)
		}
	}
}

// Publish encodes it and hands it to the producer without waiting for
// buffer space or the broker.
func (p *Publisher) Publish(it sync.SyncItem) {
	value, err := json.Marshal(Event{
		ID:        it.ID,
		UserID:    it.UserID,
		Key:       it.Key,
		Priority:  it.Priority,
		Derived:   len(it.Trail) > 0,
		Attempts:  it.Attempts,
		Payload:   it.Payload,
		Published: p.nowFunc().UTC(),
	})
	if err != nil {
		p.logger.Error("encoding sync event failed",
			slog.String("id", it.ID),
			slog.String("error", err.Error()),
		)

		return
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(it.UserID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "phasesync-key", Value: []byte(it.Key.String())},
		},
	}

	p.producer.TryProduce(context.Background(), rec, func(r *kgo.Record, err error) {
		switch {
		case err == nil:
		case errors.Is(err, kgo.ErrMaxBuffered):
			p.dropped.Add(1)
			p.logger.Warn("kafka buffer full, dropping sync event",
				slog.String("id", it.ID),
				slog.String("topic", r.Topic),
			)
		default:
			p.logger.Warn("publishing sync event failed",
				slog.String("id", it.ID),
				slog.String("topic", r.Topic),
				slog.String("error", err.Error()),
			)
		}
	})
}

// Dropped reports how many events were discarded on a full buffer.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Close flushes buffered records and, for an owned client, closes it.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := p.producer.Flush(ctx)
	if err != nil {
		err = fmt.Errorf("events: flushing: %w", err)
	}

	if p.client != nil {
		p.client.Close()
	}

	return err
}
