package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/fittrack/internal/domain"
)

// PartitionLookup lists the partition ids of a topic.
type PartitionLookup func(ctx context.Context, topic string) ([]int, error)

// ReaderFactory builds a reader positioned at the latest offset of a partition.
type ReaderFactory func(cfg kafka.ReaderConfig) (Reader, error)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger handed to every channel the hub opens.
func WithHubLogger(logger *log.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithPartitionLookup replaces the broker metadata lookup.
func WithPartitionLookup(lookup PartitionLookup) HubOption {
	return func(h *Hub) {
		h.partitions = lookup
	}
}

// WithReaderFactory replaces the kafka reader constructor.
func WithReaderFactory(factory ReaderFactory) HubOption {
	return func(h *Hub) {
		h.newReader = factory
	}
}

// Hub opens per-user, per-table channels against the change-feed topics.
type Hub struct {
	brokers    []string
	logger     *log.Logger
	partitions PartitionLookup
	newReader  ReaderFactory
}

// NewHub constructs a Hub for the given brokers.
func NewHub(brokers []string, opts ...HubOption) *Hub {
	h := &Hub{
		brokers:   brokers,
		logger:    log.New(log.Writer(), "[realtime] ", log.LstdFlags|log.Lshortfile),
		newReader: newKafkaReader,
	}
	h.partitions = h.lookupPartitions
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe opens a channel delivering userID's changes to table. The channel reads only
// the partition the user's changes are hashed to, starting at the latest offset, so
// changes committed before the call are not replayed.
func (h *Hub) Subscribe(ctx context.Context, userID string, table domain.Table, handler Handler) (*Channel, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: table %q", domain.ErrValidation, table)
	}
	subscribe := func(ctx context.Context) (Reader, error) {
		topic := table.Topic()
		ids, err := h.partitions(ctx, topic)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("topic %s has no partitions", topic)
		}
		partition := PartitionFor(userID, ids)
		return h.newReader(kafka.ReaderConfig{
			Brokers:   h.brokers,
			Topic:     topic,
			Partition: partition,
			MinBytes:  1,
			MaxBytes:  10e6,
			MaxWait:   500 * time.Millisecond,
		})
	}

	ch := NewChannel(table, userID, subscribe, handler, WithLogger(h.logger))
	if err := ch.Open(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

// PartitionFor returns the partition the outbox producer's hash balancer assigns to userID.
func PartitionFor(userID string, partitions []int) int {
	sorted := append([]int(nil), partitions...)
	sort.Ints(sorted)
	return (&kafka.Hash{}).Balance(kafka.Message{Key: []byte(userID)}, sorted...)
}

func (h *Hub) lookupPartitions(ctx context.Context, topic string) ([]int, error) {
	var errs error
	for _, broker := range h.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		parts, err := conn.ReadPartitions(topic)
		conn.Close()
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		ids := make([]int, 0, len(parts))
		for _, p := range parts {
			ids = append(ids, p.ID)
		}
		return ids, nil
	}
	if errs == nil {
		errs = errors.New("no brokers configured")
	}
	return nil, fmt.Errorf("read partitions of %s: %w", topic, errs)
}

func newKafkaReader(cfg kafka.ReaderConfig) (Reader, error) {
	reader := kafka.NewReader(cfg)
	if err := reader.SetOffset(kafka.LastOffset); err != nil {
		reader.Close()
		return nil, err
	}
	return reader, nil
}
