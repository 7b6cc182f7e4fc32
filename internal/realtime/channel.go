// Package realtime delivers committed row changes for one user and one table to a handler.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/outbox"
)

// Reader is the subset of kafka.Reader a channel consumes from.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	Close() error
}

// Handler receives changes in topic order.
type Handler interface {
	Handle(context.Context, events.RowChanged) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, events.RowChanged) error

func (f HandlerFunc) Handle(ctx context.Context, change events.RowChanged) error {
	return f(ctx, change)
}

// Subscriber opens the reader backing a channel.
type Subscriber func(ctx context.Context) (Reader, error)

// State is the lifecycle position of a Channel.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrChannelOpen is returned by Open on a channel that is not unsubscribed.
var ErrChannelOpen = errors.New("channel already open")

const fetchRetryDelay = 500 * time.Millisecond

// Option configures a Channel.
type Option func(*Channel)

// WithLogger overrides the channel logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// Channel is a subscription to one table's changes, filtered to one user.
type Channel struct {
	table     domain.Table
	userID    string
	subscribe Subscriber
	handler   Handler
	logger    *log.Logger

	mu     sync.Mutex
	state  State
	reader Reader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel constructs an unsubscribed channel.
func NewChannel(table domain.Table, userID string, subscribe Subscriber, handler Handler, opts ...Option) *Channel {
	c := &Channel{
		table:     table,
		userID:    userID,
		subscribe: subscribe,
		handler:   handler,
		logger:    log.New(log.Writer(), "[realtime] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the table the channel follows.
func (c *Channel) Table() domain.Table { return c.table }

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open subscribes and starts delivering changes. A failed subscription leaves the
// channel unsubscribed and returns the error; it is not retried.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUnsubscribed {
		c.mu.Unlock()
		return ErrChannelOpen
	}
	c.state = StateSubscribing
	c.mu.Unlock()

	reader, err := c.subscribe(ctx)
	if err != nil {
		c.setState(StateUnsubscribed)
		recordSubscribeFailure(c.table)
		return fmt.Errorf("subscribe %s: %w", c.table, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.reader = reader
	c.cancel = cancel
	c.done = done
	c.state = StateSubscribed
	c.mu.Unlock()
	openChannels.Inc()

	go func() {
		defer close(done)
		c.run(runCtx, reader)
	}()
	return nil
}

// Close stops delivery, waits for the in-flight handler call and releases the reader.
// Closing an unsubscribed channel is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state != StateSubscribed {
		c.mu.Unlock()
		return nil
	}
	cancel, done, reader := c.cancel, c.done, c.reader
	c.cancel, c.done, c.reader = nil, nil, nil
	c.state = StateUnsubscribed
	c.mu.Unlock()

	cancel()
	<-done
	openChannels.Dec()
	return reader.Close()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context, reader Reader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Printf("fetch error (table=%s): %v", c.table, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		if user, ok := headerValue(msg, outbox.HeaderUserID); ok && user != c.userID {
			continue
		}

		change, err := outbox.DecodeChange(msg.Value)
		if err != nil {
			c.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, err)
			recordDecodeError(c.table)
			continue
		}
		if change.UserID != c.userID || change.Table != c.table {
			continue
		}

		if err := c.handler.Handle(ctx, change); err != nil {
			c.logger.Printf("handler error (table=%s, op=%s, row=%s): %v", change.Table, change.Operation, change.RowID, err)
			recordHandlerError(c.table)
			continue
		}
		recordDelivered(change)
	}
}

func headerValue(msg kafka.Message, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
