package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	failOn map[string]error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if err, ok := s.failOn[topic]; ok {
		return err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(_ context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

func changeMessage(t *testing.T, eventID int64, table domain.Table, op domain.Op, userID, rowID string) Message {
	t.Helper()
	payload, err := json.Marshal(events.RowChanged{
		Table: table, Operation: op, RowID: rowID, UserID: userID, CommittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return Message{
		EventID:       eventID,
		AggregateType: string(table),
		AggregateID:   rowID,
		UserID:        userID,
		EventType:     events.EventType(table, op),
		Topic:         table.Topic(),
		SchemaSubject: table.SchemaSubject(),
		PartitionKey:  userID,
		Payload:       payload,
	}
}

func newTestDispatcher(producer messageWriter, registry schemaRegistrar) *Dispatcher {
	return NewDispatcher(nil, producer, registry, time.Second, 10, WithLogger(log.New(io.Discard, "", 0)))
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestDeliverFramesAndGroupsByTopic(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := newTestDispatcher(producer, registry)

	msgs := []Message{
		changeMessage(t, 1, domain.TableWeightLogs, domain.OpInsert, "u1", "w1"),
		changeMessage(t, 2, domain.TableNutritionLogs, domain.OpUpdate, "u1", "n1"),
		changeMessage(t, 3, domain.TableWeightLogs, domain.OpDelete, "u2", "w2"),
	}
	failures := d.deliver(context.Background(), msgs)
	require.Empty(t, failures)

	require.Len(t, producer.writes, 2)
	require.Equal(t, domain.TableWeightLogs.Topic(), producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, domain.TableNutritionLogs.Topic(), producer.writes[1].topic)

	first := producer.writes[0].messages[0]
	require.Equal(t, "u1", string(first.Key))
	require.Equal(t, "weight_logs.insert", header(first, HeaderEventType))
	require.Equal(t, "u1", header(first, HeaderUserID))
	require.Equal(t, domain.TableWeightLogs.SchemaSubject(), header(first, HeaderSchemaSubject))

	schemaID, payload, err := DecodeWireFormat(first.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)
	require.JSONEq(t, string(msgs[0].Payload), string(payload))

	change, err := DecodeChange(producer.writes[0].messages[1].Value)
	require.NoError(t, err)
	require.Equal(t, domain.OpDelete, change.Operation)
	require.Equal(t, "w2", change.RowID)

	// One registry call per subject; the second weight change hits the cache.
	require.Len(t, registry.calls, 2)
	require.Contains(t, registry.calls[0].schema, `"const": "weight_logs"`)
}

func TestDeliverIsolatesFailingTopic(t *testing.T) {
	producer := &stubProducer{failOn: map[string]error{domain.TableWeightLogs.Topic(): errors.New("broker down")}}
	d := newTestDispatcher(producer, &stubRegistry{id: 7})

	msgs := []Message{
		changeMessage(t, 1, domain.TableWeightLogs, domain.OpInsert, "u1", "w1"),
		changeMessage(t, 2, domain.TableProfiles, domain.OpUpdate, "u1", "u1"),
	}
	failures := d.deliver(context.Background(), msgs)
	require.Len(t, failures, 1)
	require.Equal(t, domain.TableWeightLogs.Topic(), failures[0].topic)
	require.Len(t, failures[0].messages, 1)
	require.EqualError(t, failures[0].err, "broker down")

	require.Len(t, producer.writes, 1)
	require.Equal(t, domain.TableProfiles.Topic(), producer.writes[0].topic)
}

func TestDeliverUnknownEventTypeFailsWithoutRegistryCall(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	d := newTestDispatcher(producer, registry)

	msg := changeMessage(t, 9, domain.TableWeightLogs, domain.OpInsert, "u", "w")
	msg.EventType = "steps.insert"

	failures := d.deliver(context.Background(), []Message{msg})
	require.Len(t, failures, 1)
	require.Contains(t, failures[0].err.Error(), "no schema metadata for event_type=steps.insert")
	require.Empty(t, registry.calls)
	require.Empty(t, producer.writes)
}

func TestDecodeWireFormatRejectsBadFrames(t *testing.T) {
	for _, value := range [][]byte{nil, {0, 0, 0}, {1, 0, 0, 0, 1, '{', '}'}} {
		_, _, err := DecodeWireFormat(value)
		require.ErrorIs(t, err, ErrInvalidFrame)
	}

	_, err := DecodeChange(encodeWireFormat(3, []byte(`not json`)))
	require.ErrorIs(t, err, ErrInvalidFrame)

	_, err = DecodeChange(encodeWireFormat(3, []byte(`{"table":"steps","operation":"insert"}`)))
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestBackoffDelayCapsAtOneHour(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 32*time.Minute, m.backoffDelay(6))
	require.Equal(t, time.Hour, m.backoffDelay(7))
	require.Equal(t, time.Hour, m.backoffDelay(100))
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/versions/latest"):
			http.NotFound(w, r)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/versions"):
			registered, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{"id":17}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "fittrack.weight_logs.changes-value", `{"type":"object"}`)
	require.NoError(t, err)
	require.Equal(t, 17, id)
	require.True(t, bytes.Contains(registered, []byte(`"schemaType":"JSON"`)))
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrSubjectNotFound)
	require.Contains(t, err.Error(), "503")
}
