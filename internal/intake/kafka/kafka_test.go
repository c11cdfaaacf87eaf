package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"shellbox/internal/intake"
	"shellbox/internal/model"
)

func TestNewConsumerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewConsumer(Config{}); err == nil {
		t.Fatalf("expected error when brokers missing")
	}
	if _, err := NewConsumer(Config{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error when topic missing")
	}
}

func TestNewConsumerAppliesDefaults(t *testing.T) {
	t.Parallel()

	consumer, err := NewConsumer(Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "shellbox.batches",
	})
	if err != nil {
		t.Fatalf("NewConsumer returned error: %v", err)
	}
	if err := consumer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestConsumerNextBatchParsesEnvelope(t *testing.T) {
	t.Parallel()

	envelope := batchEnvelope{
		Blocks: []blockEnvelope{
			{Language: "python", Code: "print('hi')"},
			{Language: "bash", Code: "echo hi"},
		},
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}

	reader := &fakeReader{messages: []kafkago.Message{{Key: []byte("batch-1"), Value: payload}}}
	consumer := newConsumer(reader)

	batch, err := consumer.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch returned error: %v", err)
	}

	if batch.ID != "batch-1" {
		t.Fatalf("expected batch ID from key, got %q", batch.ID)
	}
	if len(batch.Blocks) != 2 {
		t.Fatalf("expected two blocks, got %d", len(batch.Blocks))
	}
	if batch.Blocks[0].Language != "python" || batch.Blocks[0].Code != "print('hi')" {
		t.Fatalf("unexpected first block: %+v", batch.Blocks[0])
	}
}

func TestConsumerNextBatchIDFallback(t *testing.T) {
	t.Parallel()

	envelope := batchEnvelope{Blocks: []blockEnvelope{{Language: "bash", Code: "true"}}}
	payload, _ := json.Marshal(envelope)

	// No envelope ID and no message key: the topic and offset must be
	// enough to correlate the result.
	reader := &fakeReader{messages: []kafkago.Message{{Topic: "shellbox.batches", Offset: 42, Value: payload}}}
	consumer := newConsumer(reader)

	batch, err := consumer.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch returned error: %v", err)
	}
	if batch.ID != "shellbox.batches:42" {
		t.Fatalf("expected topic:offset fallback ID, got %q", batch.ID)
	}
}

func TestConsumerNextBatchValidationErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		envelope batchEnvelope
		match    string
	}{
		{
			name:     "missing blocks",
			envelope: batchEnvelope{ID: "batch-1"},
			match:    "missing blocks",
		},
		{
			name: "block missing language",
			envelope: batchEnvelope{
				Blocks: []blockEnvelope{{Code: "print('hi')"}},
			},
			match: "missing language",
		},
		{
			name: "unknown type",
			envelope: batchEnvelope{
				Type:   "weird",
				Blocks: []blockEnvelope{{Language: "python", Code: "print('hi')"}},
			},
			match: "unknown message type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			payload, err := json.Marshal(tc.envelope)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			reader := &fakeReader{messages: []kafkago.Message{{Value: payload}}}
			consumer := newConsumer(reader)

			_, err = consumer.NextBatch(context.Background())
			if err == nil || !strings.Contains(err.Error(), tc.match) {
				t.Fatalf("expected error containing %q, got %v", tc.match, err)
			}
		})
	}
}

func TestConsumerNextBatchDoneMessage(t *testing.T) {
	t.Parallel()

	envelope := batchEnvelope{Type: messageTypeDone}
	payload, _ := json.Marshal(envelope)
	reader := &fakeReader{messages: []kafkago.Message{{Value: payload}}}
	consumer := newConsumer(reader)

	_, err := consumer.NextBatch(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for done message, got %v", err)
	}
}

func TestConsumerCloseProxiesUnderlyingReader(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	consumer := newConsumer(reader)

	if err := consumer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !reader.closed {
		t.Fatalf("expected reader to be closed")
	}
}

func TestPublisherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewPublisher(PublisherConfig{}); err == nil {
		t.Fatalf("expected error when brokers missing")
	}
	if _, err := NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error when topic missing")
	}
}

func TestNewPublisherValidConfig(t *testing.T) {
	t.Parallel()

	publisher, err := NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}, Topic: "shellbox.results"})
	if err != nil {
		t.Fatalf("NewPublisher returned error: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestPublisherPublishesReport(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	publisher := newPublisher(writer)

	report := intake.Report{
		Batch: intake.Batch{ID: "batch-42"},
		Run: &model.Run{
			ID:        "run-7",
			Blocks:    2,
			ExitCode:  124,
			Output:    "partial\nTimeout",
			FirstFile: "/tmp/work/tmp_code_abc.python",
			Duration:  1500 * time.Millisecond,
		},
	}

	if err := publisher.Publish(context.Background(), report); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	if string(writer.messages[0].Key) != "batch-42" {
		t.Fatalf("expected message keyed by batch ID, got %q", writer.messages[0].Key)
	}

	var envelope resultEnvelope
	if err := json.Unmarshal(writer.messages[0].Value, &envelope); err != nil {
		t.Fatalf("failed to unmarshal result envelope: %v", err)
	}

	if envelope.ID != "batch-42" {
		t.Fatalf("unexpected ID in envelope: %q", envelope.ID)
	}
	if envelope.RunID != "run-7" {
		t.Fatalf("unexpected run ID: %q", envelope.RunID)
	}
	if envelope.ExitCode == nil || *envelope.ExitCode != 124 {
		t.Fatalf("expected exit code 124")
	}
	if envelope.Output != "partial\nTimeout" {
		t.Fatalf("unexpected output: %q", envelope.Output)
	}
	if envelope.DurationMs == nil || *envelope.DurationMs != 1500 {
		t.Fatalf("expected duration 1500ms")
	}
	if envelope.Error != "" {
		t.Fatalf("expected no error, got %q", envelope.Error)
	}

	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestPublisherPublishesRejection(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	publisher := newPublisher(writer)

	report := intake.Report{
		Batch: intake.Batch{ID: "batch-43"},
		Err:   errors.New("environment is failed"),
	}

	if err := publisher.Publish(context.Background(), report); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	var envelope resultEnvelope
	if err := json.Unmarshal(writer.messages[0].Value, &envelope); err != nil {
		t.Fatalf("failed to unmarshal result envelope: %v", err)
	}

	if envelope.Error != "environment is failed" {
		t.Fatalf("expected propagated error, got %q", envelope.Error)
	}
	if envelope.ExitCode != nil {
		t.Fatalf("rejected batch should carry no exit code")
	}
}

func TestPublisherCloseWithNilWriter(t *testing.T) {
	t.Parallel()

	publisher := &Publisher{}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close should succeed when writer nil, got %v", err)
	}
}

func TestPublisherPublishErrors(t *testing.T) {
	t.Parallel()

	t.Run("writer nil", func(t *testing.T) {
		publisher := &Publisher{}
		err := publisher.Publish(context.Background(), intake.Report{})
		if err == nil || !strings.Contains(err.Error(), "not initialized") {
			t.Fatalf("expected not initialized error, got %v", err)
		}
	})

	t.Run("writer failure", func(t *testing.T) {
		publisher := newPublisher(&fakeWriter{err: errors.New("boom")})
		err := publisher.Publish(context.Background(), intake.Report{Batch: intake.Batch{ID: "123"}})
		if err == nil || !strings.Contains(err.Error(), "write message") {
			t.Fatalf("expected write failure, got %v", err)
		}
	})
}

type fakeReader struct {
	messages []kafkago.Message
	err      error
	index    int
	closed   bool
}

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	if r.index < len(r.messages) {
		msg := r.messages[r.index]
		r.index++
		return msg, nil
	}
	if r.err != nil {
		return kafkago.Message{}, r.err
	}
	return kafkago.Message{}, io.EOF
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}
