package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaPublisherFlushesOnClose(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, "storefront-api", 16, zerolog.Nop())
	p.Start()

	for i := 0; i < 3; i++ {
		err := p.Publish(context.Background(), TypeOrderCreated, "ORD-1", OrderCreatedPayload{OrderID: 1, OrderNumber: "ORD-1"})
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	p.Close()

	if len(w.msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(w.msgs))
	}
	if !w.closed {
		t.Error("Writer should be closed")
	}

	var env Envelope
	if err := json.Unmarshal(w.msgs[0].Value, &env); err != nil {
		t.Fatalf("Decode envelope: %v", err)
	}
	if env.EventType != TypeOrderCreated || env.Producer != "storefront-api" || env.EventID == "" {
		t.Errorf("Unexpected envelope %+v", env)
	}
	if string(w.msgs[0].Key) != "ORD-1" {
		t.Errorf("Expected key ORD-1, got %s", w.msgs[0].Key)
	}
}

func TestKafkaPublisherAfterClose(t *testing.T) {
	p := newKafkaPublisher(&recordingWriter{}, "storefront-api", 1, zerolog.Nop())
	p.Start()
	p.Close()

	err := p.Publish(context.Background(), TypeOrderCreated, "ORD-1", OrderCreatedPayload{})
	if !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Expected ErrPublisherClosed, got %v", err)
	}
}

func TestKafkaPublisherBufferFull(t *testing.T) {
	p := newKafkaPublisher(&recordingWriter{}, "storefront-api", 1, zerolog.Nop())

	if err := p.Publish(context.Background(), TypeOrderCreated, "a", nil); err != nil {
		t.Fatalf("First publish: %v", err)
	}
	if err := p.Publish(context.Background(), TypeOrderCreated, "b", nil); !errors.Is(err, ErrBufferFull) {
		t.Errorf("Expected ErrBufferFull, got %v", err)
	}
}

func TestKafkaPublisherPublishDuringClose(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, "storefront-api", 64, zerolog.Nop())
	p.Start()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				err := p.Publish(context.Background(), TypeOrderCreated, "ORD-1", nil)
				switch {
				case err == nil:
					mu.Lock()
					accepted++
					mu.Unlock()
				case errors.Is(err, ErrPublisherClosed), errors.Is(err, ErrBufferFull):
				default:
					t.Errorf("Unexpected error: %v", err)
				}
			}
		}()
	}

	close(start)
	p.Close()
	wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) != accepted {
		t.Errorf("Expected every accepted event written, got %d of %d", len(w.msgs), accepted)
	}
}
