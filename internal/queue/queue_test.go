package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/spigell/resume-screener/internal/ai"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records map[uint64]*ackRecord
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{records: map[uint64]*ackRecord{}}
}

func (f *fakeAcknowledger) record(tag uint64) *ackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[tag] == nil {
		f.records[tag] = &ackRecord{}
	}
	return f.records[tag]
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.record(tag).acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	r := f.record(tag)
	r.nacked = true
	r.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type fakeChannel struct {
	published  []amqp.Publishing
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Qos(int, int, bool) error { return nil }
func (c *fakeChannel) Close() error             { return nil }

func TestPublishEncodesRequest(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	r := &RabbitMQ{channel: ch, queue: DefaultQueue, logger: zap.NewNop()}

	if err := r.Publish(context.Background(), Request{OwnerID: "u1", JobID: "j1", ResumeIDs: []string{"r1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.published))
	}

	msg := ch.published[0]
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing %+v", msg)
	}
	var got Request
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.JobID != "j1" || got.RequestedAt.IsZero() {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestConsumeAcksAndRequeues(t *testing.T) {
	t.Parallel()

	acker := newFakeAcknowledger()
	deliveries := make(chan amqp.Delivery, 4)
	body := func(job string) []byte {
		b, _ := json.Marshal(Request{OwnerID: "u1", JobID: job, ResumeIDs: []string{"r1"}})
		return b
	}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: body("ok")}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: body("throttled")}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: body("quota")}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 4, Body: []byte("{not json")}
	close(deliveries)

	r := &RabbitMQ{channel: &fakeChannel{deliveries: deliveries}, queue: DefaultQueue, logger: zap.NewNop()}

	err := r.Consume(context.Background(), func(_ context.Context, req Request) error {
		switch req.JobID {
		case "throttled":
			return ai.NewError(ai.KindRateLimited, "stub", nil)
		case "quota":
			return ai.NewError(ai.KindQuotaExceeded, "stub", nil)
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected error when deliveries close")
	}

	tests := []struct {
		tag     uint64
		acked   bool
		requeue bool
	}{
		{tag: 1, acked: true},
		{tag: 2, requeue: true},
		{tag: 3},
		{tag: 4},
	}
	for _, tt := range tests {
		rec := acker.record(tt.tag)
		if rec.acked != tt.acked {
			t.Fatalf("tag %d: expected acked=%v, got %v", tt.tag, tt.acked, rec.acked)
		}
		if !tt.acked && (!rec.nacked || rec.requeue != tt.requeue) {
			t.Fatalf("tag %d: expected nack requeue=%v, got %+v", tt.tag, tt.requeue, rec)
		}
	}
}

func TestConsumeStopsOnContext(t *testing.T) {
	t.Parallel()

	r := &RabbitMQ{channel: &fakeChannel{deliveries: make(chan amqp.Delivery)}, queue: DefaultQueue, logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Consume(ctx, func(context.Context, Request) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestShouldRequeue(t *testing.T) {
	t.Parallel()

	if shouldRequeue(errors.New("job not found")) {
		t.Fatalf("expected plain errors not to requeue")
	}
	if !shouldRequeue(context.DeadlineExceeded) {
		t.Fatalf("expected timeouts to requeue")
	}
	if shouldRequeue(ai.NewError(ai.KindMissingCredentials, "", nil)) {
		t.Fatalf("expected missing credentials not to requeue")
	}
}
