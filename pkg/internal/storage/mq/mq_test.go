package mq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

func TestMemoryPublishRawPayload(t *testing.T) {
	ps := NewMemoryPubSub(watermill.NopLogger{})
	client := NewClient(ps, ps, watermill.NopLogger{})

	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := client.Subscribe(ctx, "FORM_DATA_TAG_THEME")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	out := message.NewMessage(watermill.NewUUID(), []byte("rec-1"))
	out.Metadata.Set("trace_id", "t-1")

	if err := client.Publish(ctx, "FORM_DATA_TAG_THEME", out); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-msgs:
		if string(got.Payload) != "rec-1" {
			t.Fatalf("payload = %q, want rec-1", got.Payload)
		}

		if got.Metadata.Get("trace_id") != "t-1" {
			t.Fatalf("trace_id = %q", got.Metadata.Get("trace_id"))
		}

		got.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestMemoryNackRedelivers(t *testing.T) {
	ps := NewMemoryPubSub(watermill.NopLogger{})
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := ps.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := ps.Publish("topic", message.NewMessage(watermill.NewUUID(), []byte("rec-2"))); err != nil {
		t.Fatalf("publish: %v", err)
	}

	first := <-msgs
	first.Nack()

	select {
	case second := <-msgs:
		if string(second.Payload) != "rec-2" {
			t.Fatalf("redelivered payload = %q", second.Payload)
		}

		second.Ack()
	case <-ctx.Done():
		t.Fatal("nacked message not redelivered")
	}
}

func TestRedisStreamAckAndRedeliver(t *testing.T) {
	if os.Getenv("ENABLE_REDIS_TEST") == "" {
		t.Skip("set ENABLE_REDIS_TEST=1 to run against a local redis")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	topic := "storyvault-test-" + watermill.NewShortUUID()
	pubClient := redis.NewClient(&redis.Options{Addr: addr})
	subClient := redis.NewClient(&redis.Options{Addr: addr})

	defer pubClient.Del(context.Background(), topic)

	pub := NewRedisPublisher(pubClient, 1000)
	sub := NewRedisSubscriber(subClient, RedisStreamConfig{
		Group:    "test",
		Consumer: "c1",
		Block:    200 * time.Millisecond,
		NakDelay: 10 * time.Millisecond,
	}, nil)

	defer pub.Close()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	out := message.NewMessage(watermill.NewUUID(), []byte("rec-3"))
	out.SetContext(ctx)

	if err := pub.Publish(topic, out); err != nil {
		t.Fatalf("publish: %v", err)
	}

	first := <-msgs
	if string(first.Payload) != "rec-3" {
		t.Fatalf("payload = %q", first.Payload)
	}

	first.Nack()

	second := <-msgs
	if second.UUID != out.UUID {
		t.Fatalf("redelivered uuid = %s, want %s", second.UUID, out.UUID)
	}

	second.Ack()

	time.Sleep(100 * time.Millisecond)

	pending, err := pubClient.XPending(ctx, topic, "test").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}

	if pending.Count != 0 {
		t.Fatalf("pending = %d, want 0", pending.Count)
	}
}
