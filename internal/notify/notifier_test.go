package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	rediscommon "dineflow/common/redis"
)

func sampleEvent() Event {
	return Event{
		Type:         EventOrderCreated,
		RestaurantID: "r1",
		OrderID:      "o1",
		OrderNumber:  "ORD-20250101-001",
		Status:       "PENDING",
		Version:      1,
		Total:        "28.58",
		OccurredAt:   time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

type recordingNotifier struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Event
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(ctx context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, ev)
	return n.err
}

func TestDispatcher_FansOutAndSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ok := &recordingNotifier{name: "ok"}
	broken := &recordingNotifier{name: "broken", err: errors.New("down")}
	d := NewDispatcher(zap.New(core), ok, broken)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, sampleEvent())
	// the caller's context ending does not stop delivery
	cancel()
	d.Close()

	assert.Len(t, ok.got, 1)
	assert.Len(t, broken.got, 1)
	warns := logs.FilterMessage("Failed to deliver order notification").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "broken", warns[0].ContextMap()["transport"])
}

func TestDispatcher_StampsOccurredAt(t *testing.T) {
	n := &recordingNotifier{name: "n"}
	d := NewDispatcher(zap.NewNop(), n)
	d.Dispatch(context.Background(), Event{Type: EventOrderCreated})
	d.Close()
	require.Len(t, n.got, 1)
	assert.False(t, n.got[0].OccurredAt.IsZero())
}

func TestDispatcher_DropsEventsAfterClose(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	n := &recordingNotifier{name: "n"}
	d := NewDispatcher(zap.New(core), n)

	d.Dispatch(context.Background(), sampleEvent())
	d.Close()
	d.Dispatch(context.Background(), sampleEvent())
	d.Close()

	assert.Len(t, n.got, 1)
	assert.Len(t, logs.FilterMessage("Dispatcher closed, dropping order notification").All(), 1)
}

func TestDispatcher_ConcurrentDispatchAndClose(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	n := &recordingNotifier{name: "n"}
	d := NewDispatcher(zap.New(core), n)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), sampleEvent())
		}()
	}
	d.Close()
	wg.Wait()

	// every event is either delivered before Close returns or dropped
	n.mu.Lock()
	delivered := len(n.got)
	n.mu.Unlock()
	dropped := logs.FilterMessage("Dispatcher closed, dropping order notification").Len()
	assert.Equal(t, 20, delivered+dropped)
}

func TestStreamNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := NewStreamNotifier(client, "orders:events")
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	msgs, err := rediscommon.ReadRange(context.Background(), client, "orders:events", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &ev))
	assert.Equal(t, "o1", ev.OrderID)
	assert.Equal(t, EventOrderCreated, ev.Type)
}

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.topic, p.qos, p.payload = topic, qos, payload
	return nil
}

func TestMQTTNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMQTTNotifier(pub, "dineflow", 1)
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	assert.Equal(t, "dineflow/r1/orders", pub.topic)
	assert.Equal(t, byte(1), pub.qos)
	assert.Contains(t, string(pub.payload), `"order_number":"ORD-20250101-001"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, n.Notify(ctx, sampleEvent()))
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func TestAMQPNotifier(t *testing.T) {
	ch := &fakeChannel{}
	n := NewAMQPNotifier(ch, "orders")
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	assert.Equal(t, "orders", ch.exchange)
	assert.Equal(t, "order.created.r1", ch.key)
	assert.Equal(t, uint8(amqp.Persistent), ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "o1:PENDING", ch.msg.MessageId)
}

func TestWebhookNotifier(t *testing.T) {
	var got Event
	var eventType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventType = r.Header.Get("X-Event-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))
	assert.Equal(t, EventOrderCreated, eventType)
	assert.Equal(t, "o1", got.OrderID)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), sampleEvent())
	assert.Error(t, err)
}
