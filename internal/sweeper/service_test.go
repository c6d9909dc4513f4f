package sweeper

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infoanil/toy-rental-service/internal/rental"
	"github.com/infoanil/toy-rental-service/internal/rental/memory"
)

type fakeProducer struct {
	mu     sync.Mutex
	topics []string
	values [][]byte
}

func (f *fakeProducer) Publish(topic string, _, value []byte, _ ...kafkago.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.values = append(f.values, value)
}

func d(s string) time.Time {
	t, err := rental.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func deliveredOrder(t *testing.T, store *memory.Store, engine *rental.Service, planID int64, productID int64, start string) rental.Order {
	t.Helper()
	ctx := context.Background()
	o, _, err := engine.PlaceOrder(ctx, rental.PlaceOrderRequest{
		UserID: 3,
		Items:  []rental.PlaceOrderItem{{ProductID: productID, PlanID: planID, StartDate: d(start)}},
	})
	require.NoError(t, err)
	_, err = engine.Confirm(ctx, o.ID)
	require.NoError(t, err)
	_, err = engine.MarkDelivered(ctx, o.ID)
	require.NoError(t, err)
	return o
}

func TestRun_ClosesElapsedAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.Config{BufferDays: 1})
	engine := rental.NewService(store, rental.Config{BufferDays: 1}).
		WithClock(func() time.Time { return d("2025-02-01") })

	p := store.SeedProduct("rocking horse")
	plan := store.SeedPlan(p.ID, 5, 200)
	for i := 0; i < 2; i++ {
		_, err := store.AddUnit(ctx, p.ID)
		require.NoError(t, err)
	}

	past := deliveredOrder(t, store, engine, plan.ID, p.ID, "2025-01-01")
	running := deliveredOrder(t, store, engine, plan.ID, p.ID, "2025-01-30")

	prod := &fakeProducer{}
	svc := &Service{Engine: engine, Producer: prod, ServiceName: "rental-sweeper"}

	ids, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{past.ID}, ids)

	got, _, err := engine.GetOrder(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusClosed, got.Status)

	got, _, err = engine.GetOrder(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusDelivered, got.Status)

	require.Len(t, prod.topics, 1)
	assert.Equal(t, rental.TopicOrderClosed, prod.topics[0])
	var env rental.Envelope
	require.NoError(t, json.Unmarshal(prod.values[0], &env))
	assert.Equal(t, rental.EventOrderClosed, env.EventType)
	var payload rental.OrderStatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, past.ID, payload.OrderID)
	assert.Equal(t, rental.StatusClosed, payload.Status)

	// Second run finds nothing and publishes nothing.
	ids, err = svc.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, prod.topics, 1)
}

func TestRun_NilProducer(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.Config{BufferDays: 1})
	engine := rental.NewService(store, rental.Config{BufferDays: 1}).
		WithClock(func() time.Time { return d("2025-02-01") })

	p := store.SeedProduct("train table")
	plan := store.SeedPlan(p.ID, 5, 200)
	_, err := store.AddUnit(ctx, p.ID)
	require.NoError(t, err)
	past := deliveredOrder(t, store, engine, plan.ID, p.ID, "2025-01-01")

	svc := &Service{Engine: engine, ServiceName: "rental-sweeper"}
	ids, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{past.ID}, ids)
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	store := memory.NewStore(memory.Config{BufferDays: 1})
	engine := rental.NewService(store, rental.Config{BufferDays: 1})
	svc := &Service{Engine: engine, ServiceName: "rental-sweeper"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Loop(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}
