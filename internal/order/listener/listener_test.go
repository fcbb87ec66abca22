package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/order/dto"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

type queueReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	failures int
}

func (r *queueReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

type recordingUseCase struct {
	mu      sync.Mutex
	applied []model.OrderStatus
	orders  []int64
	done    chan struct{}
}

func (u *recordingUseCase) CreateOrder(context.Context, *dto.CreateOrderInput) (*model.Order, error) {
	return nil, errors.New("not used")
}

func (u *recordingUseCase) GetOrder(context.Context, int64) (*model.Order, error) {
	return nil, errors.New("not used")
}

func (u *recordingUseCase) ListOrders(context.Context, *dto.OrderFilters) ([]model.Order, int, error) {
	return nil, 0, errors.New("not used")
}

func (u *recordingUseCase) UpdateOrderState(_ context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.applied = append(u.applied, status)
	u.orders = append(u.orders, id)
	if len(u.applied) == 2 {
		close(u.done)
	}
	return &model.Order{ID: id, Status: status}, nil
}

func (u *recordingUseCase) CancelOrder(context.Context, int64) (*model.Order, error) {
	return nil, errors.New("not used")
}

func TestShippingListener_AppliesShipmentEvents(t *testing.T) {
	reader := &queueReader{
		failures: 1,
		messages: []kafka.Message{
			{Value: []byte(`{"event_type":"ShipmentDispatched","order_id":4}`)},
			{Value: []byte(`not json`)},
			{Value: []byte(`{"event_type":"ShipmentScheduled","order_id":4}`)},
			{Value: []byte(`{"event_type":"ShipmentDelivered","order_id":4}`)},
		},
	}
	uc := &recordingUseCase{done: make(chan struct{})}

	l := NewShippingListener(reader, uc, logger.NewNop())
	l.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(stopped)
	}()

	select {
	case <-uc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("shipment events were not applied")
	}
	cancel()
	<-stopped

	require.Len(t, uc.applied, 2)
	assert.Equal(t, []model.OrderStatus{model.OrderInTransit, model.OrderDelivered}, uc.applied)
	assert.Equal(t, []int64{4, 4}, uc.orders)
}
