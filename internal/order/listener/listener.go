package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/internal/model"
	"github.com/fekuna/merkado-order-service/internal/order"
	"github.com/fekuna/merkado-order-service/pkg/broker"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

const (
	EventShipmentDispatched = "ShipmentDispatched"
	EventShipmentDelivered  = "ShipmentDelivered"
)

// MessageReader is satisfied by broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// ShippingListener applies the status changes reported by the delivery service.
type ShippingListener struct {
	consumer MessageReader
	uc       order.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewShippingListener(consumer MessageReader, uc order.UseCase, log logger.ZapLogger) *ShippingListener {
	return &ShippingListener{
		consumer: consumer,
		uc:       uc,
		logger:   log,
		backoff:  time.Second,
	}
}

func (l *ShippingListener) Start(ctx context.Context) {
	l.logger.Info("Starting Shipping Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Shipping Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.backoff):
				}
				continue
			}
			l.processMessage(broker.ExtractContext(ctx, msg.Headers), msg.Value)
		}
	}
}

type ShipmentEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	OrderID   int64     `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (l *ShippingListener) processMessage(ctx context.Context, value []byte) {
	var event ShipmentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	var target model.OrderStatus
	switch event.EventType {
	case EventShipmentDispatched:
		target = model.OrderInTransit
	case EventShipmentDelivered:
		target = model.OrderDelivered
	default:
		return
	}

	l.logger.Info("Processing shipment event",
		zap.String("event_type", event.EventType),
		zap.Int64("order_id", event.OrderID),
	)

	if _, err := l.uc.UpdateOrderState(ctx, event.OrderID, target); err != nil {
		l.logger.Error("Failed to apply shipment event",
			zap.String("event_id", event.EventID),
			zap.Int64("order_id", event.OrderID),
			zap.String("to", string(target)),
			zap.Error(err),
		)
	}
}
