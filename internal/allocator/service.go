// Package allocator is the automated confirmation worker: it consumes
// OrderPlaced events and runs the same allocation transaction an operator
// would trigger over HTTP.
package allocator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/infoanil/toy-rental-service/internal/kafka"
	"github.com/infoanil/toy-rental-service/internal/redisx"
	"github.com/infoanil/toy-rental-service/internal/rental"
)

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Engine      *rental.Service
	Redis       *redis.Client // nil disables event dedup
	Producer    Publisher
	ServiceName string
}

// HandleOrderPlaced is the consumer handler. A nil return commits the
// offset, so only storage-level failures propagate: rejections are terminal
// outcomes that get published, not retried.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env rental.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != rental.EventOrderPlaced {
		return nil
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "allocator", env.EventID)
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafkax.UnwrapPayload[rental.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	res, err := s.Engine.Confirm(ctx, p.OrderID)
	if err == nil {
		s.cacheStatus(ctx, res.Order.ID, res.Order.Status)
		s.publishConfirmed(env.TraceID, res)
		return nil
	}

	var ne *rental.NoUnitError
	switch {
	case errors.As(err, &ne):
		s.publishRejected(env.TraceID, p.OrderID, rental.AllocationRejectedPayload{
			OrderID:   p.OrderID,
			Reason:    rental.RejectReasonNoUnit,
			ProductID: ne.ProductID,
			StartDate: rental.FormatDate(ne.Start),
			EndDate:   rental.FormatDate(ne.End),
		})
		return nil
	case errors.Is(err, rental.ErrLockTimeout):
		s.publishRejected(env.TraceID, p.OrderID, rental.AllocationRejectedPayload{
			OrderID: p.OrderID,
			Reason:  rental.RejectReasonLockTimeout,
		})
		return nil
	default:
		var pe *rental.PreconditionError
		if errors.As(err, &pe) || errors.Is(err, rental.ErrOrderNotFound) {
			// Already confirmed/cancelled elsewhere, or a replay of a
			// deleted order. Nothing left to do.
			return nil
		}
		return err
	}
}

func (s *Service) publishConfirmed(trace string, res rental.AllocationResult) {
	units := make([]rental.AllocatedUnitPayload, 0, len(res.Units))
	for _, u := range res.Units {
		units = append(units, rental.AllocatedUnitPayload{
			OrderItemID:     u.ItemID,
			ProductID:       u.ProductID,
			InventoryUnitID: u.InventoryUnitID,
			StartDate:       rental.FormatDate(u.StartDate),
			EndDate:         rental.FormatDate(u.EndDate),
		})
	}
	ev := rental.NewEnvelope(rental.EventOrderConfirmed, s.ServiceName, trace, res.Order.ID,
		rental.OrderConfirmedPayload{
			OrderID:     res.Order.ID,
			OrderNumber: res.Order.OrderNumber,
			Units:       units,
		})
	s.Producer.Publish(rental.TopicOrderConfirmed, rental.PartitionKey(res.Order.ID), kafkax.MustMarshal(ev))
}

func (s *Service) publishRejected(trace string, orderID int64, payload rental.AllocationRejectedPayload) {
	ev := rental.NewEnvelope(rental.EventAllocationRejected, s.ServiceName, trace, orderID, payload)
	s.Producer.Publish(rental.TopicOrderRejected, rental.PartitionKey(orderID), kafkax.MustMarshal(ev))
}

func (s *Service) cacheStatus(ctx context.Context, orderID int64, status rental.Status) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = s.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, status), redisx.TTLStatusCache).Err()
}
