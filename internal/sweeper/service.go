// Package sweeper closes DELIVERED orders whose rentals have fully elapsed.
// The block rows already stopped new bookings during the window, so this is
// bookkeeping only and safe to run any number of times.
package sweeper

import (
	"context"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/infoanil/toy-rental-service/internal/kafka"
	"github.com/infoanil/toy-rental-service/internal/rental"
)

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Engine      *rental.Service
	Producer    Publisher // nil disables event publishing
	ServiceName string
}

// Run performs one sweep and returns the ids of the orders it closed.
func (s *Service) Run(ctx context.Context) ([]int64, error) {
	ids, err := s.Engine.CloseElapsed(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.publishClosed(ctx, id)
	}
	return ids, nil
}

func (s *Service) publishClosed(ctx context.Context, orderID int64) {
	if s.Producer == nil {
		return
	}
	o, _, err := s.Engine.GetOrder(ctx, orderID)
	if err != nil {
		log.Printf("sweeper: load closed order %d: %v", orderID, err)
		return
	}
	ev := rental.NewEnvelope(rental.EventOrderClosed, s.ServiceName, "", o.ID,
		rental.OrderStatusPayload{OrderID: o.ID, OrderNumber: o.OrderNumber, Status: o.Status})
	s.Producer.Publish(rental.TopicOrderClosed, rental.PartitionKey(o.ID), kafkax.MustMarshal(ev))
}

// Loop runs a sweep immediately and then on every tick until the context
// is cancelled.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		ids, err := s.Run(ctx)
		if err != nil {
			log.Printf("sweep: %v", err)
		} else if len(ids) > 0 {
			log.Printf("sweep: closed %d orders", len(ids))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
