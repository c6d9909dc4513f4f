package rental

import "strconv"

const (
	TopicOrderPlaced    = "rental.order.placed"
	TopicOrderConfirmed = "rental.order.confirmed"
	TopicOrderRejected  = "rental.order.rejected"
	TopicOrderDelivered = "rental.order.delivered"
	TopicOrderCancelled = "rental.order.cancelled"
	TopicOrderClosed    = "rental.order.closed"
)

// Partition key = order id so every event of one order keeps its order.
func PartitionKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
