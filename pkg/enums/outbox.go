package enums

// OutboxAggregateType maps to the aggregate_type column in outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
	AggregateCart  OutboxAggregateType = "cart"
)

var aggregateTypes = closedSet[OutboxAggregateType]{AggregateOrder, AggregateCart}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value, false)
}

// OutboxEventType maps to the event_type column and to the event_type
// attribute downstream consumers filter on.
type OutboxEventType string

const (
	EventOrderCreated   OutboxEventType = "order_created"
	EventOrderPaid      OutboxEventType = "order_paid"
	EventOrderDelivered OutboxEventType = "order_delivered"
	EventCartAdopted    OutboxEventType = "cart_adopted"
)

var outboxEventTypes = closedSet[OutboxEventType]{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderDelivered,
	EventCartAdopted,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse("event type", value, false)
}
