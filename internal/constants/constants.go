package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultEventsTopic = "customer-events"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const (
	AggregateTypeCustomer = "CUSTOMER"

	EventTypeCustomerCreated = "CUSTOMER_CREATED"
)

const (
	StubMaxDelayMs = 30000
)
