package broker

import (
	"context"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc receives the raw message key and value. Parsing is left to the
// handler so that a malformed payload can be handled without crashing the
// subscription.
type HandlerFunc func(ctx context.Context, key, value []byte) error
