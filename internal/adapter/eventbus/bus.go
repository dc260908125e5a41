package eventbus

import (
	"context"
	"errors"
)

var (
	ErrBusClosed = errors.New("event bus closed")
	ErrQueueFull = errors.New("snapshot queue full")
	ErrNoBroker  = errors.New("no broker configured")
)

const (
	contentTypeJSON     = "application/json"
	contentTypeProtobuf = "application/x-protobuf"
)

// Message is an encoded event ready for the broker.
type Message struct {
	ID          string
	Topic       string
	Key         string
	Value       []byte
	ContentType string
}

// Bus delivers one message and reports whether the broker acknowledged it.
type Bus interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}
