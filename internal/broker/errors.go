package broker

import "errors"

var (
	// ErrTopicExists is returned by CreateTopic for a duplicate name.
	ErrTopicExists = errors.New("broker: topic already exists")

	// ErrTopicNotFound is returned when an operation targets a topic that
	// does not exist.
	ErrTopicNotFound = errors.New("broker: topic not found")

	// ErrEmptyTopicName is returned by CreateTopic for a name that is empty
	// after trimming.
	ErrEmptyTopicName = errors.New("broker: topic name must not be empty")

	// ErrNotSubscribed is returned by Unsubscribe when the (client, topic)
	// pair is not currently joined.
	ErrNotSubscribed = errors.New("broker: client not subscribed to topic")

	// ErrClosed is returned once the registry has been shut down.
	ErrClosed = errors.New("broker: registry closed")

	// ErrTransportBusy is returned by Transport.TrySend when the transport
	// buffer cannot accept a frame without blocking.
	ErrTransportBusy = errors.New("broker: transport buffer full")

	// ErrTransportClosed is returned by Transport.TrySend after the
	// underlying connection is gone.
	ErrTransportClosed = errors.New("broker: transport closed")
)
