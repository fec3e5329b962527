package rtc

import "errors"

var (
	ErrRoomNotFound       = errors.New("room is not found")
	ErrRoomExists         = errors.New("room already exists")
	ErrRoomFull           = errors.New("room is full")
	ErrPeerNotFound       = errors.New("peer is not found")
	ErrTransportNotFound  = errors.New("transport is not found")
	ErrProducerNotFound   = errors.New("producer is not found")
	ErrConsumerNotFound   = errors.New("consumer is not found")
	ErrCapabilityMismatch = errors.New("cannot consume this producer")
	ErrUnavailable        = errors.New("worker pool is unavailable")
)
