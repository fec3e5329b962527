package engine

import (
	"context"
	"errors"
	"fmt"
)

var ErrEngineClosed = errors.New("engine handle is closed")

// EngineError is a rejection reported by the media engine itself, e.g. a
// failed DTLS handshake. It is distinct from transport-level failures of
// the engine channel.
type EngineError struct {
	Method string
	Reason string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine rejected %s: %s", e.Method, e.Reason)
}

// IsAlreadyClosed reports whether err is the engine telling us the entity
// was gone already. Cleanup cascades treat this as success.
func IsAlreadyClosed(err error) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Reason == "already closed"
	}
	return errors.Is(err, ErrEngineClosed)
}

// Handle is one initialized media engine instance. It performs all
// RTP/ICE/DTLS mechanics; the orchestrator only drives its lifecycle.
type Handle interface {
	// RouterRtpCapabilities returns the codec set this instance negotiates.
	RouterRtpCapabilities() RtpCapabilities

	CreateTransport(ctx context.Context, opts TransportOptions) (*TransportInfo, error)
	ConnectTransport(ctx context.Context, transportID string, dtls DtlsParameters) error
	CloseTransport(ctx context.Context, transportID string) error

	Produce(ctx context.Context, opts ProduceOptions) (*ProducerInfo, error)
	CloseProducer(ctx context.Context, producerID string) error

	Consume(ctx context.Context, opts ConsumeOptions) (*ConsumerInfo, error)
	CloseConsumer(ctx context.Context, consumerID string) error

	// CanConsume answers whether the given capabilities are compatible
	// with the producer's negotiated parameters.
	CanConsume(producerID string, caps RtpCapabilities) bool

	// Died is closed when the engine instance terminates unexpectedly.
	Died() <-chan error

	Close() error
}
