package rtc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/isqad/webinar-sfu/internal/engine"
	"github.com/isqad/webinar-sfu/internal/telemetry"
)

// videoSimulcastEncodings is the fixed layering policy applied to every
// video producer. Audio gets no layering.
var videoSimulcastEncodings = []engine.RtpEncodingParameters{
	{Rid: "high", MaxBitrate: 1000000, ScalabilityMode: "S3T3"},
	{Rid: "mid", MaxBitrate: 500000, ScalabilityMode: "S2T3"},
	{Rid: "low", MaxBitrate: 150000, ScalabilityMode: "S1T3"},
}

// ValidateSimulcastBounds checks the fixed layer table against the
// configured bitrate envelope. Configuration cannot change the table,
// it can only reject a deployment that cannot honor it.
func ValidateSimulcastBounds(layers int, maxBitrate, minBitrate uint32) error {
	if layers != len(videoSimulcastEncodings) {
		return fmt.Errorf("simulcast layer count %d does not match the fixed policy of %d", layers, len(videoSimulcastEncodings))
	}
	for _, enc := range videoSimulcastEncodings {
		if enc.MaxBitrate > maxBitrate || enc.MaxBitrate < minBitrate {
			return fmt.Errorf("simulcast layer %q bitrate %d outside configured bounds [%d, %d]",
				enc.Rid, enc.MaxBitrate, minBitrate, maxBitrate)
		}
	}
	return nil
}

// CreateTransport asks the engine for a send or recv transport and
// registers it under the peer. The returned negotiation parameters are
// relayed to the client untouched.
func (r *Room) CreateTransport(ctx context.Context, peerID string, direction engine.TransportDirection, listenIP, announcedIP string) (*engine.TransportInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomNotFound
	}
	peer, ok := r.peers[peerID]
	if !ok {
		return nil, ErrPeerNotFound
	}

	info, err := r.worker.handle.CreateTransport(ctx, engine.TransportOptions{
		Direction:   direction,
		ListenIP:    listenIP,
		AnnouncedIP: announcedIP,
	})
	if err != nil {
		telemetry.ServiceOperationCounter.WithLabelValues("create_transport", "error", "engine").Add(1)
		return nil, err
	}

	transport := &Transport{
		ID:        info.ID,
		PeerID:    peerID,
		Direction: direction,
		State:     TransportCreated,
		Info:      info,
	}
	r.transports[transport.ID] = transport
	peer.transports[transport.ID] = transport

	log.Debug().Str("service", "rtc").Str("roomID", r.ID).Str("peerID", peerID).
		Str("transportID", transport.ID).Str("direction", string(direction)).Msg("transport created")

	return info, nil
}

// ConnectTransport completes the DTLS handshake. The engine decides
// whether a second connect for the same transport is meaningful, the
// orchestrator does not retry.
func (r *Room) ConnectTransport(ctx context.Context, transportID string, dtls engine.DtlsParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	transport, ok := r.transports[transportID]
	if !ok {
		return ErrTransportNotFound
	}

	transport.State = TransportConnecting
	if err := r.worker.handle.ConnectTransport(ctx, transportID, dtls); err != nil {
		telemetry.ServiceOperationCounter.WithLabelValues("connect_transport", "error", "engine").Add(1)
		return err
	}
	transport.State = TransportConnected

	return nil
}

// Produce creates a producer on the given send transport. Video is
// always published with the three-layer simulcast policy.
func (r *Room) Produce(ctx context.Context, transportID string, kind engine.MediaKind, rtpParameters engine.RtpParameters, appData engine.H) (*Producer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	transport, ok := r.transports[transportID]
	if !ok {
		return nil, ErrTransportNotFound
	}

	var encodings []engine.RtpEncodingParameters
	if kind == engine.VideoKind {
		encodings = videoSimulcastEncodings
	}

	info, err := r.worker.handle.Produce(ctx, engine.ProduceOptions{
		TransportID:   transportID,
		Kind:          kind,
		RtpParameters: rtpParameters,
		Encodings:     encodings,
		AppData:       appData,
	})
	if err != nil {
		telemetry.ServiceOperationCounter.WithLabelValues("produce", "error", "engine").Add(1)
		return nil, err
	}

	producer := &Producer{
		ID:          info.ID,
		PeerID:      transport.PeerID,
		TransportID: transportID,
		Kind:        kind,
		Encodings:   encodings,
		AppData:     appData,
	}
	r.producers[producer.ID] = producer
	if peer, ok := r.peers[transport.PeerID]; ok {
		peer.producers[producer.ID] = producer
	}

	log.Debug().Str("service", "rtc").Str("roomID", r.ID).Str("peerID", transport.PeerID).
		Str("producerID", producer.ID).Str("kind", string(kind)).Msg("producer created")

	return producer, nil
}

// Consume creates an unpaused consumer for producerID on the given recv
// transport, after the engine confirmed capability compatibility.
// Nothing is registered when the capability check fails.
func (r *Room) Consume(ctx context.Context, transportID, producerID string, caps engine.RtpCapabilities) (*engine.ConsumerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	transport, ok := r.transports[transportID]
	if !ok {
		return nil, ErrTransportNotFound
	}
	if _, ok := r.producers[producerID]; !ok {
		return nil, ErrProducerNotFound
	}

	if !r.worker.handle.CanConsume(producerID, caps) {
		telemetry.ServiceOperationCounter.WithLabelValues("consume", "error", "capability_mismatch").Add(1)
		return nil, ErrCapabilityMismatch
	}

	info, err := r.worker.handle.Consume(ctx, engine.ConsumeOptions{
		TransportID:     transportID,
		ProducerID:      producerID,
		RtpCapabilities: caps,
		Paused:          false,
	})
	if err != nil {
		telemetry.ServiceOperationCounter.WithLabelValues("consume", "error", "engine").Add(1)
		return nil, err
	}

	consumer := &Consumer{
		ID:          info.ID,
		PeerID:      transport.PeerID,
		TransportID: transportID,
		ProducerID:  producerID,
	}
	r.consumers[consumer.ID] = consumer
	if peer, ok := r.peers[transport.PeerID]; ok {
		peer.consumers[consumer.ID] = consumer
	}

	return info, nil
}

// CloseProducer closes the producer explicitly, cascading to all of its
// consumers.
func (r *Room) CloseProducer(ctx context.Context, producerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.producers[producerID]; !ok {
		return ErrProducerNotFound
	}
	r.closeProducerLocked(ctx, producerID)

	return nil
}

// FindProducer returns a registered producer.
func (r *Room) FindProducer(producerID string) (*Producer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	producer, ok := r.producers[producerID]
	if !ok {
		return nil, ErrProducerNotFound
	}
	return producer, nil
}

// FindConsumer returns a registered consumer.
func (r *Room) FindConsumer(consumerID string) (*Consumer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	consumer, ok := r.consumers[consumerID]
	if !ok {
		return nil, ErrConsumerNotFound
	}
	return consumer, nil
}

// FindTransport returns a registered transport.
func (r *Room) FindTransport(transportID string) (*Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	transport, ok := r.transports[transportID]
	if !ok {
		return nil, ErrTransportNotFound
	}
	return transport, nil
}
