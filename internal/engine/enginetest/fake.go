// Package enginetest provides an in-memory engine.Handle for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/isqad/webinar-sfu/internal/engine"
)

// Fake implements engine.Handle without a worker process. Entities live
// in maps, ids are sequential, and every call can be failed on demand.
type Fake struct {
	mu sync.Mutex

	nextID     int
	transports map[string]engine.TransportOptions
	producers  map[string]engine.ProduceOptions
	consumers  map[string]engine.ConsumeOptions

	// Consumable controls CanConsume. Defaults to true.
	Consumable bool
	// FailNext makes the next engine call fail with an EngineError.
	FailNext string

	died chan error
}

func New() *Fake {
	return &Fake{
		transports: make(map[string]engine.TransportOptions),
		producers:  make(map[string]engine.ProduceOptions),
		consumers:  make(map[string]engine.ConsumeOptions),
		Consumable: true,
		died:       make(chan error, 1),
	}
}

func (f *Fake) RouterRtpCapabilities() engine.RtpCapabilities {
	return engine.RtpCapabilities{
		Codecs: []engine.RtpCodecCapability{
			{Kind: engine.AudioKind, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			{Kind: engine.VideoKind, MimeType: "video/VP8", ClockRate: 90000},
		},
	}
}

func (f *Fake) CreateTransport(ctx context.Context, opts engine.TransportOptions) (*engine.TransportInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure("createTransport"); err != nil {
		return nil, err
	}

	id := f.id("transport")
	f.transports[id] = opts

	return &engine.TransportInfo{
		ID:            id,
		IceParameters: engine.IceParameters{UsernameFragment: "ufrag-" + id, Password: "pwd"},
		IceCandidates: []engine.IceCandidate{
			{Foundation: "c0", IP: opts.ListenIP, Protocol: "udp", Port: 10000, Type: "host"},
		},
		DtlsParameters: engine.DtlsParameters{
			Role:         "auto",
			Fingerprints: []engine.DtlsFingerprint{{Algorithm: "sha-256", Value: "00:11"}},
		},
	}, nil
}

func (f *Fake) ConnectTransport(ctx context.Context, transportID string, dtls engine.DtlsParameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure("connectTransport"); err != nil {
		return err
	}
	if _, ok := f.transports[transportID]; !ok {
		return &engine.EngineError{Method: "connectTransport", Reason: "transport not found"}
	}
	return nil
}

func (f *Fake) CloseTransport(ctx context.Context, transportID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.transports[transportID]; !ok {
		return &engine.EngineError{Method: "closeTransport", Reason: "already closed"}
	}
	delete(f.transports, transportID)
	return nil
}

func (f *Fake) Produce(ctx context.Context, opts engine.ProduceOptions) (*engine.ProducerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure("produce"); err != nil {
		return nil, err
	}

	id := f.id("producer")
	f.producers[id] = opts

	return &engine.ProducerInfo{ID: id, Kind: opts.Kind}, nil
}

func (f *Fake) CloseProducer(ctx context.Context, producerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.producers[producerID]; !ok {
		return &engine.EngineError{Method: "closeProducer", Reason: "already closed"}
	}
	delete(f.producers, producerID)
	return nil
}

func (f *Fake) Consume(ctx context.Context, opts engine.ConsumeOptions) (*engine.ConsumerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failure("consume"); err != nil {
		return nil, err
	}

	produceOpts, ok := f.producers[opts.ProducerID]
	if !ok {
		return nil, &engine.EngineError{Method: "consume", Reason: "producer not found"}
	}

	id := f.id("consumer")
	f.consumers[id] = opts

	return &engine.ConsumerInfo{
		ID:            id,
		ProducerID:    opts.ProducerID,
		Kind:          produceOpts.Kind,
		RtpParameters: produceOpts.RtpParameters,
		Type:          "simulcast",
	}, nil
}

func (f *Fake) CloseConsumer(ctx context.Context, consumerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.consumers[consumerID]; !ok {
		return &engine.EngineError{Method: "closeConsumer", Reason: "already closed"}
	}
	delete(f.consumers, consumerID)
	return nil
}

func (f *Fake) CanConsume(producerID string, caps engine.RtpCapabilities) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.producers[producerID]; !ok {
		return false
	}
	return f.Consumable
}

func (f *Fake) Died() <-chan error {
	return f.died
}

// Kill simulates an unexpected worker death.
func (f *Fake) Kill(err error) {
	f.died <- err
	close(f.died)
}

func (f *Fake) Close() error {
	return nil
}

// TransportCount reports live engine-side transports, for leak assertions.
func (f *Fake) TransportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

// ProducerCount reports live engine-side producers.
func (f *Fake) ProducerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.producers)
}

// ConsumerCount reports live engine-side consumers.
func (f *Fake) ConsumerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.consumers)
}

// LastProduce returns the produce options the engine saw for a producer id.
func (f *Fake) LastProduce(producerID string) (engine.ProduceOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts, ok := f.producers[producerID]
	return opts, ok
}

func (f *Fake) failure(method string) error {
	if f.FailNext == method {
		f.FailNext = ""
		return &engine.EngineError{Method: method, Reason: "rejected by engine"}
	}
	return nil
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}
