package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// Options configures a spawned engine worker process.
type Options struct {
	Bin        string
	LogLevel   string
	RTCMinPort uint16
	RTCMaxPort uint16
}

type request struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Data   interface{} `json:"data,omitempty"`
}

type response struct {
	ID       int64           `json:"id,omitempty"`
	Event    string          `json:"event,omitempty"`
	Accepted bool            `json:"accepted"`
	Error    string          `json:"error,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// WorkerProcess is the production Handle. It owns one engine worker child
// process and talks to it with newline-delimited JSON over stdio, one
// request per line, correlated by id.
type WorkerProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu      sync.Mutex
	pending map[int64]chan response
	nextID  int64
	closed  bool
	exitErr error

	caps RtpCapabilities

	// done releases in-flight calls when the process exits; died is read
	// by the pool watcher only, so a pending call can never swallow the
	// death notification.
	done chan struct{}
	died chan error
}

// NewWorkerProcess spawns the engine binary and blocks until it reported
// its router capabilities.
func NewWorkerProcess(opts Options) (*WorkerProcess, error) {
	cmd := exec.Command(opts.Bin,
		"--logLevel="+opts.LogLevel,
		"--rtcMinPort="+strconv.Itoa(int(opts.RTCMinPort)),
		"--rtcMaxPort="+strconv.Itoa(int(opts.RTCMaxPort)),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &WorkerProcess{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan response),
		done:    make(chan struct{}),
		died:    make(chan error, 1),
	}

	go w.readLoop(stdout)
	go w.waitLoop()

	raw, err := w.call(context.Background(), "getRouterRtpCapabilities", nil)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("engine worker handshake: %w", err)
	}
	if err := json.Unmarshal(raw, &w.caps); err != nil {
		w.Close()
		return nil, fmt.Errorf("engine worker handshake: %w", err)
	}

	log.Info().Str("service", "engine").Int("pid", cmd.Process.Pid).Msg("engine worker started")

	return w, nil
}

func (w *WorkerProcess) RouterRtpCapabilities() RtpCapabilities {
	return w.caps
}

func (w *WorkerProcess) CreateTransport(ctx context.Context, opts TransportOptions) (*TransportInfo, error) {
	info := &TransportInfo{}
	if err := w.callInto(ctx, "createTransport", opts, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (w *WorkerProcess) ConnectTransport(ctx context.Context, transportID string, dtls DtlsParameters) error {
	_, err := w.call(ctx, "connectTransport", H{
		"transportId":    transportID,
		"dtlsParameters": dtls,
	})
	return err
}

func (w *WorkerProcess) CloseTransport(ctx context.Context, transportID string) error {
	_, err := w.call(ctx, "closeTransport", H{"transportId": transportID})
	return err
}

func (w *WorkerProcess) Produce(ctx context.Context, opts ProduceOptions) (*ProducerInfo, error) {
	info := &ProducerInfo{}
	if err := w.callInto(ctx, "produce", opts, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (w *WorkerProcess) CloseProducer(ctx context.Context, producerID string) error {
	_, err := w.call(ctx, "closeProducer", H{"producerId": producerID})
	return err
}

func (w *WorkerProcess) Consume(ctx context.Context, opts ConsumeOptions) (*ConsumerInfo, error) {
	info := &ConsumerInfo{}
	if err := w.callInto(ctx, "consume", opts, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (w *WorkerProcess) CloseConsumer(ctx context.Context, consumerID string) error {
	_, err := w.call(ctx, "closeConsumer", H{"consumerId": consumerID})
	return err
}

func (w *WorkerProcess) CanConsume(producerID string, caps RtpCapabilities) bool {
	raw, err := w.call(context.Background(), "canConsume", H{
		"producerId":      producerID,
		"rtpCapabilities": caps,
	})
	if err != nil {
		log.Error().Err(err).Str("service", "engine").Msg("canConsume call failed")
		return false
	}

	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false
	}
	return ok
}

func (w *WorkerProcess) Died() <-chan error {
	return w.died
}

func (w *WorkerProcess) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.stdin.Close()

	return w.cmd.Process.Kill()
}

func (w *WorkerProcess) callInto(ctx context.Context, method string, data, out interface{}) error {
	raw, err := w.call(ctx, method, data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (w *WorkerProcess) call(ctx context.Context, method string, data interface{}) (json.RawMessage, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrEngineClosed
	}

	w.nextID++
	req := request{ID: w.nextID, Method: method, Data: data}
	ch := make(chan response, 1)
	w.pending[req.ID] = ch

	payload, err := json.Marshal(req)
	if err != nil {
		delete(w.pending, req.ID)
		w.mu.Unlock()
		return nil, err
	}
	payload = append(payload, '\n')
	_, err = w.stdin.Write(payload)
	w.mu.Unlock()

	if err != nil {
		w.forget(req.ID)
		return nil, err
	}

	select {
	case resp := <-ch:
		if !resp.Accepted {
			return nil, &EngineError{Method: method, Reason: resp.Error}
		}
		return resp.Data, nil
	case <-w.done:
		// exitErr is written before done closes
		if w.exitErr == nil {
			return nil, ErrEngineClosed
		}
		return nil, fmt.Errorf("engine worker died: %w", w.exitErr)
	case <-ctx.Done():
		w.forget(req.ID)
		return nil, ctx.Err()
	}
}

func (w *WorkerProcess) forget(id int64) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

func (w *WorkerProcess) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Error().Err(err).Str("service", "engine").Msg("malformed engine message")
			continue
		}
		if resp.ID == 0 {
			log.Debug().Str("service", "engine").Str("event", resp.Event).Msg("engine notification")
			continue
		}

		w.mu.Lock()
		ch, ok := w.pending[resp.ID]
		delete(w.pending, resp.ID)
		w.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (w *WorkerProcess) waitLoop() {
	err := w.cmd.Wait()

	w.mu.Lock()
	closed := w.closed
	w.closed = true
	if closed {
		err = nil
	} else if err == nil {
		err = fmt.Errorf("engine worker exited unexpectedly")
	}
	w.exitErr = err
	w.pending = nil
	w.mu.Unlock()

	close(w.done)

	if err == nil {
		close(w.died)
		return
	}

	log.Error().Err(err).Str("service", "engine").Msg("engine worker exited")
	w.died <- err
	close(w.died)
}
