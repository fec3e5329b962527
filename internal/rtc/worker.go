package rtc

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isqad/webinar-sfu/internal/engine"
	"github.com/isqad/webinar-sfu/internal/telemetry"
)

const workerDeathGraceDelay = 2 * time.Second

// Worker binds one media engine instance to the rooms it serves.
// Workers are created at startup and live until process shutdown.
type Worker struct {
	ID     int
	handle engine.Handle

	// rooms is guarded by the owning registry's lock, not by the worker.
	rooms map[string]*Room
}

func (w *Worker) Handle() engine.Handle {
	return w.handle
}

// PoolStatus is the health snapshot exposed on liveness probes.
type PoolStatus struct {
	Available   bool `json:"available"`
	WorkerCount int  `json:"workerCount"`
	RoomCount   int  `json:"roomCount"`
}

// WorkerPool owns the fixed set of engine workers and assigns rooms to
// them round-robin. A dead engine worker is fatal to the whole process:
// its OS-level resources cannot be migrated, so the pool flips to
// unavailable and terminates the service after a short grace delay for
// an external supervisor to restart.
type WorkerPool struct {
	mu        sync.Mutex
	workers   []*Worker
	next      int
	available bool
	roomTotal int

	// exitFunc and graceDelay are swapped out in tests.
	exitFunc   func(code int)
	graceDelay time.Duration
}

// NewWorkerPool spawns numWorkers engine handles. On a spawn failure it
// returns the error together with a degraded pool, so health endpoints
// can keep answering instead of the process crashing on first request.
func NewWorkerPool(numWorkers int, spawn func() (engine.Handle, error)) (*WorkerPool, error) {
	pool := &WorkerPool{
		exitFunc:   os.Exit,
		graceDelay: workerDeathGraceDelay,
	}

	for i := 0; i < numWorkers; i++ {
		handle, err := spawn()
		if err != nil {
			pool.closeAll()
			return pool, err
		}

		worker := &Worker{
			ID:     i,
			handle: handle,
			rooms:  make(map[string]*Room),
		}
		pool.workers = append(pool.workers, worker)

		go pool.watch(worker)

		log.Info().Str("service", "rtc").Int("workerID", worker.ID).Msg("engine worker registered")
	}

	pool.available = true

	return pool, nil
}

// Assign picks the next worker, wrapping modulo pool size.
func (p *WorkerPool) Assign() (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available || len(p.workers) == 0 {
		return nil, ErrUnavailable
	}

	worker := p.workers[p.next]
	p.next = (p.next + 1) % len(p.workers)

	return worker, nil
}

func (p *WorkerPool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *WorkerPool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStatus{
		Available:   p.available,
		WorkerCount: len(p.workers),
		RoomCount:   p.roomTotal,
	}
}

// roomAdded and roomRemoved keep the status counter in step with the
// registry's worker→room maps.
func (p *WorkerPool) roomAdded() {
	p.mu.Lock()
	p.roomTotal++
	p.mu.Unlock()
}

func (p *WorkerPool) roomRemoved() {
	p.mu.Lock()
	p.roomTotal--
	p.mu.Unlock()
}

func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.available = false
	p.mu.Unlock()

	p.closeAll()
}

func (p *WorkerPool) closeAll() {
	for _, w := range p.workers {
		if err := w.handle.Close(); err != nil {
			log.Error().Err(err).Str("service", "rtc").Int("workerID", w.ID).Msg("close engine worker")
		}
	}
}

// watch waits for the worker's engine instance to die. A nil error means
// a deliberate shutdown; anything else is fatal.
func (p *WorkerPool) watch(worker *Worker) {
	err := <-worker.handle.Died()
	if err == nil {
		return
	}

	p.mu.Lock()
	p.available = false
	p.mu.Unlock()

	telemetry.ServiceOperationCounter.WithLabelValues("engine_worker", "error", "died").Add(1)
	log.Error().Err(err).Str("service", "rtc").Int("workerID", worker.ID).
		Msgf("engine worker died, exiting in %s", p.graceDelay)

	time.AfterFunc(p.graceDelay, func() {
		p.exitFunc(1)
	})
}
