package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"cronex/internal/eventbus"
	rtsup "cronex/internal/runtime/supervisor"
	logx "cronex/pkg/logx"
)

// Service executes tasks on a bounded worker pool. The scheduler only
// triggers; timeouts, overlap and concurrency are decided here.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	pool *pool

	log logx.Logger
	bus eventbus.Bus

	stateMu sync.Mutex
	states  map[string]*RunState

	hmu     sync.Mutex
	history []HistoryItem

	inFlight         atomic.Int32
	completed        atomic.Uint64
	failed           atomic.Uint64
	skipped          atomic.Uint64
	dropped          atomic.Uint64
	droppedQueueFull atomic.Uint64
	droppedStale     atomic.Uint64

	lastQueueFullWarnAt atomic.Int64
	lastStaleWarnAt     atomic.Int64
}

// pool is one generation of workers and their queue. A restart retires the
// current pool and builds a new one.
type pool struct {
	queue    chan queuedTask
	stop     chan struct{} // closed when retiring begins
	stopped  chan struct{} // closed once workers exited and the queue is empty
	stopping bool          // guarded by Service.mu
	sup      *rtsup.Supervisor
}

type queuedTask struct {
	task Task

	enqueuedAt time.Time
	timeout    time.Duration
	opt        TaskOptions

	state *RunState
	track bool
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		log:    log,
		bus:    bus,
		states: make(map[string]*RunState),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates engine settings. A worker or queue size change restarts the
// pool; tasks still queued then are dropped and their overlap slots freed.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.pool != nil && !s.pool.stopping
	s.mu.Unlock()

	if running && (prev.Workers != cfg.Workers || prev.QueueSize != cfg.QueueSize) {
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start launches the pool. It is a no-op when disabled or already running,
// and waits for a retiring pool to finish first.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.mu.Lock()
		cur := s.pool
		if !s.cfg.Enabled || (cur != nil && !cur.stopping) {
			s.mu.Unlock()
			return
		}
		if cur == nil {
			break
		}
		s.mu.Unlock()
		select {
		case <-cur.stopped:
		case <-ctx.Done():
			return
		}
	}

	cfg := s.cfg
	p := &pool{
		queue:   make(chan queuedTask, cfg.QueueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		// A failing worker restarts; it never takes the process down.
		sup: rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false)),
	}
	s.pool = p
	s.inFlight.Store(0)
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		p.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.worker(c, p.stop, p.queue)
			select {
			case <-p.stop:
				return nil
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return fmt.Errorf("worker exited unexpectedly")
		})
	}
	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop retires the pool, canceling running tasks. It returns when the pool
// is gone or ctx ends; retiring continues in the background either way.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	p := s.pool
	if p == nil {
		s.mu.Unlock()
		return
	}
	first := !p.stopping
	if first {
		p.stopping = true
		close(p.stop)
	}
	s.mu.Unlock()

	if first {
		p.sup.Cancel()
		go s.retire(p)
	}
	select {
	case <-p.stopped:
		if first {
			s.log.Info("task engine stopped")
		}
	case <-ctx.Done():
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Service) retire(p *pool) {
	_ = p.sup.Wait(context.Background())
	// Workers are gone and Enqueue refuses a stopping pool, so nothing
	// lands in the queue after this drain.
	if n := s.discard(p.queue); n > 0 {
		s.log.Info("queued tasks dropped on stop", logx.Int("count", n))
	}
	s.mu.Lock()
	if s.pool == p {
		s.pool = nil
	}
	s.mu.Unlock()
	s.inFlight.Store(0)
	close(p.stopped)
}

// discard empties a retired queue, freeing overlap slots so the next firing
// after a restart is not refused.
func (s *Service) discard(queue chan queuedTask) int {
	now := time.Now()
	n := 0
	for {
		select {
		case qt := <-queue:
			s.drop(dropStopped, qt, now, now.Sub(qt.enqueuedAt))
			n++
		default:
			return n
		}
	}
}
