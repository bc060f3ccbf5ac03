// Package status serves an optional local HTTP endpoint with a JSON snapshot
// of the running scheduler, plus liveness and (optionally) pprof handlers.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"cronex/internal/runtime/supervisor"
	logx "cronex/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6061"

// Config controls the status server.
//
// The server has no authentication, so non-loopback binds are refused
// unless AllowPublic is set.
type Config struct {
	Enabled     bool
	Addr        string
	Pprof       bool
	AllowPublic bool
}

// SnapshotFunc returns the value served at /status. It must be safe for
// concurrent use.
type SnapshotFunc func() any

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	snap SnapshotFunc

	ln       net.Listener
	srv      *http.Server
	sup      *supervisor.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, snap SnapshotFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if snap == nil {
		snap = func() any { return struct{}{} }
	}
	return &Service{cfg: cfg, snap: snap, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Addr returns the bound listen address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg and starts/stops/restarts the server if needed.
// Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		s.mu.Lock()
		// If stopping, wait for it to finish before restarting.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
			continue
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}

		// Optional observability; never cancel the app.
		s.sup = supervisor.New(ctx,
			supervisor.WithLogger(s.log),
			supervisor.WithCancelOnError(false),
		)
		sup := s.sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce)
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	sup := s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.ln = nil
		s.srv = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("status server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	if !cur.Enabled {
		return nil
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !cur.AllowPublic && !IsLoopbackAddr(addr) {
		s.log.Error("status server refused to start: non-loopback addr requires allow_public", logx.String("addr", addr))
		// Retrying cannot fix a config error.
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	srv := &http.Server{
		Handler:           s.handler(cur),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("status server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cur.Pprof))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Service) handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b, err := sonic.ConfigStd.MarshalIndent(s.snap(), "", "  ")
		if err != nil {
			s.log.Warn("status encode failed", logx.Err(err))
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	})
	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

// IsLoopbackAddr reports whether a host:port binds only to loopback.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
