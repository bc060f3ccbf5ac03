package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cronex/internal/eventbus"
	"cronex/internal/task/scheduler"
	logx "cronex/pkg/logx"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultEmailDomain = "example.com"
)

// Signup is the input to a register action.
type Signup struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Handler receives signups from a source.
type Handler func(ctx context.Context, s Signup)

// EventSource produces signups. Subscribe returns a func that stops delivery.
type EventSource interface {
	Subscribe(h Handler) (unsubscribe func(), err error)
}

// Scheduler is the part of scheduler.Service an IntervalSource needs.
type Scheduler interface {
	Schedule(name, rule string, job scheduler.Job, opts scheduler.Options) (scheduler.Handle, error)
}

// IntervalSource emits a synthetic signup (User<ms>, user<ms>@domain) every
// interval, driven by the scheduler.
type IntervalSource struct {
	sched  Scheduler
	every  time.Duration
	domain string
	now    func() time.Time
}

func NewIntervalSource(sched Scheduler, every time.Duration, domain string) (*IntervalSource, error) {
	if sched == nil {
		return nil, errors.New("scheduler required")
	}
	if every <= 0 {
		every = DefaultInterval
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = DefaultEmailDomain
	}
	return &IntervalSource{sched: sched, every: every, domain: domain, now: time.Now}, nil
}

// Synthetic builds the signup emitted at t.
func (s *IntervalSource) Synthetic(t time.Time) Signup {
	ms := t.UnixMilli()
	return Signup{
		Name:  fmt.Sprintf("User%d", ms),
		Email: fmt.Sprintf("user%d@%s", ms, s.domain),
	}
}

func (s *IntervalSource) Subscribe(h Handler) (func(), error) {
	if h == nil {
		return nil, errors.New("handler required")
	}
	handle, err := s.sched.Schedule("trigger.synthetic_signup", s.every.String(), func(ctx context.Context) error {
		h(ctx, s.Synthetic(s.now()))
		return nil
	}, scheduler.Options{})
	if err != nil {
		return nil, err
	}
	return func() { handle.Cancel() }, nil
}

// BusSource delivers user.signup events published on the bus. Event data
// must be a Signup (or *Signup); anything else is logged and dropped.
type BusSource struct {
	bus    eventbus.Bus
	buffer int
	log    logx.Logger
}

func NewBusSource(bus eventbus.Bus, buffer int, log logx.Logger) *BusSource {
	if log.IsZero() {
		log = logx.Nop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &BusSource{bus: bus, buffer: buffer, log: log}
}

func (s *BusSource) Subscribe(h Handler) (func(), error) {
	if h == nil {
		return nil, errors.New("handler required")
	}
	if s.bus == nil {
		return nil, errors.New("bus required")
	}
	ch, unsub := s.bus.Subscribe(s.buffer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Type != eventbus.UserSignup {
					continue
				}
				var su Signup
				switch d := ev.Data.(type) {
				case Signup:
					su = d
				case *Signup:
					if d == nil {
						continue
					}
					su = *d
				default:
					s.log.Warn("signup event with unexpected payload", logx.String("type", fmt.Sprintf("%T", ev.Data)))
					continue
				}
				// Bus payloads come from outside; tidy them before they reach the store.
				su.Name, su.Email = strings.TrimSpace(su.Name), strings.TrimSpace(su.Email)
				h(ctx, su)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			unsub()
			<-done
		})
	}, nil
}

// PublishSignup is the producer side of BusSource.
func PublishSignup(bus eventbus.Bus, name, email string) {
	eventbus.Publish(bus, eventbus.UserSignup, Signup{Name: name, Email: email})
}
