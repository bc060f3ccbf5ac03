// Package trigger runs the register action and its synchronous reactions.
package trigger

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"cronex/internal/eventbus"
	logx "cronex/pkg/logx"
)

// Reaction runs synchronously after a user is recorded.
type Reaction func(ctx context.Context, u User) error

type Runner struct {
	users UserStore

	mu        sync.RWMutex
	reactions []namedReaction

	log logx.Logger
	bus eventbus.Bus
	now func() time.Time
}

type namedReaction struct {
	name string
	fn   Reaction
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner returns a runner with the welcome notification installed as the
// first reaction.
func NewRunner(log logx.Logger, bus eventbus.Bus, opts ...Option) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{log: log, bus: bus, now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	r.OnRegister("welcome", Welcome(log))
	return r
}

// Welcome logs the welcome notification for u.
func Welcome(log logx.Logger) Reaction {
	return func(_ context.Context, u User) error {
		log.Info("welcome email sent", logx.String("email", u.Email), logx.String("user_id", u.ID.String()))
		return nil
	}
}

// OnRegister appends a reaction. Reactions run in registration order.
func (r *Runner) OnRegister(name string, fn Reaction) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.reactions = append(r.reactions, namedReaction{name: name, fn: fn})
	r.mu.Unlock()
}

// Users exposes the collection for reads.
func (r *Runner) Users() *UserStore { return &r.users }

// Register records the user exactly as given, then runs every reaction. The
// user stays recorded whatever the reactions do.
func (r *Runner) Register(ctx context.Context, name, email string) User {
	u := r.users.add(name, email, r.now())
	r.log.Info("user registered",
		logx.String("name", u.Name),
		logx.String("email", u.Email),
		logx.Int("seq", u.Seq),
		logx.String("user_id", u.ID.String()),
	)

	r.mu.RLock()
	reactions := make([]namedReaction, len(r.reactions))
	copy(reactions, r.reactions)
	r.mu.RUnlock()

	for _, re := range reactions {
		if err := r.react(ctx, re, u); err != nil {
			r.log.Warn("reaction failed",
				logx.String("reaction", re.name),
				logx.String("user_id", u.ID.String()),
				logx.Err(err),
			)
		}
	}

	eventbus.Publish(r.bus, eventbus.UserRegistered, u)
	return u
}

func (r *Runner) react(ctx context.Context, re namedReaction, u User) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reaction %s panicked: %v", re.name, rec)
			r.log.Error("reaction.panic", logx.String("reaction", re.name), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	return re.fn(ctx, u)
}

// Attach routes src's signups into Register. The returned func detaches.
func (r *Runner) Attach(src EventSource) (func(), error) {
	return src.Subscribe(func(ctx context.Context, s Signup) {
		r.Register(ctx, s.Name, s.Email)
	})
}
