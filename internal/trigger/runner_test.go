package trigger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronex/internal/eventbus"
	"cronex/internal/task/scheduler"
	logx "cronex/pkg/logx"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestRegisterAppendsBeforeReacting(t *testing.T) {
	t.Parallel()
	r := NewRunner(logx.Nop(), nil)

	var seen []int
	r.OnRegister("observer", func(_ context.Context, u User) error {
		all := r.Users().All()
		require.NotEmpty(t, all)
		assert.Equal(t, u.ID, all[len(all)-1].ID)
		seen = append(seen, r.Users().Len())
		return nil
	})

	r.Register(context.Background(), "Ada", "ada@example.com")
	r.Register(context.Background(), "Ada", "ada@example.com")

	assert.Equal(t, []int{1, 2}, seen)
	users := r.Users().All()
	require.Len(t, users, 2)
	assert.Equal(t, 0, users[0].Seq)
	assert.Equal(t, 1, users[1].Seq)
	assert.NotEqual(t, users[0].ID, users[1].ID)
}

func TestRegisterLogsExactlyOneWelcome(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	r := NewRunner(logx.NewWriter(&buf, "debug"), nil)

	u := r.Register(context.Background(), "Grace", "grace@example.com")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "welcome email sent"))
	assert.Equal(t, 1, strings.Count(out, "user registered"))
	assert.Contains(t, out, "grace@example.com")
	assert.Contains(t, out, u.ID.String())
	assert.Less(t, strings.Index(out, "user registered"), strings.Index(out, "welcome email sent"))
}

func TestFailingReactionStillRecords(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	r := NewRunner(logx.NewWriter(&buf, "debug"), nil)

	var after int
	r.OnRegister("errors", func(context.Context, User) error { return errors.New("smtp down") })
	r.OnRegister("panics", func(context.Context, User) error { panic("boom") })
	r.OnRegister("after", func(context.Context, User) error {
		after++
		return nil
	})

	u := r.Register(context.Background(), "Linus", "linus@example.com")

	assert.Equal(t, 1, r.Users().Len())
	assert.Equal(t, "Linus", u.Name)
	assert.Equal(t, 1, after)
	out := buf.String()
	assert.Contains(t, out, "smtp down")
	assert.Contains(t, out, "reaction panics panicked")
	assert.Equal(t, 1, strings.Count(out, "welcome email sent"))
}

func TestRegisterPublishesAfterReactions(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	r := NewRunner(logx.Nop(), bus)
	u := r.Register(context.Background(), "Ken", "ken@example.com")

	ev := <-events
	assert.Equal(t, eventbus.UserRegistered, ev.Type)
	got, ok := ev.Data.(User)
	require.True(t, ok)
	assert.Equal(t, u, got)
}

func TestConcurrentRegistrationsAreSerialized(t *testing.T) {
	t.Parallel()
	r := NewRunner(logx.Nop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(context.Background(), "u", "u@example.com")
		}()
	}
	wg.Wait()

	users := r.Users().All()
	require.Len(t, users, 50)
	for i, u := range users {
		assert.Equal(t, i, u.Seq)
	}
}

func TestRegisterStoresValuesAsGiven(t *testing.T) {
	t.Parallel()
	r := NewRunner(logx.Nop(), nil)

	u := r.Register(context.Background(), " Alice ", "alice@example.com ")
	assert.Equal(t, " Alice ", u.Name)
	assert.Equal(t, "alice@example.com ", u.Email)
	assert.Equal(t, u, r.Users().All()[0])
}

func TestBusSourceDeliversSignups(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	r := NewRunner(logx.Nop(), bus)

	detach, err := r.Attach(NewBusSource(bus, 16, logx.Nop()))
	require.NoError(t, err)

	PublishSignup(bus, "  Barbara", "barbara@example.com\n")
	eventbus.Publish(bus, eventbus.UserSignup, "not a signup")
	eventbus.Publish(bus, eventbus.UserSignup, &Signup{Name: "Edsger", Email: "edsger@example.com"})

	require.Eventually(t, func() bool { return r.Users().Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	users := r.Users().All()
	assert.Equal(t, "Barbara", users[0].Name)
	assert.Equal(t, "barbara@example.com", users[0].Email)
	assert.Equal(t, "edsger@example.com", users[1].Email)

	detach()
	PublishSignup(bus, "Late", "late@example.com")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, r.Users().Len())
}

func TestIntervalSourceSynthetic(t *testing.T) {
	t.Parallel()
	src, err := NewIntervalSource(&fakeScheduler{}, 0, "")
	require.NoError(t, err)

	at := time.UnixMilli(1700000000123)
	s := src.Synthetic(at)
	assert.Equal(t, "User1700000000123", s.Name)
	assert.Equal(t, "user1700000000123@example.com", s.Email)
}

type fakeScheduler struct {
	rule string
	job  scheduler.Job
}

func (f *fakeScheduler) Schedule(_ string, rule string, job scheduler.Job, _ scheduler.Options) (scheduler.Handle, error) {
	f.rule, f.job = rule, job
	return scheduler.Handle{}, nil
}

func TestIntervalSourceRegistersOnEachFiring(t *testing.T) {
	t.Parallel()
	fs := &fakeScheduler{}
	src, err := NewIntervalSource(fs, 5*time.Second, "test.local")
	require.NoError(t, err)

	r := NewRunner(logx.Nop(), nil)
	_, err = r.Attach(src)
	require.NoError(t, err)
	assert.Equal(t, "5s", fs.rule)

	require.NoError(t, fs.job(context.Background()))
	require.NoError(t, fs.job(context.Background()))

	users := r.Users().All()
	require.Len(t, users, 2)
	assert.True(t, strings.HasPrefix(users[0].Name, "User"))
	assert.True(t, strings.HasSuffix(users[0].Email, "@test.local"))
}

func TestIntervalSourceWithScheduler(t *testing.T) {
	t.Parallel()
	eng := newEngine(t)
	sched := scheduler.New(scheduler.Config{Enabled: true}, eng, logx.Nop(), nil)
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Stop(ctx)
	})

	src, err := NewIntervalSource(sched, time.Second, "")
	require.NoError(t, err)
	r := NewRunner(logx.Nop(), nil)
	detach, err := r.Attach(src)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.Users().Len() >= 2 }, 4*time.Second, 20*time.Millisecond)
	detach()
	time.Sleep(100 * time.Millisecond)
	n := r.Users().Len()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, r.Users().Len())
}
