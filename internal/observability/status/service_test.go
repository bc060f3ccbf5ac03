package status

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "cronex/pkg/logx"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestServiceServesStatusAndStops(t *testing.T) {
	snap := func() any {
		return map[string]any{"users": 3, "schedules": []string{"Every Hour"}}
	}
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, snap, logx.Nop())
	t.Cleanup(func() { svc.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Start(ctx)

	require.Eventually(t, func() bool { return svc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	base := "http://" + svc.Addr()

	code, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, base+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"users":3,"schedules":["Every Hour"]}`, body)

	// pprof is off unless asked for.
	code, _ = get(t, base+"/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)

	svc.Reconfigure(ctx, Config{Enabled: false})
	assert.Empty(t, svc.Addr())
}

func TestServicePprofToggle(t *testing.T) {
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}, nil, logx.Nop())
	t.Cleanup(func() { svc.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true})

	require.Eventually(t, func() bool { return svc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	code, _ := get(t, "http://"+svc.Addr()+"/debug/pprof/")
	assert.Equal(t, http.StatusOK, code)
}

func TestServiceRefusesPublicBind(t *testing.T) {
	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, logx.Nop())
	t.Cleanup(func() { svc.Stop(context.Background()) })
	svc.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, svc.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6061", true},
		{"localhost:80", true},
		{"[::1]:6061", true},
		{":6061", false},
		{"0.0.0.0:6061", false},
		{"10.0.0.1:6061", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLoopbackAddr(tt.addr), tt.addr)
	}
}
