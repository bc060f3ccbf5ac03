package trigger

import (
	"context"
	"testing"
	"time"

	"cronex/internal/task/engine"
	logx "cronex/pkg/logx"
)

func newEngine(t *testing.T) *engine.Service {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 2, QueueSize: 8}, logx.Nop(), nil)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		eng.Stop(ctx)
	})
	return eng
}
