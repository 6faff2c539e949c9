package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"SpotAgent/pkg/config"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/queue"
)

type fakeAgent struct {
	bootErr  error
	ran      atomic.Bool
	shutdown atomic.Bool
}

func (a *fakeAgent) Boot(context.Context) error { return a.bootErr }

func (a *fakeAgent) Run(ctx context.Context) error {
	a.ran.Store(true)
	<-ctx.Done()
	return nil
}

func (a *fakeAgent) Shutdown(context.Context) error {
	a.shutdown.Store(true)
	return nil
}

type fakeRunner struct{ stopped atomic.Bool }

func (r *fakeRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	r.stopped.Store(true)
	return nil
}

type fakeCloser struct{ closed bool }

func (c *fakeCloser) Close() { c.closed = true }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Enabled = false
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func TestRunContextStopsEverythingOnCancel(t *testing.T) {
	agent := &fakeAgent{}
	runner := &fakeRunner{}
	closer := &fakeCloser{}
	q := queue.NewMemoryQueue(logger.Nop(), &queue.QueueConfig{Workers: 1})

	app := New(testConfig(), nil, agent,
		WithQueue(q),
		WithRunner("stream", runner),
		WithCloser(closer),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !agent.ran.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("control loop never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("app did not stop")
	}
	if !agent.shutdown.Load() {
		t.Fatalf("agent shutdown not called")
	}
	if !runner.stopped.Load() || !closer.closed {
		t.Fatalf("runner stopped=%v closer closed=%v", runner.stopped.Load(), closer.closed)
	}
}

func TestBootFailureSkipsControlLoop(t *testing.T) {
	boom := errors.New("markets unavailable")
	agent := &fakeAgent{bootErr: boom}
	runner := &fakeRunner{}

	err := New(testConfig(), nil, agent, WithRunner("stream", runner)).RunContext(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if agent.ran.Load() || agent.shutdown.Load() {
		t.Fatalf("control loop or flush ran after failed boot")
	}
	if !runner.stopped.Load() {
		t.Fatalf("runner left running")
	}
}
