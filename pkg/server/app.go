package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"SpotAgent/pkg/config"
	xhttp "SpotAgent/pkg/http"
	pkgkafka "SpotAgent/pkg/kafka"
	applogger "SpotAgent/pkg/logger"
	"SpotAgent/pkg/queue"
)

// Agent is the control loop the App drives.
type Agent interface {
	Boot(ctx context.Context) error
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Runner is a background component that works until ctx ends, such as the
// exchange ticker stream or the Telegram command loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Closer is anything holding connections to release after the loop stops.
type Closer interface {
	Close()
}

// App encapsulates the agent process lifecycle.
type App struct {
	cfg      *config.Config
	l        *applogger.Logger
	agent    Agent
	consumer *pkgkafka.Consumer
	queue    queue.Queue
	runners  map[string]Runner
	closers  []Closer
	handlers xhttp.Handlers

	httpServer *xhttp.Server
	wg         sync.WaitGroup
}

type Option func(*App)

func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithQueue(q queue.Queue) Option {
	return func(a *App) { a.queue = q }
}

// WithRunner adds a named background component. A nil runner is ignored so
// optional components can be passed unconditionally.
func WithRunner(name string, r Runner) Option {
	return func(a *App) {
		if r != nil {
			a.runners[name] = r
		}
	}
}

func WithCloser(c Closer) Option {
	return func(a *App) { a.closers = append(a.closers, c) }
}

func WithHTTPHandlers(hs ...xhttp.Handler) Option {
	return func(a *App) { a.handlers = append(a.handlers, hs...) }
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, agent Agent, opts ...Option) *App {
	a := &App{cfg: cfg, l: l, agent: agent, runners: map[string]Runner{}}
	for _, o := range opts {
		o(a)
	}
	if a.l == nil {
		a.l = applogger.Nop()
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component, boots the agent and runs the control
// loop until ctx ends, then shuts everything down in reverse order.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start notification queue: %w", err)
		}
	}
	// The journal is best-effort; the agent trades without it.
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka journal consumer not started", applogger.Error(err))
			a.consumer = nil
		}
	}
	for name, r := range a.runners {
		a.wg.Add(1)
		go func(name string, r Runner) {
			defer a.wg.Done()
			if err := r.Run(bg); err != nil {
				a.l.Error("background component stopped", applogger.String("component", name), applogger.Error(err))
			}
		}(name, r)
		a.l.Info("background component started", applogger.String("component", name))
	}
	if a.cfg.Server.Enabled {
		a.httpServer = xhttp.NewServer(a.handlers,
			xhttp.WithPort(a.cfg.Server.Port),
			xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
			xhttp.WithCORS(a.cfg.Server.CORS),
			xhttp.WithLogger(a.l),
		)
		if err := a.httpServer.Start(); err != nil {
			cancel()
			return a.shutdown(fmt.Errorf("start http server: %w", err))
		}
	}

	if err := a.agent.Boot(bg); err != nil {
		cancel()
		return a.shutdown(fmt.Errorf("boot agent: %w", err))
	}
	if err := a.agent.Run(bg); err != nil {
		a.l.Error("control loop stopped", applogger.Error(err))
	}
	a.l.Info("shutdown signal received")
	cancel()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer flushCancel()
	if err := a.agent.Shutdown(flushCtx); err != nil {
		a.l.Error("agent shutdown", applogger.Error(err))
	}
	return a.shutdown(nil)
}

// shutdown stops the transport first, then the workers, then the clients.
// cause is returned unchanged so boot failures keep their meaning.
func (a *App) shutdown(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("notification queue stop error", applogger.Error(err))
		}
	}
	for _, c := range a.closers {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.l.Warn("background components did not stop in time")
	}

	a.l.Info("shutdown complete")
	return cause
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
