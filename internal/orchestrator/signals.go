package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// NotifyShutdown registers the interrupt handlers once and returns a
// context cancelled on the first SIGINT or SIGTERM. Signals arriving
// after the first are logged and swallowed so a repeat Ctrl-C cannot
// interrupt teardown. The returned stop function releases the handlers;
// it is idempotent.
func NotifyShutdown(parent context.Context, lg *slog.Logger) (context.Context, func()) {
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		armed := true
		for {
			select {
			case sig := <-ch:
				if armed {
					lg.Info("shutdown signal received",
						slog.String("signal", sig.String()))
					cancel()
					armed = false
				} else {
					lg.Debug("already shutting down, signal ignored",
						slog.String("signal", sig.String()))
				}
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
			cancel()
		})
	}
	return ctx, stop
}
