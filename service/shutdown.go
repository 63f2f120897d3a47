// Package service runs the auxiliary servers of a command, like the metrics endpoint,
// and shuts them down gracefully.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/sourcegraph/conc/pool"
)

// Shutdowner is anything that can be shut down, like [net/http.Server] or [event.Publisher].
type Shutdowner interface {
	Shutdown(context.Context) error
}

// ShutdownFunc adapts a function to a [Shutdowner].
type ShutdownFunc func(context.Context) error

// Shutdown calls f.
func (f ShutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// ShutdownHandler shuts down multiple services once a context is done.
type ShutdownHandler struct {
	waitPeriod time.Duration
	services   []Shutdowner
}

// NewShutdownHandler creates a [ShutdownHandler] giving each service gracefulShutdownPeriod to shut down.
func NewShutdownHandler(gracefulShutdownPeriod time.Duration) *ShutdownHandler {
	return &ShutdownHandler{waitPeriod: gracefulShutdownPeriod}
}

// Add adds the service to the handler. Must be called before [ShutdownHandler.Wait].
func (s *ShutdownHandler) Add(service Shutdowner) {
	s.services = append(s.services, service)
}

// Wait waits for ctx to be done, then shuts down all services concurrently.
// It returns when all of them are done, with all their errors joined.
func (s *ShutdownHandler) Wait(ctx context.Context) error {
	<-ctx.Done()

	slog.Debug("service: shutting down", "services", len(s.services), "wait_period", s.waitPeriod.String())
	p := pool.NewWithResults[error]()
	for _, service := range s.services {
		p.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), s.waitPeriod)
			defer cancel()
			return service.Shutdown(ctx)
		})
	}
	return errors.Join(p.Wait()...)
}
