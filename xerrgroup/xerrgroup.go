// Package xerrgroup extends [errgroup] by collecting the results of subtasks.
// It has the same API and, as much as possible, the same behavior as [errgroup].
package xerrgroup

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group behaves like a [errgroup.Group] but collects results from subtasks.
// Create groups with [New] or [WithContext].
type Group[T any] struct {
	mu   sync.Mutex
	vals []T
	g    *errgroup.Group
}

// New creates a [Group] with no limit on active goroutines.
func New[T any]() *Group[T] {
	return &Group[T]{g: &errgroup.Group{}}
}

// WithContext creates a [Group] and a derived context that is canceled the first time
// a function passed to Go returns an error or the first time Wait returns, whichever occurs first.
func WithContext[T any](ctx context.Context) (*Group[T], context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &Group[T]{g: g}, ctx
}

// SetLimit limits the number of active goroutines in this group to at most n.
// A negative value indicates no limit. It must not be called while goroutines are active.
func (g *Group[T]) SetLimit(n int) {
	g.g.SetLimit(n)
}

// Go calls the given function in a new goroutine. It blocks until the new
// goroutine can be added without exceeding the configured limit.
//
// If the function returns a nil error the returned value is collected and returned by [Group.Wait].
// If it returns an error the value is discarded and, for groups created with [WithContext],
// the group context is canceled.
func (g *Group[T]) Go(f func() (T, error)) {
	g.g.Go(func() error {
		v, err := f()
		if err != nil {
			return err
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		g.vals = append(g.vals, v)
		return nil
	})
}

// Wait blocks until all functions passed to Go have returned, then returns the first non-nil error (if any)
// and the collected results, in completion order.
// When a subtask fails partial results are possible, it is up to the caller to decide if they are acceptable.
func (g *Group[T]) Wait() ([]T, error) {
	err := g.g.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vals, err
}
