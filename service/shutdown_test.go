package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/birdie-ai/velesdb-go/service"
)

func TestShutdownIsConcurrent(t *testing.T) {
	handler := service.NewShutdownHandler(time.Minute)
	server := newFakeService()
	publisher := newFakeService()

	handler.Add(server)
	handler.Add(publisher)

	ctx, cancel := context.WithCancel(context.Background())
	waitDone := make(chan error)
	go func() {
		waitDone <- handler.Wait(ctx)
	}()

	// Not an actual guarantee that shutdown waits for the context, but catches obvious bugs.
	select {
	case <-server.calls:
		t.Fatal("server shutdown called before cancellation")
	case <-publisher.calls:
		t.Fatal("publisher shutdown called before cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	// Both calls are received before answering any, so they must be concurrent.
	serverCall := <-server.calls
	publisherCall := <-publisher.calls

	checkStillWaiting := func() {
		t.Helper()
		select {
		case <-waitDone:
			t.Fatal("handler.Wait() returned before services shut down")
		case <-time.After(50 * time.Millisecond):
		}
	}

	checkStillWaiting()
	serverCall.sendResponse(nil)

	checkStillWaiting()
	publisherCall.sendResponse(nil)

	if err := <-waitDone; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	t.Parallel()

	errServer := errors.New("server shutdown")
	errPublisher := errors.New("publisher shutdown")

	handler := service.NewShutdownHandler(time.Second)
	handler.Add(service.ShutdownFunc(func(context.Context) error { return errServer }))
	handler.Add(service.ShutdownFunc(func(context.Context) error { return nil }))
	handler.Add(service.ShutdownFunc(func(context.Context) error { return errPublisher }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Wait(ctx)
	if !errors.Is(err, errServer) || !errors.Is(err, errPublisher) {
		t.Fatalf("got %v; want both shutdown errors", err)
	}
}

func TestShutdownWaitPeriod(t *testing.T) {
	t.Parallel()

	handler := service.NewShutdownHandler(10 * time.Millisecond)
	handler.Add(service.ShutdownFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := handler.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v; want %v", err, context.DeadlineExceeded)
	}
}

type (
	shutdownCall struct {
		response chan error
	}
	fakeService struct {
		calls chan shutdownCall
	}
)

func newFakeService() *fakeService {
	return &fakeService{
		calls: make(chan shutdownCall),
	}
}

func (f *fakeService) Shutdown(context.Context) error {
	call := shutdownCall{
		response: make(chan error),
	}
	f.calls <- call
	return <-call.response
}

func (s *shutdownCall) sendResponse(err error) {
	s.response <- err
	close(s.response)
}
