package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeRefitter struct {
	mu       sync.Mutex
	calls    []context.Context
	err      error
	requests chan struct{}
	called   chan struct{}
}

func newFakeRefitter() *fakeRefitter {
	return &fakeRefitter{
		requests: make(chan struct{}, 1),
		called:   make(chan struct{}, 16),
	}
}

func (f *fakeRefitter) RefitIfStale(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ctx)
	err := f.err
	f.mu.Unlock()
	select {
	case f.called <- struct{}{}:
	default:
	}
	return err == nil, err
}

func (f *fakeRefitter) RefitRequests() <-chan struct{} { return f.requests }

func (f *fakeRefitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitCalled(t *testing.T, f *fakeRefitter) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a refit")
	}
}

func testSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTreeDefaults(t *testing.T) {
	tree := NewTree(testSlog(), TreeConfig{})
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}

	custom := TreeConfig{FailureThreshold: 2, FailureDecay: 1, FailureBackoff: time.Second, ShutdownTimeout: time.Second}
	if got := NewTree(testSlog(), custom).config; got != custom {
		t.Errorf("config = %+v, want %+v", got, custom)
	}
}

func TestRefitServiceTriggers(t *testing.T) {
	t.Run("startup and request", func(t *testing.T) {
		f := newFakeRefitter()
		svc := NewRefitService(f, RefitServiceConfig{RefitOnStartup: true}, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		waitCalled(t, f)
		f.requests <- struct{}{}
		waitCalled(t, f)

		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
		if n := f.count(); n != 2 {
			t.Errorf("refits = %d, want 2", n)
		}
	})

	t.Run("ticker", func(t *testing.T) {
		f := newFakeRefitter()
		svc := NewRefitService(f, RefitServiceConfig{Interval: 10 * time.Millisecond}, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go svc.Serve(ctx)

		waitCalled(t, f)
		waitCalled(t, f)
	})

	t.Run("failures do not stop the loop", func(t *testing.T) {
		f := newFakeRefitter()
		f.err = errors.New("no embedded articles")
		svc := NewRefitService(f, RefitServiceConfig{RefitOnStartup: true, Timeout: time.Second}, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go svc.Serve(ctx)

		waitCalled(t, f)
		f.requests <- struct{}{}
		waitCalled(t, f)

		f.mu.Lock()
		_, hasDeadline := f.calls[0].Deadline()
		f.mu.Unlock()
		if !hasDeadline {
			t.Error("refit ran without a deadline")
		}
	})
}

type fakeHTTPServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
	started   chan struct{}
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{stop: make(chan struct{}), started: make(chan struct{}, 1)}
}

func (s *fakeHTTPServer) ListenAndServe() error {
	s.started <- struct{}{}
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeHTTPServer) Shutdown(context.Context) error {
	s.shutdowns.Add(1)
	close(s.stop)
	return nil
}

func TestHTTPServiceShutdown(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv, time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if n := srv.shutdowns.Load(); n != 1 {
		t.Errorf("Shutdown called %d times", n)
	}
}

func TestHTTPServiceListenError(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPService(srv, time.Second, zerolog.Nop())

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve() error = %v, want wrapped listen error", err)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestTreeRunsServices(t *testing.T) {
	tree := NewTree(testSlog(), TreeConfig{ShutdownTimeout: time.Second})
	f := newFakeRefitter()
	tree.AddEngineService(NewRefitService(f, RefitServiceConfig{RefitOnStartup: true}, zerolog.Nop()))
	srv := newFakeHTTPServer()
	tree.AddAPIService(NewHTTPService(srv, time.Second, zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitCalled(t, f)
	<-srv.started

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	if srv.shutdowns.Load() != 1 {
		t.Error("http server was not shut down")
	}
}
