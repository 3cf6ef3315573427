package knowledge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubEngine struct{ id int }

func (s *stubEngine) Query(ctx context.Context, question string, param QueryParam) (string, error) {
	return "ok", nil
}

func TestHandle_InitialisesOnce(t *testing.T) {
	var calls atomic.Int32
	h := NewHandleWithSetup(func(ctx context.Context) (Engine, func(context.Context) error, error) {
		n := calls.Add(1)
		return &stubEngine{id: int(n)}, nil, nil
	}, nil)

	first, err := h.Engine(context.Background())
	if err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
	second, err := h.Engine(context.Background())
	if err != nil {
		t.Fatalf("Engine() error = %v", err)
	}

	if first != second {
		t.Error("expected the same engine instance on every call")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("setup ran %d times, want 1", got)
	}
	if !h.Initialized() {
		t.Error("Initialized() = false after successful setup")
	}
}

func TestHandle_ConcurrentCallersShareSetup(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	h := NewHandleWithSetup(func(ctx context.Context) (Engine, func(context.Context) error, error) {
		calls.Add(1)
		<-release
		return &stubEngine{}, nil, nil
	}, nil)

	const n = 20
	engines := make([]Engine, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := h.Engine(context.Background())
			if err != nil {
				t.Errorf("Engine() error = %v", err)
				return
			}
			engines[i] = e
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("setup ran %d times, want 1", got)
	}
	for i := 1; i < n; i++ {
		if engines[i] != engines[0] {
			t.Fatalf("caller %d got a different engine", i)
		}
	}
}

func TestHandle_FailedSetupIsRetried(t *testing.T) {
	var calls atomic.Int32
	h := NewHandleWithSetup(func(ctx context.Context) (Engine, func(context.Context) error, error) {
		if calls.Add(1) == 1 {
			return nil, nil, errors.New("server not reachable")
		}
		return &stubEngine{}, nil, nil
	}, nil)

	if _, err := h.Engine(context.Background()); err == nil {
		t.Fatal("expected first setup to fail")
	}
	st := h.Status()
	if st.Initialized || st.LastError == "" {
		t.Errorf("Status() after failure = %+v", st)
	}

	if _, err := h.Engine(context.Background()); err != nil {
		t.Fatalf("second Engine() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("setup ran %d times, want 2", got)
	}
	st = h.Status()
	if !st.Initialized || st.Setups != 2 || st.LastError != "" {
		t.Errorf("Status() after recovery = %+v", st)
	}
}

func TestHandle_StatusDuringSetup(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := NewHandleWithSetup(func(ctx context.Context) (Engine, func(context.Context) error, error) {
		close(entered)
		<-release
		return &stubEngine{}, nil, nil
	}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := h.Engine(context.Background())
		done <- err
	}()
	<-entered

	statusCh := make(chan Status, 1)
	go func() { statusCh <- h.Status() }()
	select {
	case st := <-statusCh:
		if st.Initialized || !st.InProgress || st.Setups != 1 {
			t.Errorf("Status() during setup = %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("Status() blocked while setup was running")
	}
	if h.Initialized() {
		t.Error("Initialized() = true before setup finished")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
	if st := h.Status(); !st.Initialized || st.InProgress {
		t.Errorf("Status() after setup = %+v", st)
	}
}

func TestHandle_StopRunsTeardownOnce(t *testing.T) {
	var stops atomic.Int32
	h := NewHandleWithSetup(func(ctx context.Context) (Engine, func(context.Context) error, error) {
		return &stubEngine{}, func(context.Context) error {
			stops.Add(1)
			return nil
		}, nil
	}, nil)

	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() before setup error = %v", err)
	}
	if _, err := h.Engine(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if got := stops.Load(); got != 1 {
		t.Errorf("teardown ran %d times, want 1", got)
	}
	if h.Initialized() {
		t.Error("Initialized() = true after Stop")
	}
}

func TestDefaultSetup_ExternalServer(t *testing.T) {
	var health atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			health.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	workDir := filepath.Join(t.TempDir(), "rag_data")
	h := NewHandle(Config{BaseURL: srv.URL, WorkingDir: workDir})

	if err := h.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		t.Errorf("working dir not created: %v", err)
	}
	// One check during setup, one for the ping itself.
	if got := health.Load(); got != 2 {
		t.Errorf("health checks = %d, want 2", got)
	}
}

func TestDefaultSetup_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := NewHandle(Config{BaseURL: srv.URL})
	if _, err := h.Engine(context.Background()); err == nil {
		t.Fatal("expected setup to fail against an unhealthy server")
	}
	if h.Initialized() {
		t.Error("failed setup must not be cached")
	}
}

func TestDefaultSetup_MissingBaseURL(t *testing.T) {
	h := NewHandle(Config{})
	if _, err := h.Engine(context.Background()); err == nil {
		t.Fatal("expected error without a base URL")
	}
}
