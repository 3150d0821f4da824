package sandbox

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeFrame struct {
	mu         sync.Mutex
	navigated  []string
	restarts   int
	restartErr error
}

func (f *fakeFrame) Navigate(handle, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, handle)
	return nil
}

func (f *fakeFrame) Restart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return f.restartErr
}

func (f *fakeFrame) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigated...)
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func waitForState(t *testing.T, r *Runtime, want State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State = %v, want %v after %v", r.State(), want, within)
}

const doc = "<!DOCTYPE html><html><body><canvas></canvas></body></html>"

func TestLoadTimeoutForcesReady(t *testing.T) {
	r := New(&fakeFrame{}, nil, Options{LoadTimeout: 20 * time.Millisecond}, quietLog())
	defer r.Close()

	r.Load(doc)
	if r.State() != StateLoading {
		t.Fatalf("State = %v, want loading", r.State())
	}
	if r.Visible() || r.Opacity() != 0 {
		t.Error("Frame must stay hidden while loading")
	}

	waitForState(t, r, StateReady, time.Second)
	if !r.Visible() || r.Opacity() != 1 {
		t.Error("Frame must be visible once ready")
	}
}

func TestDefaultLoadTimeout(t *testing.T) {
	r := New(&fakeFrame{}, nil, Options{}, quietLog())
	defer r.Close()
	if r.opts.LoadTimeout != time.Second {
		t.Fatalf("LoadTimeout = %v, want 1s", r.opts.LoadTimeout)
	}

	start := time.Now()
	r.Load(doc)
	time.Sleep(700 * time.Millisecond)
	if r.State() != StateLoading {
		t.Fatalf("Forced ready too early: %v after %v", r.State(), time.Since(start))
	}
	waitForState(t, r, StateReady, time.Second)
}

func TestNotifyLoaded(t *testing.T) {
	frame := &fakeFrame{}
	r := New(frame, nil, Options{LoadTimeout: time.Minute}, quietLog())
	defer r.Close()

	r.Load(doc)
	nav := frame.Navigations()
	if len(nav) != 1 || nav[0] != r.Handle() {
		t.Fatalf("Navigations = %v, handle %q", nav, r.Handle())
	}

	r.NotifyLoaded(r.Handle())
	if r.State() != StateReady {
		t.Fatalf("State = %v, want ready", r.State())
	}

	r.Load(doc + "<!-- edited -->")
	if r.State() != StateReloading {
		t.Fatalf("State = %v, want reloading after a new source", r.State())
	}
	if r.Visible() {
		t.Error("Frame must be hidden while reloading")
	}
	r.NotifyLoaded(r.Handle())
	if r.State() != StateReady {
		t.Fatalf("State = %v, want ready", r.State())
	}
}

func TestStaleLoadSignalIgnored(t *testing.T) {
	r := New(&fakeFrame{}, nil, Options{LoadTimeout: time.Minute}, quietLog())
	defer r.Close()

	r.Load(doc)
	old := r.Handle()
	r.Load(doc + " ")
	r.NotifyLoaded(old)
	if r.State() != StateLoading {
		t.Errorf("Stale signal changed state to %v", r.State())
	}
	r.NotifyLoaded("not-a-handle")
	if r.State() != StateLoading {
		t.Errorf("Unknown signal changed state to %v", r.State())
	}
}

func TestSingleLiveResource(t *testing.T) {
	res := NewResources()
	r := New(&fakeFrame{}, res, Options{LoadTimeout: 5 * time.Millisecond}, quietLog())

	for i := range 10 {
		r.Load(fmt.Sprintf("%s<!-- edit %d -->", doc, i))
		if i%3 == 0 {
			r.NotifyLoaded(r.Handle())
		}
	}
	if res.Live() != 1 {
		t.Fatalf("Live resources = %d after 10 loads, want 1", res.Live())
	}
	got, ok := res.Get(r.Handle())
	if !ok || got != doc+"<!-- edit 9 -->" {
		t.Errorf("Live resource = %q, %v", got, ok)
	}

	r.Close()
	if res.Live() != 0 {
		t.Errorf("Live resources = %d after Close, want 0", res.Live())
	}
	if r.State() != StateIdle {
		t.Errorf("State = %v after Close, want idle", r.State())
	}
}

func TestResetUsesRestartHook(t *testing.T) {
	frame := &fakeFrame{}
	r := New(frame, nil, Options{LoadTimeout: time.Minute}, quietLog())
	defer r.Close()

	r.Load(doc)
	r.NotifyLoaded(r.Handle())
	handle := r.Handle()

	r.Reset(context.Background())
	if frame.restarts != 1 {
		t.Errorf("Restarts = %d, want 1", frame.restarts)
	}
	if r.Handle() != handle || r.State() != StateReady {
		t.Errorf("Restart hook should not reload: handle %q state %v", r.Handle(), r.State())
	}
	if len(frame.Navigations()) != 1 {
		t.Errorf("Navigations = %v, want one", frame.Navigations())
	}
}

func TestResetFallsBackToReload(t *testing.T) {
	for name, frame := range map[string]Frame{
		"no hook":  &fakeFrame{restartErr: ErrNoRestartHook},
		"no frame": nil,
	} {
		t.Run(name, func(t *testing.T) {
			res := NewResources()
			r := New(frame, res, Options{LoadTimeout: time.Minute}, quietLog())
			defer r.Close()

			r.Load(doc)
			r.NotifyLoaded(r.Handle())
			handle := r.Handle()

			r.Reset(context.Background())
			if r.Handle() == handle {
				t.Error("Reload must use a new handle")
			}
			if r.State() != StateReloading {
				t.Errorf("State = %v, want reloading", r.State())
			}
			if r.Document() != doc {
				t.Errorf("Document changed on reset: %q", r.Document())
			}
			if res.Live() != 1 {
				t.Errorf("Live resources = %d, want 1", res.Live())
			}
		})
	}
}

func TestResetWhenIdle(t *testing.T) {
	frame := &fakeFrame{}
	r := New(frame, nil, Options{}, quietLog())
	r.Reset(context.Background())
	if frame.restarts != 0 || r.State() != StateIdle {
		t.Errorf("Reset on idle runtime did something: restarts %d state %v", frame.restarts, r.State())
	}
}

func TestObserver(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	r := New(&fakeFrame{}, nil, Options{
		LoadTimeout: time.Minute,
		OnState: func(s State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		},
	}, quietLog())

	r.Load(doc)
	r.NotifyLoaded(r.Handle())
	r.Load(doc + " ")
	r.Close()

	want := []State{StateLoading, StateReady, StateReloading, StateIdle}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("Transitions = %v, want %v", seen, want)
	}
}
