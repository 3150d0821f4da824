package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/sandbox"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(t *testing.T) (*httptest.Server, *sandbox.Resources, *Hub) {
	t.Helper()
	res := sandbox.NewResources()
	hub := NewHub(quietLog())
	ts := httptest.NewServer(New(res, hub, quietLog()).Handler())
	t.Cleanup(ts.Close)
	return ts, res, hub
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestHostPage(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, body := get(t, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `sandbox="`+SandboxPolicy+`"`) {
		t.Error("Host page iframe is missing the sandbox policy")
	}
	if strings.Contains(body, "allow-same-origin") {
		t.Error("Host page must not grant same-origin access")
	}
}

func TestServeDocument(t *testing.T) {
	ts, res, _ := newTestServer(t)
	doc := "<!DOCTYPE html><html><body><canvas></canvas></body></html>"
	handle := res.Create(doc)

	resp, body := get(t, ts.URL+sandbox.URL(handle))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	csp := resp.Header.Get("Content-Security-Policy")
	if csp != "sandbox "+SandboxPolicy {
		t.Errorf("Content-Security-Policy = %q", csp)
	}
	if !strings.Contains(body, "gameforge:restart") {
		t.Error("Served copy is missing the bridge script")
	}
	if stored, _ := res.Get(handle); stored != doc {
		t.Errorf("Stored document was modified: %q", stored)
	}

	resp, _ = get(t, ts.URL+sandbox.URL("unknown"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown handle status = %d, want 404", resp.StatusCode)
	}
}

func TestInjectBridge(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		before string // text that must directly follow the bridge
	}{
		{
			name:   "body",
			doc:    "<html><body><p>hi</p></body></html>",
			before: "\n</body></html>",
		},
		{
			name:   "body string inside script",
			doc:    `<html><body><script>document.write("</body>")</script></body></html>`,
			before: "\n</body></html>",
		},
		{
			name:   "no body close",
			doc:    "<html><canvas></canvas></html>",
			before: "\n</html>",
		},
		{
			name:   "fragment",
			doc:    "<canvas></canvas>",
			before: "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := injectBridge(tt.doc)
			i := strings.Index(got, bridgeScript)
			if i < 0 {
				t.Fatalf("bridge missing: %q", got)
			}
			if rest := got[i+len(bridgeScript):]; rest != tt.before {
				t.Errorf("text after bridge = %q, want %q", rest, tt.before)
			}
			if strings.Replace(got, bridgeScript+"\n", "", 1) != tt.doc {
				t.Errorf("document altered outside the insertion: %q", got)
			}
		})
	}
}

func dial(t *testing.T, ts *httptest.Server, hub *Hub) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return c
}

func read(t *testing.T, c *websocket.Conn) message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg message
	if err := wsjson.Read(ctx, c, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHubNavigateAndLoaded(t *testing.T) {
	ts, _, hub := newTestServer(t)
	loaded := make(chan string, 1)
	hub.SetLoadHandler(func(handle string) { loaded <- handle })

	c := dial(t, ts, hub)
	if err := hub.Navigate("h1", sandbox.URL("h1")); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	msg := read(t, c)
	if msg.Type != msgNavigate || msg.Handle != "h1" || msg.URL != "/sandbox/h1" {
		t.Fatalf("message = %+v", msg)
	}

	if err := wsjson.Write(context.Background(), c, message{Type: msgLoaded, Handle: "h1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-loaded:
		if got != "h1" {
			t.Errorf("loaded handle = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("load report not delivered")
	}
}

func TestHubReplaysToNewPage(t *testing.T) {
	ts, _, hub := newTestServer(t)
	hub.Navigate("h2", sandbox.URL("h2"))
	hub.SetState(sandbox.StateReady)

	c := dial(t, ts, hub)
	if msg := read(t, c); msg.Type != msgNavigate || msg.Handle != "h2" {
		t.Errorf("first replay = %+v", msg)
	}
	if msg := read(t, c); msg.Type != msgState || msg.State != "ready" {
		t.Errorf("second replay = %+v", msg)
	}
}

func TestHubRestart(t *testing.T) {
	_, _, hub := newTestServer(t)
	if err := hub.Restart(context.Background()); !errors.Is(err, sandbox.ErrNoFrame) {
		t.Fatalf("Restart without pages = %v, want ErrNoFrame", err)
	}

	for name, ok := range map[string]bool{"hook present": true, "hook missing": false} {
		t.Run(name, func(t *testing.T) {
			ts, _, hub := newTestServer(t)
			c := dial(t, ts, hub)

			go func() {
				var msg message
				if err := wsjson.Read(context.Background(), c, &msg); err != nil {
					return
				}
				wsjson.Write(context.Background(), c, message{Type: msgRestartResult, ID: msg.ID, OK: ok})
			}()

			err := hub.Restart(context.Background())
			if ok && err != nil {
				t.Errorf("Restart = %v, want nil", err)
			}
			if !ok && !errors.Is(err, sandbox.ErrNoRestartHook) {
				t.Errorf("Restart = %v, want ErrNoRestartHook", err)
			}
		})
	}
}
