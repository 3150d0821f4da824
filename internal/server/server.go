// Package server hosts the active game in a browser.
//
// The host page embeds a sandboxed iframe and keeps a websocket open to the
// Hub, which drives navigation and restarts on behalf of the sandbox
// runtime. Game documents are served from their own route with a CSP
// sandbox policy, so they run scripts but never share the host's origin.
package server

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/sandbox"
)

//go:embed static/index.html
var static embed.FS

// SandboxPolicy is granted to game documents. allow-same-origin is left out
// on purpose: games must not reach the host page's storage or cookies.
const SandboxPolicy = "allow-scripts allow-forms allow-pointer-lock allow-modals"

type Server struct {
	res    *sandbox.Resources
	hub    *Hub
	log    logrus.FieldLogger
	router chi.Router
}

func New(res *sandbox.Resources, hub *Hub, log logrus.FieldLogger) *Server {
	s := &Server{
		res: res,
		hub: hub,
		log: log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Get("/", s.handleIndex)
	r.Get(sandbox.PathPrefix+"{handle}", s.handleDocument)
	r.Get("/ws", hub.ServeHTTP)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Sandbox server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "host page missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	doc, ok := s.res.Get(handle)
	if !ok {
		http.NotFound(w, r)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", "sandbox "+SandboxPolicy)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write([]byte(injectBridge(doc)))
}
