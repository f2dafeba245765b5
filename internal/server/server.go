// Package server wires the include Handler, the live reload machinery and the
// development headers into an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"impractical.co/include"
	"impractical.co/include/internal/config"
	"impractical.co/include/internal/reload"
)

const shutdownTimeout = 5 * time.Second

// Server serves a static site with the shared header included.
type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	router  *chi.Mux
	broker  *reload.Broker
	watcher *reload.Watcher
	onReady func(url string)
}

// New builds a Server for cfg, serving the files in site. A nil logger means
// slog.Default().
func New(cfg config.Config, site fs.FS, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Headers(DevHeaders(cfg.CORS, cfg.NoCache)))

	var opts []include.HandlerOption
	opts = append(opts, include.WithLogger(logger))
	if cfg.LiveReload {
		s.broker = reload.NewBroker(logger)
		s.watcher = reload.New(site, reload.Options{
			Interval:   cfg.WatchInterval,
			Debounce:   cfg.Debounce,
			Extensions: cfg.WatchExtensions,
			Logger:     logger,
		})
		r.Method(http.MethodGet, cfg.EventsPath, s.broker)
		opts = append(opts, include.WithDecorators(reload.ScriptDecorator{EventsPath: cfg.EventsPath}))
	}
	r.Handle("/*", include.NewHandler(site, s.includer(site), opts...))

	s.router = r
	return s
}

// includer returns the Includer pages are run through, or nil when the
// include is left to the browser.
func (s *Server) includer(site fs.FS) *include.Includer {
	if !s.cfg.ServerSide {
		return nil
	}
	includer := &include.Includer{
		Fetcher:     include.FSFetcher{FS: site},
		PartialPath: s.cfg.PartialPath,
	}
	if s.cfg.PartialsOrigin != "" {
		includer.Fetcher = include.HTTPFetcher{
			Client:  &http.Client{Timeout: 10 * time.Second},
			BaseURL: s.cfg.PartialsOrigin,
		}
	}
	if s.cfg.Sanitize {
		includer.Policy = FragmentPolicy()
	}
	return includer
}

// FragmentPolicy is the sanitizer used for header fragments: user-generated
// content rules, plus the layout elements a header is made of and the id and
// class attributes the include relies on.
func FragmentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("header", "nav", "section", "button", "svg", "path")
	policy.AllowAttrs("id", "class", "role").Globally()
	policy.AllowAttrs("aria-label", "aria-current", "aria-expanded").Globally()
	return policy
}

// Handler returns the Server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Reloads returns the live reload broker, or nil when live reload is off.
func (s *Server) Reloads() *reload.Broker {
	return s.broker
}

// OnReady registers fn to be called with the server's URL once Serve is
// accepting connections.
func (s *Server) OnReady(fn func(url string)) {
	s.onReady = fn
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully. The file watcher runs alongside when live reload is
// on.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run with a listener supplied by the caller.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var wg sync.WaitGroup
	if s.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.watcher.OnChange(ctx, s.broker.Reload)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	url := displayAddr(ln.Addr())
	s.logger.InfoContext(ctx, "serving site", "addr", url, "root", s.cfg.Root,
		"server_side", s.cfg.ServerSide, "live_reload", s.cfg.LiveReload)
	if s.onReady != nil {
		s.onReady(url)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			serveErr = fmt.Errorf("shutdown: %w", err)
		}
		_ = srv.Close()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}
	wg.Wait()
	s.logger.InfoContext(ctx, "server stopped")
	return serveErr
}

// SiteFS returns the fs.FS for the configured root directory.
func SiteFS(cfg config.Config) (fs.FS, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("site root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("site root %s is not a directory", cfg.Root)
	}
	return os.DirFS(cfg.Root), nil
}

func displayAddr(addr net.Addr) string {
	s := addr.String()
	if strings.HasPrefix(s, "[::]:") {
		return "http://localhost:" + strings.TrimPrefix(s, "[::]:")
	}
	return "http://" + s
}
