package server_test

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"impractical.co/include/internal/config"
	"impractical.co/include/internal/server"
)

const page = `<!DOCTYPE html><html><head></head><body><div data-include-header></div></body></html>`

const header = `<header id="header"><nav id="nav"><a href="/">Home</a><a href="/blog/">Blog</a></nav></header>`

func testSite() fstest.MapFS {
	return fstest.MapFS{
		"index.html":           {Data: []byte(page)},
		"blog/index.html":      {Data: []byte(page)},
		"partials/header.html": {Data: []byte(header)},
		"site.css":             {Data: []byte(`body {}`)},
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.WatchInterval = 10 * time.Millisecond
	cfg.Debounce = 0
	return cfg
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerIncludesHeader(t *testing.T) {
	t.Parallel()

	srv := server.New(testConfig(), testSite(), slog.New(slog.DiscardHandler))
	rec := get(t, srv.Handler(), "/blog/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<a href="/blog/" class="active">Blog</a>`) {
		t.Errorf("Expected the blog link to be active, got %s", body)
	}
	if strings.Contains(body, "data-include-header") {
		t.Errorf("Expected the placeholder to be replaced, got %s", body)
	}
	if !strings.Contains(body, `new EventSource("/events")`) {
		t.Errorf("Expected the live reload script, got %s", body)
	}
}

func TestServerHeaders(t *testing.T) {
	t.Parallel()

	srv := server.New(testConfig(), testSite(), slog.New(slog.DiscardHandler))
	rec := get(t, srv.Handler(), "/site.css")
	checks := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
		"Cache-Control":                "no-cache, no-store, must-revalidate",
	}
	for header, expected := range checks {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("%s: got %q, want %q", header, got, expected)
		}
	}

	cfg := testConfig()
	cfg.CORS = false
	cfg.NoCache = false
	srv = server.New(cfg, testSite(), slog.New(slog.DiscardHandler))
	rec = get(t, srv.Handler(), "/site.css")
	for header := range checks {
		if got := rec.Header().Get(header); got != "" {
			t.Errorf("Expected no %s header when disabled, got %q", header, got)
		}
	}
}

func TestServerClientSideMode(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ServerSide = false
	cfg.LiveReload = false
	srv := server.New(cfg, testSite(), slog.New(slog.DiscardHandler))
	if srv.Reloads() != nil {
		t.Error("Expected no reload broker with live reload off")
	}

	body := get(t, srv.Handler(), "/").Body.String()
	if !strings.Contains(body, `data-include-header=""`) {
		t.Errorf("Expected the placeholder to be left in place, got %s", body)
	}
	if strings.Contains(body, "EventSource") {
		t.Errorf("Expected no live reload script, got %s", body)
	}
	if rec := get(t, srv.Handler(), "/events"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected no events endpoint, got status %d", rec.Code)
	}
}

func TestServerSanitize(t *testing.T) {
	t.Parallel()

	site := testSite()
	site["partials/header.html"] = &fstest.MapFile{Data: []byte(`<header id="header"><script>alert(1)</script><nav id="nav" class="main"><a href="/">Home</a></nav></header>`)}
	cfg := testConfig()
	cfg.Sanitize = true
	cfg.LiveReload = false
	srv := server.New(cfg, site, slog.New(slog.DiscardHandler))

	body := get(t, srv.Handler(), "/").Body.String()
	if strings.Contains(body, "<script") {
		t.Errorf("Expected scripts to be stripped from the fragment, got %s", body)
	}
	if !strings.Contains(body, `<nav id="nav" class="main">`) {
		t.Errorf("Expected the nav to keep its id and class, got %s", body)
	}
}

func TestServerPartialsOrigin(t *testing.T) {
	t.Parallel()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/partials/header.html" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `<header id="header"><nav id="nav"><a href="/">Remote home</a></nav></header>`)
	}))
	t.Cleanup(origin.Close)

	cfg := testConfig()
	cfg.PartialsOrigin = origin.URL
	cfg.LiveReload = false
	srv := server.New(cfg, testSite(), slog.New(slog.DiscardHandler))

	body := get(t, srv.Handler(), "/").Body.String()
	if !strings.Contains(body, `<a href="/" class="active">Remote home</a>`) {
		t.Errorf("Expected the remote header with an active home link, got %s", body)
	}
}

func TestServerPartialsFromAnotherServer(t *testing.T) {
	t.Parallel()

	upstream := server.New(testConfig(), testSite(), slog.New(slog.DiscardHandler))
	origin := httptest.NewServer(upstream.Handler())
	t.Cleanup(origin.Close)

	if body := get(t, upstream.Handler(), "/partials/header.html").Body.String(); body != header {
		t.Errorf("Expected the partial to be served as is, got %s", body)
	}

	cfg := testConfig()
	cfg.PartialsOrigin = origin.URL
	srv := server.New(cfg, testSite(), slog.New(slog.DiscardHandler))

	body := get(t, srv.Handler(), "/").Body.String()
	if n := strings.Count(body, "new EventSource("); n != 1 {
		t.Errorf("Expected exactly one live reload script, found %d in %s", n, body)
	}
	if !strings.Contains(body, `<a href="/" class="active">Home</a>`) {
		t.Errorf("Expected the upstream header with an active home link, got %s", body)
	}
}

func TestServerServeAndReload(t *testing.T) {
	t.Parallel()

	srv := server.New(testConfig(), testSite(), slog.New(slog.DiscardHandler))
	ready := make(chan string, 1)
	srv.OnReady(func(url string) { ready <- url })
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Error listening: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	select {
	case url := <-ready:
		if expected := "http://" + ln.Addr().String(); url != expected {
			t.Errorf("Expected ready URL %s, got %s", expected, url)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the server to be ready")
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+ln.Addr().String()+"/events", nil)
	if err != nil {
		t.Fatalf("Error building request: %s", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Error connecting to events: %s", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected an event stream, got %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.Reloads().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the events client")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := srv.Reloads().Reload(); err != nil {
		t.Fatalf("Unexpected error from Reload: %s", err)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("Error reading event: %s", err)
	}
	if got := strings.TrimSpace(line); got != "data: reload" {
		t.Errorf("Expected %q, got %q", "data: reload", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Unexpected error from Serve: %s", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for the server to stop")
	}
}
