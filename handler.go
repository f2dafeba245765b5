package include

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Decorator is an optional step Handler runs on every HTML page after the
// header include, for changes that belong to the serving environment rather
// than the site, like a live reload script.
type Decorator interface {
	Decorate(ctx context.Context, doc *html.Node) error
}

// DecoratorFunc adapts a function to the Decorator interface.
type DecoratorFunc func(ctx context.Context, doc *html.Node) error

// Decorate calls f.
func (f DecoratorFunc) Decorate(ctx context.Context, doc *html.Node) error {
	return f(ctx, doc)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithDecorators appends Decorators to the Handler, run in order.
func WithDecorators(decorators ...Decorator) HandlerOption {
	return func(h *Handler) {
		h.decorators = append(h.decorators, decorators...)
	}
}

// WithLogger sets the logger placed on each request's context. Without it,
// whatever logger is already on the request context is used.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

var _ http.Handler = &Handler{}

// Handler serves a static site out of an fs.FS, running every HTML page
// through an Includer on the way out. This does on the server what the
// placeholder would otherwise need a script in the browser for; the current
// path is the request's URL path.
//
// Files that aren't HTML, and paths that don't exist, are served by
// http.FileServerFS unchanged. HTML files that aren't whole documents, like
// the header fragment itself, are served byte for byte.
type Handler struct {
	site       fs.FS
	files      http.Handler
	includer   *Includer
	decorators []Decorator
	logger     *slog.Logger
}

// NewHandler returns a Handler serving site. If includer is nil, HTML pages
// are only passed through the Handler's Decorators.
func NewHandler(site fs.FS, includer *Includer, opts ...HandlerOption) *Handler {
	h := &Handler{
		site:     site,
		files:    http.FileServerFS(site),
		includer: includer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.files.ServeHTTP(w, r)
		return
	}
	urlPath := r.URL.Path
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	name := strings.TrimPrefix(path.Clean(urlPath), "/")
	if name == "" {
		name = "."
	}

	info, err := fs.Stat(h.site, name)
	if err != nil {
		h.files.ServeHTTP(w, r)
		return
	}
	if info.IsDir() {
		if !strings.HasSuffix(urlPath, "/") {
			target := urlPath + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}
		name = path.Join(name, indexFile)
		if _, err := fs.Stat(h.site, name); err != nil {
			h.files.ServeHTTP(w, r)
			return
		}
	} else if !strings.HasSuffix(name, ".html") {
		h.files.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	if h.logger != nil {
		ctx = LoggingContext(ctx, h.logger)
	}
	h.serveHTML(ctx, w, r, name)
}

func (h *Handler) serveHTML(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) {
	log := logger(ctx).With("path", r.URL.Path, "file", name)

	contents, err := fs.ReadFile(h.site, name)
	if err != nil {
		log.ErrorContext(ctx, "error reading page", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !isDocument(contents) {
		modTime := time.Time{}
		if info, err := fs.Stat(h.site, name); err == nil {
			modTime = info.ModTime()
		}
		http.ServeContent(w, r, name, modTime, bytes.NewReader(contents))
		return
	}
	doc, err := html.Parse(bytes.NewReader(contents))
	if err != nil {
		log.ErrorContext(ctx, "error parsing page", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if h.includer != nil {
		outcome, err := h.includer.Include(ctx, doc, r.URL.Path)
		switch {
		case err != nil:
			log.DebugContext(ctx, "header not included", "error", err)
		case outcome.MarkErr != nil:
			log.DebugContext(ctx, "header included without active links", "error", outcome.MarkErr)
		case outcome.Injected:
			log.DebugContext(ctx, "header included", "active", outcome.Marked.Active)
		}
	}

	for _, decorator := range h.decorators {
		if err := decorator.Decorate(ctx, doc); err != nil {
			log.WarnContext(ctx, "error decorating page", "decorator", fmt.Sprintf("%T", decorator), "error", err)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		log.ErrorContext(ctx, "error rendering page", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.WarnContext(ctx, "error writing page", "error", err)
	}
}

// isDocument reports whether contents is a whole page rather than a fragment:
// it opens with a doctype or an html, head or body tag, ignoring leading
// comments and whitespace.
func isDocument(contents []byte) bool {
	z := html.NewTokenizer(bytes.NewReader(contents))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.DoctypeToken:
			return true
		case html.CommentToken:
			continue
		case html.TextToken:
			if len(bytes.TrimSpace(z.Text())) > 0 {
				return false
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Html, atom.Head, atom.Body:
				return true
			}
			return false
		default:
			return false
		}
	}
}
