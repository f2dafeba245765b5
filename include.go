package include

import (
	"context"
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
)

var (
	// ErrNoFetcher is returned by Include when the Includer has no Fetcher
	// but the document has a placeholder to fill.
	ErrNoFetcher = errors.New("includer has no fetcher")

	// ErrHeaderNotFound is reported in Outcome.MarkErr when the injected
	// fragment has no element with the header id, so no links are marked.
	ErrHeaderNotFound = errors.New("header element not found")
)

// Includer replaces a document's placeholder with the shared header fragment
// and highlights the navigation link for the current page. The zero value
// isn't usable; it needs a Fetcher.
type Includer struct {
	// Fetcher retrieves the header fragment.
	Fetcher Fetcher

	// PartialPath is the site-relative path of the fragment. If empty,
	// DefaultPartialPath is used.
	PartialPath string

	// Policy, when set, sanitizes the fragment before it is injected. It
	// needs to allow the id attribute for the header and nav to be found
	// afterwards, and the class attribute for existing classes to survive.
	Policy *bluemonday.Policy
}

// Outcome reports what Include did to a document.
type Outcome struct {
	// Injected is true when the placeholder was replaced.
	Injected bool

	// Marked is the result of highlighting the navigation links. It's
	// only meaningful when Injected is true and MarkErr is nil.
	Marked MarkResult

	// MarkErr is set when the fragment was injected but active links
	// couldn't be marked. The page is still usable; nothing is
	// highlighted.
	MarkErr error
}

func (i *Includer) partialPath() string {
	if i.PartialPath == "" {
		return DefaultPartialPath
	}
	return i.PartialPath
}

// Include fills the first placeholder in doc with the header fragment, then
// marks the active links inside the injected header using currentPath, the
// path component of the page's location. currentPath is normalized with
// CurrentPath first.
//
// A document without a placeholder is left alone and nothing is fetched; the
// zero Outcome and a nil error are returned. If fetching the fragment fails,
// the error is returned and doc keeps its placeholder. Problems marking
// links don't undo the injection and are reported in Outcome.MarkErr instead.
func (i *Includer) Include(ctx context.Context, doc *html.Node, currentPath string) (Outcome, error) {
	ctx, span := tracer().Start(ctx, "include.Include")
	defer span.End()

	var outcome Outcome
	placeholder := FindPlaceholder(doc)
	if placeholder == nil {
		span.SetAttributes(attribute.Bool("include.placeholder", false))
		return outcome, nil
	}
	span.SetAttributes(attribute.Bool("include.placeholder", true))

	if i.Fetcher == nil {
		span.SetStatus(codes.Error, ErrNoFetcher.Error())
		return outcome, ErrNoFetcher
	}

	path := i.partialPath()
	markup, err := i.Fetcher.Fetch(ctx, path)
	if err != nil {
		err = fmt.Errorf("error fetching header from %q: %w", path, err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	if i.Policy != nil {
		markup = i.Policy.Sanitize(markup)
	}

	if _, err := Inject(placeholder, markup); err != nil {
		err = fmt.Errorf("error injecting header: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	outcome.Injected = true

	header := findByID(doc, HeaderID)
	if header == nil {
		outcome.MarkErr = ErrHeaderNotFound
		logger(ctx).DebugContext(ctx, "header injected without a header element", "partial", path)
		return outcome, nil
	}
	outcome.Marked, outcome.MarkErr = MarkActive(ctx, header, CurrentPath(currentPath))
	if outcome.MarkErr != nil {
		logger(ctx).DebugContext(ctx, "no active links marked", "path", currentPath, "error", outcome.MarkErr)
	}
	return outcome, nil
}
