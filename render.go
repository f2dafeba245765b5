package include

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoPlaceholder is returned when Inject is called without a
	// placeholder node.
	ErrNoPlaceholder = errors.New("no placeholder to replace")

	// ErrDetached is returned when the placeholder isn't attached to a
	// document, so there's nothing to insert the fragment into.
	ErrDetached = errors.New("placeholder has no parent")
)

// Inject replaces placeholder, tag and all, with the nodes parsed from markup,
// the same way assigning to an element's outerHTML would. The markup is
// parsed in the context of the placeholder's parent, so table rows land in
// tables and so on. The inserted top-level nodes are returned in order.
//
// An empty markup string removes the placeholder and inserts nothing.
func Inject(placeholder *html.Node, markup string) ([]*html.Node, error) {
	if placeholder == nil {
		return nil, ErrNoPlaceholder
	}
	parent := placeholder.Parent
	if parent == nil {
		return nil, ErrDetached
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext(parent))
	if err != nil {
		return nil, fmt.Errorf("error parsing fragment: %w", err)
	}
	for _, node := range nodes {
		parent.InsertBefore(node, placeholder)
	}
	parent.RemoveChild(placeholder)
	return nodes, nil
}

// fragmentContext picks the element fragment markup is parsed against. A
// placeholder directly under the document node (which html.Parse never
// produces, but hand-built trees might) gets a <body> context.
func fragmentContext(parent *html.Node) *html.Node {
	if parent.Type == html.ElementNode {
		return parent
	}
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
}

// IncludeHTML parses the page read from r, runs Include against it, and
// renders the result to w.
//
// A failed include doesn't stop the page from being written: w gets the page
// with its placeholder still in place, and the include error is returned so
// the caller can decide whether it's worth logging. Only parse and write
// errors mean w may be incomplete; those are wrapped in a *RenderError.
func (i *Includer) IncludeHTML(ctx context.Context, w io.Writer, r io.Reader, currentPath string) (Outcome, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Outcome{}, &RenderError{Err: fmt.Errorf("error parsing page: %w", err)}
	}

	outcome, includeErr := i.Include(ctx, doc, currentPath)
	if includeErr != nil {
		logger(ctx).DebugContext(ctx, "header not included, rendering page as is",
			"path", currentPath, "error", includeErr)
	}

	if err := html.Render(w, doc); err != nil {
		return outcome, &RenderError{Err: fmt.Errorf("error rendering page: %w", err)}
	}
	return outcome, includeErr
}

// RenderError reports that a page could not be parsed or written, as opposed
// to the header include itself failing.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
