package include

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
)

var (
	// ErrNilContainer is returned when MarkActive is handed no container
	// to search.
	ErrNilContainer = errors.New("no container to mark links in")

	// ErrNavNotFound is returned when the container has no element with
	// the nav id, so there are no links to consider.
	ErrNavNotFound = errors.New("navigation region not found")
)

// MarkResult describes what MarkActive did.
type MarkResult struct {
	// Links is the number of anchors found in the navigation region.
	Links int

	// Skipped is the number of those anchors that were never candidates:
	// external links and anchors without an href.
	Skipped int

	// Active holds the href of every anchor that was marked active, in
	// document order. More than one link can be active when their
	// destinations are prefixes of each other.
	Active []string
}

// MarkActive adds the active class to every anchor in container's navigation
// region whose destination matches currentPath, as decided by NormalizeHref
// and IsActive. currentPath should already have gone through CurrentPath.
//
// Failures are returned rather than swallowed; none of them leave the
// container in a half-marked state, because they're detected before any
// anchor is touched.
func MarkActive(ctx context.Context, container *html.Node, currentPath string) (MarkResult, error) {
	_, span := tracer().Start(ctx, "include.MarkActive")
	defer span.End()
	span.SetAttributes(attribute.String("include.current_path", currentPath))

	var result MarkResult
	if container == nil {
		span.SetStatus(codes.Error, ErrNilContainer.Error())
		return result, ErrNilContainer
	}
	if !hasNav(container) {
		err := fmt.Errorf("looking for #%s: %w", NavID, ErrNavNotFound)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	for _, anchor := range navAnchors(container) {
		result.Links++
		href, ok := attr(anchor, "href")
		if !ok {
			result.Skipped++
			continue
		}
		normalized, ok := NormalizeHref(href)
		if !ok {
			result.Skipped++
			continue
		}
		if !IsActive(normalized, currentPath) {
			continue
		}
		addClass(anchor, ActiveClass)
		result.Active = append(result.Active, href)
	}

	span.SetAttributes(
		attribute.Int("include.links", result.Links),
		attribute.Int("include.active", len(result.Active)),
	)
	return result, nil
}
