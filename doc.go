// Package include injects a shared header fragment into HTML pages and marks
// the navigation links that match the current page as active.
//
// A page opts in by carrying a placeholder element with the
// data-include-header attribute:
//
//	<div data-include-header></div>
//
// An Includer fetches the fragment (by default /partials/header.html) through
// a Fetcher, replaces the placeholder with it, then finds the element with the
// id "header" and adds the "active" class to every anchor under its "#nav"
// element whose destination matches the current path. A link to "/" is only
// active on the root page; any other link is active when the current path
// starts with its destination, so a section link stays highlighted on every
// page within that section, and several links can be active at once.
//
// Each step is exposed on its own so it can be used without a browser or a
// server: FindPlaceholder locates the injection point, Inject performs the
// markup replacement, and MarkActive does the highlighting against an explicit
// current path, returning a MarkResult rather than hiding failures.
//
// Handler ties this together for static sites, applying the include to every
// HTML file it serves out of an fs.FS.
//
// Logging goes through a *slog.Logger carried on the context; see
// LoggingContext. Spans are started with the global OpenTelemetry tracer
// provider.
package include
