package include

import "strings"

const (
	// DefaultPartialPath is the site-relative path the header fragment is
	// fetched from when an Includer doesn't set one.
	DefaultPartialPath = "/partials/header.html"

	// PlaceholderAttr is the boolean attribute that marks the element the
	// header fragment replaces.
	PlaceholderAttr = "data-include-header"

	// HeaderID is the id of the element, inside the fragment, that active
	// links are searched for in.
	HeaderID = "header"

	// NavID is the id of the navigation region whose anchors are
	// considered for highlighting.
	NavID = "nav"

	// ActiveClass is the class token added to active anchors.
	ActiveClass = "active"

	indexFile = "index.html"
)

// CurrentPath turns a location path into the path links are compared
// against. A trailing index.html is treated as the directory it lives in, so
// "/index.html" becomes "/" and "/blog/index.html" becomes "/blog/". Anything
// else, including the empty string, comes back unchanged.
func CurrentPath(location string) string {
	if !strings.HasSuffix(location, indexFile) {
		return location
	}
	dir := strings.TrimSuffix(location, indexFile)
	if !strings.HasSuffix(dir, "/") {
		// "index.html" with nothing before it, or a name that merely
		// ends in index.html, like "/oldindex.html"
		if dir != "" {
			return location
		}
		dir += "/"
	}
	return dir
}

// NormalizeHref returns the site-relative form of a link destination, with a
// leading slash. The second return is false for absolute http and https URLs,
// which never count as the current page.
func NormalizeHref(href string) (string, bool) {
	if isExternal(href) {
		return "", false
	}
	if strings.HasPrefix(href, "/") {
		return href, true
	}
	return "/" + href, true
}

// IsActive reports whether a link with the normalized destination should be
// highlighted on the page at current. The root link only matches the root
// page; every other link matches any page under it. So on "/blog/post-1/" a
// "/blog/" link is active but a "/" link is not.
func IsActive(normalized, current string) bool {
	if normalized == "/" {
		return current == "/" || current == ""
	}
	return strings.HasPrefix(current, normalized)
}

func isExternal(href string) bool {
	scheme, _, ok := strings.Cut(href, ":")
	if !ok {
		return false
	}
	return strings.EqualFold(scheme, "http") || strings.EqualFold(scheme, "https")
}
