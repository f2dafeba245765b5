package include

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FindPlaceholder returns the first element, in document order, that carries
// the data-include-header attribute. It returns nil if there isn't one.
func FindPlaceholder(doc *html.Node) *html.Node {
	return findFirst(doc, func(n *html.Node) bool {
		_, ok := attr(n, PlaceholderAttr)
		return ok
	})
}

// findByID returns the first element under root (root included) whose id is
// id.
func findByID(root *html.Node, id string) *html.Node {
	return findFirst(root, func(n *html.Node) bool {
		val, ok := attr(n, "id")
		return ok && val == id
	})
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// navAnchors returns the anchors that the selector "#nav a" matches when run
// against container: descendants of container that sit inside an element
// with the nav id. That element may be container itself or one of its
// ancestors.
func navAnchors(container *html.Node) []*html.Node {
	var results []*html.Node
	var walk func(n *html.Node, inNav bool)
	walk = func(n *html.Node, inNav bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			childInNav := inNav || isNav(c)
			if inNav && c.DataAtom == atom.A {
				results = append(results, c)
			}
			walk(c, childInNav)
		}
	}
	walk(container, withinNav(container))
	return results
}

// hasNav reports whether "#nav" could match anything relevant to container.
func hasNav(container *html.Node) bool {
	return withinNav(container) || findByID(container, NavID) != nil
}

func withinNav(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if isNav(p) {
			return true
		}
	}
	return false
}

func isNav(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	id, ok := attr(n, "id")
	return ok && id == NavID
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	val, _ := attr(n, "class")
	for _, c := range strings.Fields(val) {
		if c == class {
			return true
		}
	}
	return false
}

// addClass appends class to the element's class list, leaving it alone if the
// token is already there.
func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	for i, a := range n.Attr {
		if a.Namespace != "" || a.Key != "class" {
			continue
		}
		if strings.TrimSpace(a.Val) == "" {
			n.Attr[i].Val = class
		} else {
			n.Attr[i].Val = a.Val + " " + class
		}
		return
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: class})
}
