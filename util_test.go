package include_test

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func mustParse(t *testing.T, page string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("error parsing %q: %s", page, err)
	}
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var out strings.Builder
	if err := html.Render(&out, n); err != nil {
		t.Fatalf("error rendering node: %s", err)
	}
	return out.String()
}

func elementByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := elementByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// activeLinks returns the href of every anchor in n carrying the active class.
func activeLinks(n *html.Node) []string {
	var results []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			var href string
			var active bool
			for _, a := range n.Attr {
				switch a.Key {
				case "href":
					href = a.Val
				case "class":
					for _, c := range strings.Fields(a.Val) {
						if c == "active" {
							active = true
						}
					}
				}
			}
			if active {
				results = append(results, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return results
}
