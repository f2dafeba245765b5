package reload

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"impractical.co/include"
)

// ErrNoBody is returned by ScriptDecorator when a page has no <body> to add
// the script to.
var ErrNoBody = errors.New("page has no body element")

var _ include.Decorator = ScriptDecorator{}

// ScriptDecorator adds a script to the end of each page's <body> that listens
// on EventsPath and reloads the page when it receives ReloadMessage.
type ScriptDecorator struct {
	EventsPath string
}

func (s ScriptDecorator) script() string {
	return `
(function () {
	var source = new EventSource(` + strconv.Quote(s.EventsPath) + `);
	source.onmessage = function (event) {
		if (event.data === ` + strconv.Quote(ReloadMessage) + `) {
			location.reload();
		}
	};
})();
`
}

// Decorate implements include.Decorator.
func (s ScriptDecorator) Decorate(_ context.Context, doc *html.Node) error {
	body := findBody(doc)
	if body == nil {
		return ErrNoBody
	}
	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: s.script()})
	body.AppendChild(script)
	return nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}
