// Package dom is the document collaborator of the extraction engine.
//
// It parses markup with goquery, compiles CSS selectors with cascadia and
// hands out Node values: cheap {document, *html.Node} handles into a tree the
// Document owns. Text content is computed lazily and cached per node in the
// document, so repeated queries against the same elements stay cheap.
//
// A Document is read-only after Parse and safe for concurrent queries.
package dom

import (
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML/XML document.
type Document struct {
	doc *goquery.Document

	// texts caches Node.Text by node pointer.
	texts sync.Map
	// matchers caches compiled selectors by selector text.
	matchers sync.Map
}

// Parse reads and parses markup from r as a fragment in a body context.
//
// The parsed nodes hang under a single html element, so no implicit head or
// body elements are created. A complete page parses to the contents of its
// head and body.
func Parse(r io.Reader) (*Document, error) {
	nodes, err := html.ParseFragment(r, &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	root := &html.Node{Type: html.DocumentNode}
	top := &html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html}
	root.AppendChild(top)
	for _, n := range nodes {
		top.AppendChild(n)
	}
	return &Document{doc: goquery.NewDocumentFromNode(root)}, nil
}

// ParseString parses a document held in memory.
func ParseString(src string) (*Document, error) {
	return Parse(strings.NewReader(src))
}

// FromGoquery wraps an already parsed goquery document.
func FromGoquery(doc *goquery.Document) *Document {
	return &Document{doc: doc}
}

// Goquery returns the underlying goquery document.
func (d *Document) Goquery() *goquery.Document { return d.doc }

// Compile compiles selector, reusing a previous compilation when possible.
func (d *Document) Compile(selector string) (goquery.Matcher, error) {
	if m, ok := d.matchers.Load(selector); ok {
		return m.(goquery.Matcher), nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	m, _ := d.matchers.LoadOrStore(selector, sel)
	return m.(goquery.Matcher), nil
}

// QueryOne returns the first element under ctx (or anywhere in the document
// when ctx is the zero Node) matching selector.
func (d *Document) QueryOne(ctx Node, selector string) (Node, bool, error) {
	m, err := d.Compile(selector)
	if err != nil {
		return Node{}, false, err
	}
	found := d.within(ctx).FindMatcher(m)
	if found.Length() == 0 {
		return Node{}, false, nil
	}
	return d.node(found.Get(0)), true, nil
}

// QueryAll returns every element under ctx (or in the whole document when ctx
// is the zero Node) matching selector, in document order.
func (d *Document) QueryAll(ctx Node, selector string) ([]Node, error) {
	m, err := d.Compile(selector)
	if err != nil {
		return nil, err
	}
	found := d.within(ctx).FindMatcher(m)
	out := make([]Node, 0, found.Length())
	for _, n := range found.Nodes {
		out = append(out, d.node(n))
	}
	return out, nil
}

// within returns the selection whose descendants a query searches.
func (d *Document) within(ctx Node) *goquery.Selection {
	if ctx.n == nil {
		return d.doc.Selection
	}
	return d.doc.FindNodes(ctx.n)
}

func (d *Document) node(n *html.Node) Node {
	return Node{doc: d, n: n}
}

// Node is a handle to one node of a Document. The zero Node refers to nothing.
type Node struct {
	doc *Document
	n   *html.Node
}

// IsZero reports whether the handle refers to no node.
func (n Node) IsZero() bool { return n.n == nil }

// HTMLNode returns the underlying x/net/html node.
func (n Node) HTMLNode() *html.Node { return n.n }

// Tag returns the lower-case element name, or "" for non-element nodes.
func (n Node) Tag() string {
	if n.n == nil || n.n.Type != html.ElementNode {
		return ""
	}
	return n.n.Data
}

// Text returns the concatenated text content of the node's subtree.
func (n Node) Text() string {
	if n.n == nil {
		return ""
	}
	if s, ok := n.doc.texts.Load(n.n); ok {
		return s.(string)
	}
	s := goquery.NewDocumentFromNode(n.n).Text()
	n.doc.texts.Store(n.n, s)
	return s
}

// Attr returns the value of the named attribute.
func (n Node) Attr(name string) (string, bool) {
	if n.n == nil {
		return "", false
	}
	for _, a := range n.n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// FollowingSiblings yields the element siblings after n, in document order.
func (n Node) FollowingSiblings() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		if n.n == nil {
			return
		}
		for s := n.n.NextSibling; s != nil; s = s.NextSibling {
			if s.Type != html.ElementNode {
				continue
			}
			if !yield(Node{doc: n.doc, n: s}) {
				return
			}
		}
	}
}

// NextSiblingText returns the data of the immediately following sibling when
// that sibling is a text node.
func (n Node) NextSiblingText() (string, bool) {
	if n.n == nil || n.n.NextSibling == nil {
		return "", false
	}
	s := n.n.NextSibling
	if s.Type != html.TextNode {
		return "", false
	}
	return s.Data, true
}

// OuterHTML renders the node and its subtree.
func (n Node) OuterHTML() (string, error) {
	if n.n == nil {
		return "", nil
	}
	return goquery.OuterHtml(n.doc.doc.FindNodes(n.n))
}
