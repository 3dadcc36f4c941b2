package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/qretaio/html2json/internal/dom"
)

// DebugPrintSelector prints either outer HTML or text of matches for a CSS
// selector. This is used by the command's "-selector" debug mode.
//
// An invalid selector is an error rather than an empty result.
func DebugPrintSelector(w io.Writer, src, selector string, textOnly bool) error {
	doc, err := dom.ParseString(src)
	if err != nil {
		return err
	}
	m, err := doc.Compile(selector)
	if err != nil {
		return err
	}

	doc.Goquery().FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			printMatch(w, strings.TrimSpace(s.Text()))
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			out, _ = s.Html()
		}
		printMatch(w, out)
	})
	return nil
}

// DebugPrintXPath is the "-xpath" counterpart of DebugPrintSelector.
func DebugPrintXPath(w io.Writer, src, expr string, textOnly bool) error {
	root, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return fmt.Errorf("xpath %q: %w", expr, err)
	}

	for _, n := range nodes {
		switch {
		case textOnly:
			printMatch(w, strings.TrimSpace(htmlquery.InnerText(n)))
		case n.Type == html.ElementNode:
			printMatch(w, htmlquery.OutputHTML(n, true))
		default:
			// text() results have no markup of their own.
			printMatch(w, htmlquery.InnerText(n))
		}
	}
	return nil
}

// printMatch writes one match followed by a blank separator line.
func printMatch(w io.Writer, s string) {
	fmt.Fprintln(w, s)
	fmt.Fprintln(w)
}
