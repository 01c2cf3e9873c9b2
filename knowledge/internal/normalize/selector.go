// CLAUDE:SUMMARY Minimal CSS selector engine over x/net/html: tag, .class, #id, [attr], [attr=val], descendant, groups.
package normalize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Select returns the nodes matching selector, in document order. Supported:
//
//	article            tag
//	.content           class
//	#main              id
//	div.body, div#x    compound
//	div[role=main]     attribute (value optional, quotes stripped)
//	main article p     descendant
//	h1, .lead          groups
//
// Matches nested inside another match are dropped so text is not repeated.
func Select(doc *html.Node, selector string) []*html.Node {
	var all []*html.Node
	for _, group := range strings.Split(selector, ",") {
		all = append(all, selectGroup(doc, group)...)
	}
	if len(all) == 0 {
		return nil
	}

	picked := make(map[*html.Node]bool, len(all))
	for _, n := range all {
		picked[n] = true
	}
	var out []*html.Node
	walk(doc, func(n *html.Node) bool {
		if picked[n] {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

func selectGroup(doc *html.Node, group string) []*html.Node {
	parts := strings.Fields(group)
	if len(parts) == 0 {
		return nil
	}
	scope := []*html.Node{doc}
	for _, p := range parts {
		sel := parseCompound(p)
		seen := make(map[*html.Node]bool)
		var next []*html.Node
		for _, root := range scope {
			for c := root.FirstChild; c != nil; c = c.NextSibling {
				walk(c, func(n *html.Node) bool {
					if sel.matches(n) && !seen[n] {
						seen[n] = true
						next = append(next, n)
					}
					return true
				})
			}
		}
		scope = next
		if len(scope) == 0 {
			return nil
		}
	}
	return scope
}

// walk visits n and its subtree depth-first; fn returning false skips children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrVal string
	hasVal  bool
}

func parseCompound(sel string) compound {
	var c compound
	if i := strings.IndexByte(sel, '['); i >= 0 {
		attr := strings.TrimSuffix(sel[i+1:], "]")
		sel = sel[:i]
		if k, v, ok := strings.Cut(attr, "="); ok {
			c.attrKey, c.attrVal, c.hasVal = k, strings.Trim(v, `"'`), true
		} else {
			c.attrKey = attr
		}
	}
	if i := strings.IndexByte(sel, '#'); i >= 0 {
		c.id = sel[i+1:]
		sel = sel[:i]
		if j := strings.IndexByte(c.id, '.'); j >= 0 {
			c.classes = strings.Split(c.id[j+1:], ".")
			c.id = c.id[:j]
		}
	}
	if i := strings.IndexByte(sel, '.'); i >= 0 {
		c.classes = append(c.classes, strings.Split(sel[i+1:], ".")...)
		sel = sel[:i]
	}
	c.tag = strings.ToLower(sel)
	return c
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	if c.attrKey != "" {
		v, ok := lookupAttr(n, c.attrKey)
		if !ok || (c.hasVal && v != c.attrVal) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
}

var skipAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
}

// Text returns the visible text under n, one line per block element, with
// runs of whitespace collapsed.
func Text(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
		case html.ElementNode:
			if skipAtoms[c.DataAtom] {
				return false
			}
			if blockAtoms[c.DataAtom] {
				sb.WriteByte('\n')
			}
		}
		return true
	})

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
