package source

import (
	"strings"

	"golang.org/x/net/html"
)

// Thin traversal helpers over x/net/html. The upstream markup is treated
// as opaque and unstable: everything here degrades to "not found" rather
// than erroring on shape changes.

type htmlNode = html.Node

func parseHTML(body string) (*htmlNode, error) {
	return html.Parse(strings.NewReader(body))
}

type nodeMatch func(*htmlNode) bool

func withClass(class string) nodeMatch {
	return func(n *htmlNode) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func withTag(tag string) nodeMatch {
	return func(n *htmlNode) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func findAll(root *htmlNode, match nodeMatch) []*htmlNode {
	var out []*htmlNode
	var walk func(*htmlNode)
	walk = func(n *htmlNode) {
		if match(n) {
			out = append(out, n)
			return // do not descend into matched subtrees
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *htmlNode, match nodeMatch) *htmlNode {
	var found *htmlNode
	var walk func(*htmlNode) bool
	walk = func(n *htmlNode) bool {
		if match(n) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

func attr(n *htmlNode, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *htmlNode) string {
	var sb strings.Builder
	var walk func(*htmlNode)
	walk = func(n *htmlNode) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
