// internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// anchorAttrs are attributes stable enough to root a path on, in priority order.
var anchorAttrs = []string{"id", "bind-id"}

// NodePath builds an XPath expression that selects n. It anchors on the
// nearest ancestor carrying an id or bind-id so paths stay short and survive
// sibling reordering. Used to identify nodes in logs.
func NodePath(n *html.Node) string {
	if n == nil {
		return ""
	}

	var path []string
	anchored := false
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(cur.Data)
		if tag == "" {
			continue
		}

		if anchor := anchorFor(cur); anchor != "" {
			path = append(path, anchor)
			anchored = true
			break
		}

		// XPath indices are 1-based.
		index := 1
		for prev := cur.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	xpath := strings.Join(path, "/")
	if !anchored {
		xpath = "/" + xpath
	}
	return xpath
}

func anchorFor(n *html.Node) string {
	for _, key := range anchorAttrs {
		val := htmlquery.SelectAttr(n, key)
		if val == "" {
			continue
		}
		literal, err := xpathLiteral(val)
		if err != nil {
			continue
		}
		return fmt.Sprintf("//*[@%s=%s]", key, literal)
	}
	return ""
}
