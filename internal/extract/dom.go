package extract

import (
	"strings"

	"github.com/jimbolo/convtrack/pkg/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute fragments that mark purchase confirmation elements.
var (
	confirmationClasses = []string{"order-id", "transaction", "confirmation", "thank-you", "success"}
	confirmationIDs     = []string{"order", "confirmation"}
)

// ElementTexts parses an HTML fragment and returns the text content of each
// top-level element node. Text outside elements is ignored.
func ElementTexts(fragment string) []string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil
	}
	var texts []string
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			texts = append(texts, textContent(n))
		}
	}
	return texts
}

// FromDocument scans a document for confirmation elements and merges the
// free-text extraction of each, later elements overriding earlier ones.
func FromDocument(doc string) *models.PurchaseData {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}
	merged := &models.PurchaseData{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isConfirmationElement(n) {
			text := textContent(n)
			if text == "" {
				text = attr(n, "value")
			}
			mergeInto(merged, FromFreeText(text))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return merged
}

func isConfirmationElement(n *html.Node) bool {
	class := strings.ToLower(attr(n, "class"))
	id := strings.ToLower(attr(n, "id"))
	for _, frag := range confirmationClasses {
		if class != "" && strings.Contains(class, frag) {
			return true
		}
	}
	for _, frag := range confirmationIDs {
		if id != "" && strings.Contains(id, frag) {
			return true
		}
	}
	return false
}

func mergeInto(dst, src *models.PurchaseData) {
	if src.OrderID != "" {
		dst.OrderID = src.OrderID
	}
	if src.Value != nil {
		dst.Value = src.Value
	}
	if src.Currency != "" {
		dst.Currency = src.Currency
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
