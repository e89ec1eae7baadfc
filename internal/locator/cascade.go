package locator

import "unicode/utf8"

// Source names the strategy that produced a Result.
type Source string

const (
	SourceNone      Source = "none"
	SourceSibling   Source = "sibling"
	SourceAncestor  Source = "ancestor_sibling"
	SourceContainer Source = "container"
	SourcePage      Source = "page"
)

// DefaultMinTextLen is the shortest trimmed text a sibling needs to count as content.
const DefaultMinTextLen = 40

var sectioningTags = map[string]bool{"section": true, "article": true, "div": true}

type strategy struct {
	source Source
	find   func(header *Node, minLen int) *Node
}

// Ordered. The first strategy returning a node wins.
var strategies = []strategy{
	{SourceSibling, followingSibling},
	{SourceAncestor, ancestorSibling},
	{SourceContainer, enclosingContainer},
}

// Header picks the marker match with the smallest height. Ties keep
// document order.
func Header(root *Node) *Node {
	var best *Node
	for _, n := range matches(root) {
		if best == nil || n.Height < best.Height {
			best = n
		}
	}
	return best
}

// Cascade runs the strategies against the snapshot rooted at root.
func Cascade(root *Node, minLen int) (*Node, Source) {
	if root == nil {
		return nil, SourceNone
	}
	link(root)
	header := Header(root)
	if header == nil {
		return nil, SourceNone
	}
	for _, s := range strategies {
		if n := s.find(header, minLen); n != nil {
			return n, s.source
		}
	}
	return nil, SourceNone
}

func qualifies(n *Node, minLen int) bool {
	return utf8.RuneCountInString(n.Text) >= minLen && n.Text != ""
}

func firstQualifyingFrom(n *Node, minLen int) *Node {
	for ; n != nil; n = n.nextSibling() {
		if qualifies(n, minLen) {
			return n
		}
	}
	return nil
}

func followingSibling(header *Node, minLen int) *Node {
	return firstQualifyingFrom(header.nextSibling(), minLen)
}

func ancestorSibling(header *Node, minLen int) *Node {
	for p := header.parent; p != nil; p = p.parent {
		if n := firstQualifyingFrom(p.nextSibling(), minLen); n != nil {
			return n
		}
	}
	return nil
}

// enclosingContainer never fails: without a sectioning ancestor the
// header itself is used.
func enclosingContainer(header *Node, _ int) *Node {
	for n := header; n != nil; n = n.parent {
		if sectioningTags[n.Tag] {
			return n
		}
	}
	return header
}
