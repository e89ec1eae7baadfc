package locator

// Node is one element of the pruned DOM snapshot. Elements whose text
// contains the marker are expanded; everything else is a leaf.
type Node struct {
	Tag      string  `json:"tag"`
	Text     string  `json:"text"`
	Height   float64 `json:"height"`
	Match    bool    `json:"match"`
	Children []*Node `json:"children,omitempty"`

	parent *Node
	index  int
}

// link fills in parent pointers and child indexes after decoding.
func link(n *Node) {
	for i, c := range n.Children {
		c.parent = n
		c.index = i
		link(c)
	}
}

// Path returns the element-child indexes leading from the root to n.
func (n *Node) Path() []int {
	var rev []int
	for cur := n; cur.parent != nil; cur = cur.parent {
		rev = append(rev, cur.index)
	}
	path := make([]int, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}

func (n *Node) nextSibling() *Node {
	if n.parent == nil || n.index+1 >= len(n.parent.Children) {
		return nil
	}
	return n.parent.Children[n.index+1]
}

// matches returns marker-bearing nodes in document order.
func matches(root *Node) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		if n.Match {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}
