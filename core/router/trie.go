package router

import (
	"strings"

	"github.com/searchktools/hermit-server/core/http"
	"github.com/searchktools/hermit-server/core/logger"
	"github.com/sirupsen/logrus"
)

type nodeKind uint8

const (
	passby   nodeKind = iota // shared path segment, never dispatches
	terminal                 // one (path, method) route
)

// node is either a passby or a terminal. Children of a passby hold its
// terminals first, ordered by method, then passby children sorted by segment.
type node struct {
	kind nodeKind

	// passby
	segment  string
	children []*node

	// terminal
	method  http.Method
	handler *Handler
}

func newLeaf(segment string, method http.Method, h *Handler) *node {
	return &node{
		kind:     passby,
		segment:  segment,
		children: []*node{{kind: terminal, method: method, handler: h}},
	}
}

// isAheadOf reports whether n sorts strictly after target. Terminals never do.
func (n *node) isAheadOf(target string) bool {
	return n.kind == passby && n.segment > target
}

// firstPassby returns the index of the first passby child.
func (n *node) firstPassby() int {
	for i, c := range n.children {
		if c.kind == passby {
			return i
		}
	}
	return len(n.children)
}

// setTerminal installs h for method, replacing an existing terminal in place.
// It reports whether a handler was replaced.
func (n *node) setTerminal(method http.Method, h *Handler) bool {
	i := 0
	for ; i < len(n.children); i++ {
		c := n.children[i]
		if c.kind != terminal || method < c.method {
			break
		}
		if c.method == method {
			c.handler = h
			return true
		}
	}
	n.insertChild(i, &node{kind: terminal, method: method, handler: h})
	return false
}

func (n *node) insertChild(i int, child *node) {
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
}

// split cuts n's segment at k. The tail and n's former children move into a
// new passby that becomes n's only child.
func (n *node) split(k int) {
	tail := &node{
		kind:     passby,
		segment:  n.segment[k:],
		children: n.children,
	}
	n.segment = n.segment[:k]
	n.children = []*node{tail}
}

// Trie is a compressed prefix tree mapping (path, method) to a handler.
type Trie struct {
	root  *node
	count int
	log   logrus.Ext1FieldLogger
}

// NewTrie creates an empty trie. A nil logger discards.
func NewTrie(log logrus.Ext1FieldLogger) *Trie {
	return &Trie{
		root: &node{kind: passby},
		log:  logger.OrDiscard(log),
	}
}

// Insert registers h for (path, method). Registering the same pair again
// replaces the handler and logs a warning.
func (t *Trie) Insert(path string, method http.Method, h *Handler) {
	t.log.Tracef("http handler inserted: %s %s", method, path)

	n := t.root
	remain := path

walk:
	for remain != "" {
		for i := n.firstPassby(); i < len(n.children); i++ {
			c := n.children[i]
			shared := commonPrefix(c.segment, remain)
			if shared == 0 {
				if c.isAheadOf(remain) {
					n.insertChild(i, newLeaf(remain, method, h))
					t.count++
					return
				}
				continue
			}
			if shared < len(c.segment) {
				c.split(shared)
			}
			n = c
			remain = remain[shared:]
			continue walk
		}

		n.children = append(n.children, newLeaf(remain, method, h))
		t.count++
		return
	}

	if n.setTerminal(method, h) {
		t.log.Warnf("overwriting handler with %s %s", method, path)
		return
	}
	t.count++
}

// Get returns the handler registered for exactly (path, method), or nil.
// There is no fallback to another method on the same path.
func (t *Trie) Get(path string, method http.Method) *Handler {
	n := t.root
	remain := path

	for remain != "" {
		var next *node
		for _, c := range n.children {
			if c.kind == terminal {
				continue
			}
			if c.isAheadOf(remain) {
				break
			}
			if strings.HasPrefix(remain, c.segment) {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		remain = remain[len(next.segment):]
		n = next
	}

	for _, c := range n.children {
		if c.kind != terminal {
			break
		}
		if c.method == method {
			return c.handler
		}
	}
	return nil
}

// Len returns the number of registered (path, method) pairs.
func (t *Trie) Len() int {
	return t.count
}

// Walk calls fn for every route in trie order.
func (t *Trie) Walk(fn func(path string, method http.Method)) {
	walkNode(t.root, "", fn)
}

func walkNode(n *node, prefix string, fn func(string, http.Method)) {
	for _, c := range n.children {
		if c.kind == terminal {
			fn(prefix, c.method)
			continue
		}
		walkNode(c, prefix+c.segment, fn)
	}
}

func commonPrefix(a, b string) int {
	i, n := 0, min(len(a), len(b))
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
