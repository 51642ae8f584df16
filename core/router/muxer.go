package router

import (
	"github.com/searchktools/hermit-server/core/http"
	"github.com/searchktools/hermit-server/core/logger"
	"github.com/sirupsen/logrus"
)

type filterEntry struct {
	predicate Predicate
	handler   *Handler
}

// Muxer resolves a request to at most one handler: an exact trie match
// first, then the first filter whose predicate holds.
//
// Registration must finish before Freeze; after that the muxer is read-only
// and safe to share across lines.
type Muxer struct {
	trie    *Trie
	filters []*filterEntry
	frozen  bool
	log     logrus.Ext1FieldLogger
}

// NewMuxer creates an empty muxer. A nil logger discards.
func NewMuxer(log logrus.Ext1FieldLogger) *Muxer {
	log = logger.OrDiscard(log)
	return &Muxer{
		trie: NewTrie(log),
		log:  log,
	}
}

// Add registers fn for (method, path) and returns the shared handler so it
// can also be installed in a filter chain.
func (m *Muxer) Add(method http.Method, path string, fn HandlerFunc) *Handler {
	h := NewHandler(fn)
	m.AddHandler(method, path, h)
	return h
}

// AddHandler registers an existing handler for (method, path).
func (m *Muxer) AddHandler(method http.Method, path string, h *Handler) {
	m.mustBeOpen()
	m.trie.Insert(path, method, h)
}

// Filter starts a filter chain. The chain's priority is fixed here, by the
// order of the first Filter call, not by when Handle is called.
func (m *Muxer) Filter(p Predicate) *FilterChain {
	m.mustBeOpen()
	entry := &filterEntry{}
	m.filters = append(m.filters, entry)
	return &FilterChain{
		muxer:      m,
		entry:      entry,
		predicates: []Predicate{p},
	}
}

// Resolve returns the handler for req, or nil when nothing matches.
func (m *Muxer) Resolve(req *http.Request) *Handler {
	if h := m.trie.Get(req.Path, req.Method); h != nil {
		return h
	}
	for _, f := range m.filters {
		if f.handler == nil {
			continue
		}
		if f.predicate(req) {
			return f.handler
		}
	}
	return nil
}

// Freeze ends registration. Later registrations panic.
func (m *Muxer) Freeze() {
	m.frozen = true
}

// Trie exposes the exact-match table.
func (m *Muxer) Trie() *Trie {
	return m.trie
}

// Filters returns the number of committed filter entries.
func (m *Muxer) Filters() int {
	n := 0
	for _, f := range m.filters {
		if f.handler != nil {
			n++
		}
	}
	return n
}

func (m *Muxer) mustBeOpen() {
	if m.frozen {
		panic("routes must be registered before the server starts")
	}
}

// FilterChain collects predicates that must all hold for one handler.
type FilterChain struct {
	muxer      *Muxer
	entry      *filterEntry
	predicates []Predicate
}

// Filter adds another predicate, ANDed with the previous ones.
func (c *FilterChain) Filter(p Predicate) *FilterChain {
	c.predicates = append(c.predicates, p)
	return c
}

// Handle commits the chain with fn as its handler.
func (c *FilterChain) Handle(fn HandlerFunc) *Handler {
	h := NewHandler(fn)
	c.HandleWith(h)
	return h
}

// HandleWith commits the chain with a shared handler. A chain can be
// committed once.
func (c *FilterChain) HandleWith(h *Handler) {
	c.muxer.mustBeOpen()
	if c.entry.handler != nil {
		panic("filter chain already has a handler")
	}
	c.entry.predicate = combine(c.predicates)
	c.entry.handler = h
}

func combine(predicates []Predicate) Predicate {
	if len(predicates) == 1 {
		return predicates[0]
	}
	ps := append([]Predicate(nil), predicates...)
	return func(req *http.Request) bool {
		for _, p := range ps {
			if !p(req) {
				return false
			}
		}
		return true
	}
}
