package router

import (
	"sync"

	"github.com/searchktools/hermit-server/core/http"
)

// HandlerFunc handles one request. It is the only place side effects happen.
type HandlerFunc func(req *http.Request, res *http.Response)

// Predicate decides whether a filter entry applies to a request
type Predicate func(req *http.Request) bool

// Handler is a shared, mutex-guarded HandlerFunc. The same *Handler may be
// installed in the trie and in filter chains; calls are serialized so the
// function may mutate captured state.
type Handler struct {
	mu sync.Mutex
	fn HandlerFunc
}

// NewHandler wraps fn.
func NewHandler(fn HandlerFunc) *Handler {
	return &Handler{fn: fn}
}

// Serve invokes the wrapped function while holding the handler lock.
func (h *Handler) Serve(req *http.Request, res *http.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn(req, res)
}
