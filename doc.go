/*
Package hermitserver is a small HTTP/1.x server built directly on TCP
sockets, with bounded admission and a compressed prefix tree router.

Each accepted connection carries exactly one request. The accept loop hands
it to a line pool: a capped, lazily grown list of lines, each a goroutine with
a two-slot queue. A connection goes to the first line with room; dead lines
are pruned on the way; when every line is full and the pool is at its cap the
connection is shut down and a warning is logged.

Routing tries an exact (path, method) match in the trie first, then the
registered filters in order. A filter is a chain of predicates that must all
hold.

Quick Start

	package main

	import (
	    "github.com/searchktools/hermit-server/app"
	    "github.com/searchktools/hermit-server/config"
	    "github.com/searchktools/hermit-server/core/http"
	)

	func main() {
	    application, err := app.New(config.New())
	    if err != nil {
	        return
	    }

	    engine := application.Engine()
	    engine.GET("/hello", func(_ *http.Request, res *http.Response) {
	        res.Respond([]byte("Hello"))
	    })
	    engine.Filter(func(req *http.Request) bool {
	        return req.Path == "/sample"
	    }).Handle(func(_ *http.Request, res *http.Response) {
	        res.String(200, "OK", "Lorem ipsum")
	    })

	    application.Run()
	}

Modules

  - app: process lifecycle (logger, engine, signals)
  - config: flags, HERMIT_* environment variables and JSON files
  - core: engine, accept loop and statistics
  - core/http: request reader and response writer
  - core/router: trie, muxer, filter chains and static files
  - core/pools: lines and the line pool
  - core/logger: asynchronous logrus output
  - core/sockopt: TCP socket options
*/
package hermitserver
