package core

import (
	"fmt"
	"strings"

	"github.com/searchktools/hermit-server/core/http"
	"github.com/searchktools/hermit-server/core/router"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ContentTypeProtobuf selects the binary stats encoding when present in Accept.
const ContentTypeProtobuf = "application/x-protobuf"

// Stats is a point-in-time snapshot of the engine and its line pool.
type Stats struct {
	Lines          int
	MaxLines       int
	Accepted       uint64
	Dispatched     uint64
	Rejected       uint64
	Pruned         uint64
	Served         uint64
	NotFound       uint64
	BadRequests    uint64
	EmptyResponses uint64
	Routes         int
	Filters        int
}

// Stats returns current statistics. Safe to call from any goroutine.
func (e *Engine) Stats() Stats {
	ps := e.pool.Stats()
	return Stats{
		Lines:          ps.Lines,
		MaxLines:       ps.MaxLines,
		Accepted:       e.stats.accepted.Load(),
		Dispatched:     ps.Dispatched,
		Rejected:       ps.Rejected,
		Pruned:         ps.Pruned,
		Served:         e.stats.served.Load(),
		NotFound:       e.stats.notFound.Load(),
		BadRequests:    e.stats.badRequests.Load(),
		EmptyResponses: e.stats.emptyResponses.Load(),
		Routes:         e.muxer.Trie().Len(),
		Filters:        e.muxer.Filters(),
	}
}

// Struct converts the snapshot to a protobuf Struct.
func (s Stats) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"lines":           s.Lines,
		"max_lines":       s.MaxLines,
		"accepted":        s.Accepted,
		"dispatched":      s.Dispatched,
		"rejected":        s.Rejected,
		"pruned":          s.Pruned,
		"served":          s.Served,
		"not_found":       s.NotFound,
		"bad_requests":    s.BadRequests,
		"empty_responses": s.EmptyResponses,
		"routes":          s.Routes,
		"filters":         s.Filters,
	})
}

// String returns the snapshot as human-readable text
func (s Stats) String() string {
	return fmt.Sprintf(`Line Pool:
  Lines:       %d / %d
  Dispatched:  %d
  Rejected:    %d
  Pruned:      %d

Requests:
  Accepted:        %d
  Served:          %d
  Not Found:       %d
  Bad Requests:    %d
  Empty Responses: %d
`,
		s.Lines, s.MaxLines, s.Dispatched, s.Rejected, s.Pruned,
		s.Accepted, s.Served, s.NotFound, s.BadRequests, s.EmptyResponses,
	)
}

// StatsHandler serves the current snapshot, protobuf-encoded when the
// request accepts ContentTypeProtobuf and as JSON otherwise.
func (e *Engine) StatsHandler() router.HandlerFunc {
	return func(req *http.Request, res *http.Response) {
		snapshot, err := e.Stats().Struct()
		if err != nil {
			e.log.Errorf("failed to build stats snapshot: %v", err)
			res.Error(500, "Internal Server Error")
			return
		}

		var data []byte
		if strings.Contains(req.Header(http.HeaderAccept), ContentTypeProtobuf) {
			data, err = proto.Marshal(snapshot)
			res.SetHeader(http.HeaderContentType, ContentTypeProtobuf)
		} else {
			data, err = protojson.Marshal(snapshot)
			res.SetHeader(http.HeaderContentType, "application/json")
		}
		if err != nil {
			e.log.Errorf("failed to encode stats: %v", err)
			res.Error(500, "Internal Server Error")
			return
		}
		res.Respond(data)
	}
}
