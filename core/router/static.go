package router

import (
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/searchktools/hermit-server/core/http"
)

// ServeStatic registers every regular file under dir as a GET route at
// prefix joined with the file's slash-separated relative path. File contents
// are read once, here. It returns the number of routes added.
func (m *Muxer) ServeStatic(prefix, dir string) (int, error) {
	m.mustBeOpen()

	added := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("failed to add %s to routes: %w", p, err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read static file: %w", err)
		}

		route := path.Join(prefix, filepath.ToSlash(rel))
		m.trie.Insert(route, http.GET, NewHandler(m.fileHandler(p, data)))
		m.log.Debugf("static file %s served at %s", p, route)
		added++
		return nil
	})
	return added, err
}

func (m *Muxer) fileHandler(file string, data []byte) HandlerFunc {
	contentType := mime.TypeByExtension(filepath.Ext(file))
	return func(_ *http.Request, res *http.Response) {
		if contentType != "" {
			res.SetHeader(http.HeaderContentType, contentType)
		}
		if err := res.Respond(data); err != nil {
			m.log.Errorf("failed to respond static file: %s error: %v", file, err)
		}
	}
}
