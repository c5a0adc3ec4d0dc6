package facade

import (
	"net/http"
	"os"
	"path/filepath"
)

// spaFileServer serves a built frontend bundle from dir, falling back to
// index.html for any path that doesn't match a file on disk so client-side
// routing keeps working on a hard refresh (§4.I "static frontend + SPA
// fallback").
type spaFileServer struct {
	dir string
}

// NewStaticHandler returns an http.Handler for the frontend dist directory,
// or nil if dir is empty (the --no-frontend-build case).
func NewStaticHandler(dir string) http.Handler {
	if dir == "" {
		return nil
	}
	return &spaFileServer{dir: dir}
}

func (s *spaFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requested := filepath.Join(s.dir, filepath.Clean(r.URL.Path))
	if info, err := os.Stat(requested); err == nil && !info.IsDir() {
		http.ServeFile(w, r, requested)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.dir, "index.html"))
}
