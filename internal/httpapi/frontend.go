package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FrontendHandler serves the bundled web UI under /app/. When the build
// directory is absent the route answers 503 with a plain-text hint instead of
// a broken page.
type FrontendHandler struct {
	dir    string
	logger *zap.Logger
}

func NewFrontendHandler(dir string, logger *zap.Logger) *FrontendHandler {
	return &FrontendHandler{dir: dir, logger: logger}
}

// RegisterRoutes registers the frontend routes on the provided mux.
func (h *FrontendHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/app/", h.handleApp)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/app/", http.StatusFound)
	})
}

func (h *FrontendHandler) handleApp(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Frontend not built. Build the web UI into " + h.dir + " and restart, or use the JSON API under /api/.\n"))
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/app/")
	if rel == "" {
		rel = "index.html"
	}
	path := filepath.Join(h.dir, filepath.Clean("/"+rel))
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		// SPA routing: unknown paths fall through to the index page.
		path = index
	}
	http.ServeFile(w, r, path)
}
