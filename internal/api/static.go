package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/navwatch/pkg/logger"
)

// StaticFileHandler serves the dashboard files without caching
type StaticFileHandler struct {
	staticDir string
	logger    *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(staticDir string, log *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		staticDir: staticDir,
		logger:    log.Named("static-handler"),
	}
}

// resolve maps a request path to a file inside the static directory.
// ok is false when the path escapes the directory.
func (h *StaticFileHandler) resolve(urlPath string) (string, bool, error) {
	root, err := filepath.Abs(h.staticDir)
	if err != nil {
		return "", false, err
	}

	rel := strings.TrimPrefix(filepath.Clean("/"+urlPath), "/")
	if rel == "" {
		rel = "index.html"
	}

	full := filepath.Join(root, rel)
	if r, err := filepath.Rel(root, full); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false, nil
	}
	return full, true, nil
}

// ServeHTTP serves a file, or index.html for a directory
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fullPath, ok, err := h.resolve(r.URL.Path)
	if err != nil {
		h.logger.Error("Failed to resolve static path", logger.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !ok {
		h.logger.Warn("Attempted directory traversal",
			logger.String("requested_path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			h.logger.Debug("File not found", logger.String("path", fullPath))
			http.NotFound(w, r)
			return
		}
		h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", fullPath))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if info.IsDir() {
		index := filepath.Join(fullPath, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		fullPath = index
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	http.ServeFile(w, r, fullPath)
}
