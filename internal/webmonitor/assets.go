package webmonitor

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// builtinAssets are served when no override directory is configured or the
// requested file is absent from it.
var builtinAssets = map[string]string{
	"monitor.css": monitorCSS,
	"viewer.js":   viewerJS,
}

type assetHandler struct {
	assetsDir string
	modTime   time.Time
}

func newAssetHandler(assetsDir string) *assetHandler {
	return &assetHandler{
		assetsDir: assetsDir,
		modTime:   time.Now(),
	}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.URL.Path)

	if h.assetsDir != "" {
		assetPath := filepath.Join(h.assetsDir, filename)
		if fileExists(assetPath) {
			http.ServeFile(w, r, assetPath)
			return
		}
	}

	body, ok := builtinAssets[filename]
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, filename, h.modTime, strings.NewReader(body))
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
