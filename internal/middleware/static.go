package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const placeholderCover = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 300"><rect width="200" height="300" fill="#f0f0f0"/><rect x="30" y="40" width="140" height="200" rx="6" fill="none" stroke="#999" stroke-width="6"/><line x1="50" y1="40" x2="50" y2="240" stroke="#999" stroke-width="6"/><text x="100" y="275" text-anchor="middle" font-family="Arial" font-size="18" fill="#666">BOOK</text></svg>`

// CoverServer serves book cover images from dir, falling back to a
// placeholder when a cover is missing
func CoverServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderCover))
	})
}
