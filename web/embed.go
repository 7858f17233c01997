// Package web embeds the browser client (dist/) and serves it as a
// single-page application.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// reservedPrefixes never fall back to the client; a miss there is a real 404.
var reservedPrefixes = []string{"api/", "ws/", "mcp"}

// SPAHandler serves the embedded client. Unknown paths outside the API get
// index.html so /cases/{id} deep links load the app.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name != "" {
			if info, err := fs.Stat(subFS, name); err == nil && !info.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
			for _, p := range reservedPrefixes {
				if strings.HasPrefix(name, p) {
					http.NotFound(w, r)
					return
				}
			}
		}

		// index.html carries the case id in the URL; never cache it.
		w.Header().Set("Cache-Control", "no-cache")
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
