package webserver

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var dashboardFS embed.FS

// dashboardFiles serves the single-page dashboard that polls /api/state and
// listens on /events.
func dashboardFiles() http.FileSystem {
	sub, err := fs.Sub(dashboardFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
