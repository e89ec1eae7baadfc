package api

import (
	"html/template"
	"strings"
)

// docsTemplate wraps the Stoplight viewer with a bar linking the
// watcher's non-OpenAPI routes: the HTML report and the live feeds.
var docsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    .watch-bar { display: flex; gap: 1.5rem; align-items: center; height: 40px; padding: 0 1rem; background: #111827; color: #e5e7eb; font: 14px sans-serif; }
    .watch-bar a { color: #93c5fd; text-decoration: none; }
    .watch-api { height: calc(100vh - 40px); }
  </style>
</head>
<body style="margin: 0;">
  <nav class="watch-bar">
    <strong>{{.Title}} {{.Version}}</strong>
    <a href="/report">Latest report</a>
    {{- if .Live}}
    <a href="/api/v1/events">Live events (SSE)</a>
    <span>WebSocket: <code>/api/v1/ws</code></span>
    {{- end}}
  </nav>
  <div class="watch-api">
    <elements-api
      apiDescriptionUrl="/openapi.json"
      router="hash"
      layout="sidebar"
      tryItCredentialsPolicy="same-origin"
      darkMode
    />
  </div>
</body>
</html>`))

type docsPage struct {
	Title   string
	Version string
	Live    bool
}

// renderDocs builds the /docs page from the API's own title and version.
// live adds links to the event feeds when they are mounted.
func renderDocs(title, version string, live bool) []byte {
	var b strings.Builder
	if err := docsTemplate.Execute(&b, docsPage{Title: title, Version: version, Live: live}); err != nil {
		return []byte(title)
	}
	return []byte(b.String())
}
