package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Plexi</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f8fafc; color: #0f172a; max-width: 640px; margin: 4rem auto; padding: 0 1rem; }
  h1 { font-size: 1.6rem; margin-bottom: 0.25rem; }
  .subtitle { color: #475569; margin-bottom: 2rem; }
  h2 { font-size: 0.8rem; text-transform: uppercase; letter-spacing: 0.08em; color: #64748b; margin-top: 1.75rem; }
  code { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; color: #4338ca; }
  li { margin: 0.35rem 0; }
</style>
</head>
<body>
  <h1>Plexi</h1>
  <p class="subtitle">Ask questions about your study materials.</p>

  <h2>Chat sessions</h2>
  <ul>
    <li><code>POST /api/sessions</code> opens a session</li>
    <li><code>PUT /api/sessions/{id}/key</code> supplies your language-model API key</li>
    <li><code>POST /api/sessions/{id}/messages</code> asks a question</li>
    <li><code>DELETE /api/sessions/{id}</code> ends the session</li>
  </ul>

  <h2>Other endpoints</h2>
  <ul>
    <li><a href="/mcp"><code>/mcp</code></a> MCP Streamable HTTP</li>
    <li><a href="/health"><code>/health</code></a> health check</li>
    <li><a href="/metrics"><code>/metrics</code></a> Prometheus metrics</li>
  </ul>
</body>
</html>`

// NewLandingHandler serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingHTML))
	}
}
