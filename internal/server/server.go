// Package server implements the quill preview server. It renders
// templates from a directory over HTTP and pushes reload messages to
// connected browsers when the watcher reports changes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/quill/internal/config"
	"github.com/conneroisu/quill/internal/engine"
	qerrors "github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/version"
	"github.com/conneroisu/quill/internal/watcher"
)

// Client represents a connected browser.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// UpdateMessage is the JSON payload pushed over the reload socket.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PreviewServer serves rendered templates with live reload.
type PreviewServer struct {
	config       *config.Config
	engine       *engine.Engine
	dir          string
	log          logging.Logger
	collector    *qerrors.ErrorCollector
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	watcher      *watcher.FileWatcher
}

// New creates a preview server for the templates under dir.
func New(cfg *config.Config, eng *engine.Engine, dir string, log logging.Logger) (*PreviewServer, error) {
	if log == nil {
		log = logging.Nop()
	}
	fw, err := watcher.NewFileWatcher(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond, log)
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &PreviewServer{
		config:     cfg,
		engine:     eng,
		dir:        filepath.Clean(dir),
		log:        log.WithComponent("server"),
		collector:  qerrors.NewErrorCollector(),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		watcher:    fw,
	}, nil
}

// Start runs the server until the context is cancelled or the listener
// fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	s.setupFileWatcher(ctx)

	go s.runWebSocketHub(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/templates", s.handleTemplates)
	mux.HandleFunc("/render/", s.handleRender)
	mux.HandleFunc("/", s.handleIndex)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.withRequestLog(mux),
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	if s.config.Server.Open {
		go s.openBrowser(fmt.Sprintf("http://%s", addr))
	}

	s.log.Info(ctx, "preview server listening", "addr", addr, "dir", s.dir)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and closes every client connection.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	if err := s.watcher.Stop(); err != nil {
		s.log.Warn(ctx, err, "stopping watcher")
	}

	s.clientsMutex.Lock()
	for conn, client := range s.clients {
		close(client.send)
		conn.Close(websocket.StatusNormalClosure, "")
	}
	s.clients = make(map[*websocket.Conn]*Client)
	s.clientsMutex.Unlock()

	s.serverMutex.RLock()
	server := s.httpServer
	s.serverMutex.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.ExtensionFilter(s.config.Watch.Extensions))
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	s.watcher.AddHandler(s.handleFileChange)

	if err := s.watcher.AddRecursive(s.dir); err != nil {
		s.log.Warn(ctx, err, "failed to watch directory", "dir", s.dir)
	}
	if err := s.watcher.Start(ctx); err != nil {
		s.log.Warn(ctx, err, "failed to start file watcher")
	}
}

func (s *PreviewServer) handleFileChange(events []watcher.ChangeEvent) error {
	ctx := context.Background()
	for _, event := range events {
		s.log.Info(ctx, "template changed", "path", event.Path, "event", event.Type.String())
	}

	// Compiled artifacts key on source text, so stale entries age out of
	// the LRU on their own. Recompile eagerly to surface errors now.
	for _, event := range events {
		if event.Type == watcher.EventTypeDeleted {
			continue
		}
		source, err := os.ReadFile(event.Path)
		if err != nil {
			continue
		}
		if _, err := s.engine.GetOrCompile(string(source)); err != nil {
			s.collector.Add(event.Path, err)
			s.broadcastMessage(UpdateMessage{
				Type:      "compile_error",
				Target:    filepath.Base(event.Path),
				Content:   err.Error(),
				Timestamp: time.Now(),
			})
			return nil
		}
	}

	s.broadcastMessage(UpdateMessage{
		Type:      "reload",
		Timestamp: time.Now(),
	})
	return nil
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		s.broadcast <- []byte(`{"type":"reload"}`)
		return
	}
	s.broadcast <- jsonData
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"build_info": version.GetBuildInfo(),
		"templates":  len(s.templateNames()),
		"partials":   s.engine.Partials().Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.log.Warn(r.Context(), err, "encoding health response")
	}
}

func (s *PreviewServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"templates": s.templateNames(),
	})
}

// handleRender renders one template, injecting the live reload script
// into complete HTML documents.
func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/render/")
	if name == "" || strings.Contains(name, "..") {
		http.Error(w, "Invalid template name", http.StatusBadRequest)
		return
	}

	path, ok := s.templatePath(name)
	if !ok {
		http.Error(w, "Template not found", http.StatusNotFound)
		return
	}

	source, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "Failed to read template", http.StatusInternalServerError)
		return
	}

	data, err := s.loadData(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load data: %v", err), http.StatusInternalServerError)
		return
	}

	output, err := s.engine.Render(string(source), data)
	if err != nil {
		s.collector.Add(path, err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintf(w, errorPage, htmlEscape(name), htmlEscape(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, injectReloadScript(output))
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	names := s.templateNames()
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>quill preview</title></head>\n<body>\n")
	b.WriteString("<h1>Templates</h1>\n<ul>\n")
	for _, name := range names {
		fmt.Fprintf(&b, "<li><a href=\"/render/%s\">%s</a></li>\n", htmlEscape(name), htmlEscape(name))
	}
	b.WriteString("</ul>\n</body>\n</html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, injectReloadScript(b.String()))
}

// templateNames lists watchable template files under the serve
// directory, relative to it and sorted.
func (s *PreviewServer) templateNames() []string {
	exts := make(map[string]bool, len(s.config.Watch.Extensions))
	for _, e := range s.config.Watch.Extensions {
		exts[strings.ToLower(e)] = true
	}

	var names []string
	filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return nil
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(names)
	return names
}

func (s *PreviewServer) templatePath(name string) (string, bool) {
	path := filepath.Join(s.dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// loadData reads the sibling data file for a template: template.html
// pairs with template.json or template.yml.
func (s *PreviewServer) loadData(templatePath string) (any, error) {
	base := strings.TrimSuffix(templatePath, filepath.Ext(templatePath))

	if raw, err := os.ReadFile(base + ".json"); err == nil {
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parsing %s.json: %w", filepath.Base(base), err)
		}
		return data, nil
	}
	for _, ext := range []string{".yml", ".yaml"} {
		if raw, err := os.ReadFile(base + ext); err == nil {
			var data any
			if err := yaml.Unmarshal(raw, &data); err != nil {
				return nil, fmt.Errorf("parsing %s%s: %w", filepath.Base(base), ext, err)
			}
			return data, nil
		}
	}
	return map[string]any{}, nil
}

func (s *PreviewServer) withRequestLog(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.log.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *PreviewServer) openBrowser(url string) {
	time.Sleep(100 * time.Millisecond)

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		s.log.Warn(context.Background(), err, "failed to open browser")
	}
}

const errorPage = `<!DOCTYPE html>
<html>
<head><title>quill: render error</title></head>
<body>
<h1>Render error in %s</h1>
<pre>%s</pre>
` + reloadScript + `
</body>
</html>
`

const reloadScript = `<script>
(function() {
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + "/ws");
  ws.onmessage = function(ev) {
    try {
      var msg = JSON.parse(ev.data);
      if (msg.type === "reload" || msg.type === "compile_error") {
        location.reload();
      }
    } catch (e) {
      location.reload();
    }
  };
  ws.onclose = function() {
    setTimeout(function() { location.reload(); }, 1000);
  };
})();
</script>`

// injectReloadScript places the live reload client before </body> when
// the output looks like a full document, or appends it otherwise.
func injectReloadScript(html string) string {
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + reloadScript + "\n" + html[idx:]
	}
	return html + "\n" + reloadScript
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
