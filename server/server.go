package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const reloadScript = `<script>
if (typeof EventSource !== 'undefined') {
    const es = new EventSource('/reload');
    es.onmessage = () => location.reload();
}
</script>
`

type sseClient struct {
	events chan struct{}
}

// Server previews a songbook site. Pages are read from disk on every request
// so edits made by the add and relink commands show up without a restart.
type Server struct {
	Root       string
	Port       int
	clients    sync.Map
	reloadChan chan struct{}
	httpServer *http.Server
}

func NewServer(root string, port int) *Server {
	return &Server{
		Root:       root,
		Port:       port,
		reloadChan: make(chan struct{}, 1),
	}
}

// NotifyReload asks every connected browser to reload. Calls made while a
// reload is already pending are merged into it.
func (s *Server) NotifyReload() {
	select {
	case s.reloadChan <- struct{}{}:
	default:
	}
}

func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	client := &sseClient{events: make(chan struct{}, 1)}
	s.clients.Store(client, struct{}{})
	defer s.clients.Delete(client)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.events:
			if _, err := w.Write([]byte("data: reload\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) startReloadBroadcaster(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reloadChan:
			s.clients.Range(func(key, _ any) bool {
				client := key.(*sseClient)
				select {
				case client.events <- struct{}{}:
				default:
				}
				return true
			})
		}
	}
}

// Handler serves files below Root. HTML pages get the live reload script
// injected before </body>.
func (s *Server) Handler() (http.Handler, error) {
	absRoot, err := filepath.Abs(s.Root)
	if err != nil {
		return nil, fmt.Errorf("error getting absolute path: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/reload", s.HandleSSE)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		urlPath := r.URL.Path
		if strings.HasSuffix(urlPath, "/") {
			urlPath += "index.html"
		}

		fullPath := filepath.Join(absRoot, filepath.FromSlash(filepath.Clean("/"+urlPath)))
		info, err := os.Stat(fullPath)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		if !strings.HasSuffix(fullPath, ".html") {
			http.ServeFile(w, r, fullPath)
			return
		}

		data, err := os.ReadFile(fullPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if at := bytes.LastIndex(data, []byte("</body>")); at != -1 {
			data = append(data[:at:at], append([]byte(reloadScript), data[at:]...)...)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	})
	return mux, nil
}

func (s *Server) Run(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	go s.startReloadBroadcaster(ctx)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: handler,
	}

	slog.Debug("Starting preview server", "root", s.Root, "port", s.Port)
	fmt.Printf("Serving %s on http://localhost:%d\n", s.Root, s.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
