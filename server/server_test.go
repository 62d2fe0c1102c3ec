package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "english"), 0755)
	os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body><h1>Songbook</h1></body></html>"), 0644)
	os.WriteFile(filepath.Join(root, "english", "eng-001.html"), []byte("<html><body>1 - Test</body></html>"), 0644)
	os.WriteFile(filepath.Join(root, "english", "notes.txt"), []byte("plain"), 0644)
	return root
}

func TestHandler(t *testing.T) {
	s := NewServer(newTestSite(t), 0)
	handler, err := s.Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	tests := []struct {
		path       string
		status     int
		contains   string
		withReload bool
	}{
		{"/", http.StatusOK, "<h1>Songbook</h1>", true},
		{"/english/eng-001.html", http.StatusOK, "1 - Test", true},
		{"/english/notes.txt", http.StatusOK, "plain", false},
		{"/english/eng-002.html", http.StatusNotFound, "", false},
		{"/english", http.StatusNotFound, "", false},
		{"/../../etc/passwd", http.StatusMovedPermanently, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			body := rec.Body.String()
			if !strings.Contains(body, tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, body)
			}
			hasReload := strings.Contains(body, "EventSource('/reload')")
			if hasReload != tt.withReload {
				t.Errorf("reload script present = %v, want %v", hasReload, tt.withReload)
			}
			if tt.withReload && strings.Index(body, "EventSource") > strings.Index(body, "</body>") {
				t.Error("reload script injected after </body>")
			}
		})
	}
}

func TestNotifyReload(t *testing.T) {
	s := NewServer(newTestSite(t), 0)
	handler, err := s.Handler()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.startReloadBroadcaster(ctx)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/reload", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /reload error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for clientCount(s) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.NotifyReload()

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(resp.Body).ReadString('\n')
		lines <- line
	}()

	select {
	case line := <-lines:
		if line != "data: reload\n" {
			t.Errorf("event = %q, want %q", line, "data: reload\n")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload event received")
	}

	cancel()
	io.Copy(io.Discard, resp.Body)
}

func TestNotifyReload_Coalesces(t *testing.T) {
	s := NewServer(t.TempDir(), 0)
	s.NotifyReload()
	s.NotifyReload()
	if len(s.reloadChan) != 1 {
		t.Errorf("pending reloads = %d, want 1", len(s.reloadChan))
	}
}

func clientCount(s *Server) int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
