package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"TrafficFeeds/internal/config"
)

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	mask := 32
	return config.Config{
		Logging:   config.LoggingConfig{Level: "error", Format: "text"},
		Feeds:     config.FeedsConfig{BaseURL: baseURL, Timeout: 5 * time.Second, MaxInFlight: 2, MaxBodyBytes: 1 << 20},
		Selection: config.SelectionConfig{Mask: &mask, Districts: []int{3, 1}},
		Export:    config.ExportConfig{Path: filepath.Join(t.TempDir(), "out.txt")},
		Scheduler: config.SchedulerConfig{CronExpression: "@every 1h"},
		Server:    config.ServerConfig{Addr: "127.0.0.1:0"},
		Mode:      config.ModeOnce,
	}
}

func TestRunOnceExportsSnapshot(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"tt":{"index":"42"}},{"tt":{"index":"43"}}]}`)
	}))
	defer feeds.Close()

	cfg := testConfig(t, feeds.URL)
	application, err := New(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// District 1 publishes no travel times, so only one feed is requested.
	if len(paths) != 1 || paths[0] != "/d3/tt/ttStatusD03.json" {
		t.Fatalf("unexpected requests %v", paths)
	}

	got, err := os.ReadFile(cfg.Export.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	want := "~----TT OBJECTS-----~\n[TT Object at index 42]\n[TT Object at index 43]\n~------------------------------~"
	if string(got) != want {
		t.Fatalf("unexpected export:\n%s", got)
	}
}

func TestRunOnceWithFailingFeed(t *testing.T) {
	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer feeds.Close()

	cfg := testConfig(t, feeds.URL)
	application, err := New(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := application.Run(context.Background()); err != nil {
		t.Fatalf("failures must not abort the run: %v", err)
	}

	got, err := os.ReadFile(cfg.Export.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty export, got %q", got)
	}
}

func TestNewRejectsBadSelection(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Selection.Districts = []int{13}

	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandlerServesHealth(t *testing.T) {
	application, err := New(testConfig(t, "http://127.0.0.1:1"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestWatchStopsWithContext(t *testing.T) {
	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"tt":{"index":"1"}}]}`)
	}))
	defer feeds.Close()

	cfg := testConfig(t, feeds.URL)
	cfg.Mode = config.ModeWatch
	application, err := New(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(cfg.Export.Path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watch mode never exported")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
