package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandler_Routes(t *testing.T) {
	srv := New(Config{})
	srv.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "tokenmeter_up 1\n")
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "tokenmeter_up 1\n" {
		t.Errorf("body = %q", got)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestHandler_RecoversPanics(t *testing.T) {
	srv := New(Config{})
	srv.Handle("/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestNew_Defaults(t *testing.T) {
	srv := New(Config{Address: ":0"})
	if srv.config.ReadHeaderTimeout != DefaultReadHeaderTimeout {
		t.Errorf("ReadHeaderTimeout = %v", srv.config.ReadHeaderTimeout)
	}
	if srv.config.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v", srv.config.ShutdownTimeout)
	}
	if srv.IsRunning() || srv.Addr() != nil {
		t.Error("new server reports running")
	}
}

func TestStart_ServesUntilCancelled(t *testing.T) {
	srv := New(Config{Address: "127.0.0.1:0"})
	srv.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() succeeded")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if srv.IsRunning() {
		t.Error("server still running after shutdown")
	}
}

func TestStart_ListenError(t *testing.T) {
	srv := New(Config{Address: "256.0.0.1:bad"})
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Start() with bad address succeeded")
	}
	if srv.IsRunning() {
		t.Error("server running after listen failure")
	}
}
