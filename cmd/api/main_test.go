package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	return ln
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	ln := listen(t)
	server := newServer(ln.Addr().String(), mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, ln, logger) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v, want nil", err)
		}
	case <-time.After(shutdownTimeout):
		t.Fatal("server did not shut down")
	}

	if !strings.Contains(logBuf.String(), "shutting down server") {
		t.Errorf("expected shutdown log, got %s", logBuf.String())
	}
	if _, err := http.Get("http://" + ln.Addr().String() + "/health"); err == nil {
		t.Error("expected connection error after shutdown")
	}
}

func TestServe_InFlightRequestsComplete(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	started := make(chan struct{})
	var completed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		completed.Store(true)
		_, _ = w.Write([]byte("done"))
	})
	ln := listen(t)
	server := newServer(ln.Addr().String(), mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, ln, logger) }()

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err != nil {
			t.Errorf("slow request failed: %v", err)
			respCh <- nil
			return
		}
		respCh <- resp
	}()

	<-started
	cancel()

	resp := <-respCh
	if resp == nil {
		t.FailNow()
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "done" {
		t.Errorf("body = %q, want done", body)
	}
	if !completed.Load() {
		t.Error("in-flight request did not complete")
	}
	if err := <-done; err != nil {
		t.Errorf("serve returned %v", err)
	}
}

func TestServe_ListenerFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ln := listen(t)
	ln.Close()

	err := serve(context.Background(), newServer(ln.Addr().String(), http.NewServeMux()), ln, logger)
	if err == nil || !strings.Contains(err.Error(), "server error") {
		t.Errorf("expected a server error, got %v", err)
	}
}

func TestNewServer_Timeouts(t *testing.T) {
	s := newServer(":0", http.NewServeMux())
	if s.ReadHeaderTimeout == 0 || s.ReadTimeout == 0 || s.WriteTimeout == 0 || s.IdleTimeout == 0 {
		t.Errorf("all server timeouts must be set: %+v", s)
	}
}

func TestMetrics_RegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetrics()
	if err := m.register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := newMetrics().register(reg); err == nil {
		t.Error("registering a second set on the same registry should fail")
	}
}
