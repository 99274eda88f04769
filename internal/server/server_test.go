package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyperifyio/hal/internal/extract"
	"github.com/hyperifyio/hal/internal/fetch"
	"github.com/hyperifyio/hal/internal/ladder"
	"github.com/hyperifyio/hal/internal/safety"
)

type fakeBrowser struct {
	got  ladder.Request
	resp ladder.Response
	err  error
	pan  bool
}

func (f *fakeBrowser) Browse(_ context.Context, req ladder.Request) (ladder.Response, error) {
	if f.pan {
		panic("boom")
	}
	f.got = req
	return f.resp, f.err
}

func newTestServer(t *testing.T, b Browser) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(b, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/browse", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, payload
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeBrowser{})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, payload)
	}
}

func TestUI(t *testing.T) {
	srv := newTestServer(t, &fakeBrowser{})
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestBrowse_Success(t *testing.T) {
	fb := &fakeBrowser{resp: ladder.Response{
		URL:        "https://example.com",
		FetchedAt:  time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC),
		MethodUsed: extract.MethodDOM,
		Title:      "Example",
		Links:      []string{},
		Warnings:   []string{},
		Confidence: 0.9,
		Citations:  []ladder.Citation{{Type: ladder.CitationURL, Value: "https://example.com"}},
	}}
	srv := newTestServer(t, fb)
	resp, payload := post(t, srv, `{"url":" https://example.com ","mode":"DOM"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, payload)
	}
	if payload["method_used"] != "dom" || payload["title"] != "Example" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["tables_markdown"] != nil {
		t.Fatalf("tables_markdown should be null, got %v", payload["tables_markdown"])
	}
	if fb.got.URL != "https://example.com" || fb.got.Mode != ladder.ModeDOM {
		t.Fatalf("request not normalised: %+v", fb.got)
	}
	if fb.got.Wait.TimeoutMS != ladder.DefaultTimeoutMS || !fb.got.Screenshot.FullPage {
		t.Fatalf("defaults lost: %+v", fb.got)
	}
}

func TestBrowse_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed body", `{"url":`, nil, http.StatusUnprocessableEntity},
		{"missing url", `{"mode":"auto"}`, nil, http.StatusUnprocessableEntity},
		{"invalid mode", `{"url":"https://example.com","mode":"ocr"}`, nil, http.StatusUnprocessableEntity},
		{"safety", `{"url":"http://127.0.0.1"}`, &safety.RejectedError{Reason: "Blocked host/IP by SSRF policy: 127.0.0.1"}, http.StatusBadRequest},
		{"fetch", `{"url":"https://example.com"}`, fetch.Failed("https://example.com", errors.New("timeout")), http.StatusBadGateway},
		{"other", `{"url":"https://example.com"}`, errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := newTestServer(t, &fakeBrowser{err: tc.err})
		resp, payload := post(t, srv, tc.body)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
		if d, _ := payload["detail"].(string); d == "" {
			t.Fatalf("%s: missing detail in %v", tc.name, payload)
		}
	}
}

func TestBrowse_SafetyDetailIsReason(t *testing.T) {
	srv := newTestServer(t, &fakeBrowser{err: &safety.RejectedError{Reason: "Only http/https URLs are allowed"}})
	_, payload := post(t, srv, `{"url":"ftp://example.com"}`)
	if payload["detail"] != "Only http/https URLs are allowed" {
		t.Fatalf("detail = %v", payload["detail"])
	}
}

func TestBrowse_PanicRecovered(t *testing.T) {
	srv := newTestServer(t, &fakeBrowser{pan: true})
	resp, err := http.Post(srv.URL+"/browse", "application/json", strings.NewReader(`{"url":"https://example.com"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(&fakeBrowser{}, zerolog.Nop()).ListenAndServe(ctx, addr, time.Second) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}
