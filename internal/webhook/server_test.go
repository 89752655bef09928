package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func testServer(t *testing.T) (*httptest.Server, *Processor) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewProcessor(map[string]string{"greenhouse": "gh-secret"}, Config{
		HandlerRetries: 1,
		MaxBodyBytes:   4096,
	}, logger)
	srv := httptest.NewServer(NewServer(p, logger).Router())
	t.Cleanup(srv.Close)
	return srv, p
}

func postWebhook(t *testing.T, srv *httptest.Server, source string, body []byte, sig, ts string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/"+source, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if sig != "" {
		req.Header.Set("x-signature", sig)
	}
	if ts != "" {
		req.Header.Set("x-timestamp", ts)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func TestServer_AcceptsSignedEvent(t *testing.T) {
	srv, p := testServer(t)

	handled := make(chan string, 1)
	p.Register("greenhouse", "job.created", "ingest", func(_ context.Context, evt Event) error {
		handled <- evt.ID
		return nil
	})

	body := []byte(`{"id":"evt-7","type":"job.created"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	resp, payload := postWebhook(t, srv, "greenhouse", body, Sign("gh-secret", body), ts)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200: %v", resp.StatusCode, payload)
	}
	if payload["success"] != true || payload["eventId"] != "evt-7" {
		t.Fatalf("unexpected payload %v", payload)
	}
	select {
	case id := <-handled:
		if id != "evt-7" {
			t.Fatalf("handler saw %q", id)
		}
	default:
		t.Fatal("handler did not run")
	}
}

func TestServer_RejectsBadSignature(t *testing.T) {
	srv, _ := testServer(t)

	body := []byte(`{"type":"job.created"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	resp, payload := postWebhook(t, srv, "greenhouse", body, Sign("wrong-secret", body), ts)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	if payload["error"] != "invalid_signature" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestServer_RejectsStaleTimestamp(t *testing.T) {
	srv, _ := testServer(t)

	body := []byte(`{"type":"job.created"}`)
	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	resp, payload := postWebhook(t, srv, "greenhouse", body, Sign("gh-secret", body), stale)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	if payload["error"] != "stale_timestamp" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestServer_UnknownSourceIs404(t *testing.T) {
	srv, _ := testServer(t)

	body := []byte(`{"type":"job.created"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	resp, payload := postWebhook(t, srv, "workday", body, Sign("gh-secret", body), ts)

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
	if payload["error"] != "unknown_source" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestServer_BodyLimitEnforced(t *testing.T) {
	srv, _ := testServer(t)

	big := bytes.Repeat([]byte("a"), 8192)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	resp, _ := postWebhook(t, srv, "greenhouse", big, Sign("gh-secret", big), ts)

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413", resp.StatusCode)
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
}
