package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func testProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	secrets := map[string]string{"greenhouse": "gh-secret", "lever": "lv-secret"}
	return NewProcessor(secrets, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func signedRequest(secret string, body []byte) (sig, ts string) {
	return Sign(secret, body), strconv.FormatInt(time.Now().Unix(), 10)
}

func TestProcess_ValidEventDispatches(t *testing.T) {
	p := testProcessor(t, Config{})

	var got atomic.Int32
	p.Register("greenhouse", "job.created", "ingest", func(ctx context.Context, evt Event) error {
		if evt.Source != "greenhouse" || evt.Type != "job.created" {
			t.Errorf("unexpected event %+v", evt)
		}
		got.Add(1)
		return nil
	})

	body := []byte(`{"id":"evt-1","type":"job.created","data":{"jobId":"42"}}`)
	sig, ts := signedRequest("gh-secret", body)

	result, err := p.Process(context.Background(), "greenhouse", body, sig, ts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.EventID != "evt-1" || result.Handlers != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", got.Load())
	}
}

func TestProcess_TamperedByteRejected(t *testing.T) {
	p := testProcessor(t, Config{})
	p.Register("greenhouse", "job.created", "ingest", func(context.Context, Event) error {
		t.Error("handler must not run for a bad signature")
		return nil
	})

	body := []byte(`{"id":"evt-1","type":"job.created"}`)
	sig, ts := signedRequest("gh-secret", body)

	body[len(body)-2] ^= 0x01 // flip one bit after signing
	if _, err := p.Process(context.Background(), "greenhouse", body, sig, ts); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}
}

func TestProcess_SignatureErrors(t *testing.T) {
	p := testProcessor(t, Config{})
	body := []byte(`{"type":"job.created"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	cases := []struct {
		name   string
		source string
		sig    string
		want   error
	}{
		{"unknown source", "workday", Sign("gh-secret", body), ErrUnknownSource},
		{"missing header", "greenhouse", "", ErrMissingSignature},
		{"wrong prefix", "greenhouse", "md5=abcd", ErrMissingSignature},
		{"bad hex", "greenhouse", "sha256=zzzz", ErrMissingSignature},
		{"wrong secret", "greenhouse", Sign("lv-secret", body), ErrBadSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Process(context.Background(), tc.source, body, tc.sig, ts); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestProcess_StaleTimestampRejected(t *testing.T) {
	p := testProcessor(t, Config{Tolerance: time.Minute})
	body := []byte(`{"type":"job.created"}`)
	sig := Sign("gh-secret", body)

	// Twice the tolerance in the past.
	stale := strconv.FormatInt(time.Now().Add(-2*time.Minute).Unix(), 10)
	if _, err := p.Process(context.Background(), "greenhouse", body, sig, stale); !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("got %v, want ErrStaleTimestamp", err)
	}

	// Future drift beyond tolerance is rejected the same way.
	future := strconv.FormatInt(time.Now().Add(2*time.Minute).Unix(), 10)
	if _, err := p.Process(context.Background(), "greenhouse", body, sig, future); !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("got %v, want ErrStaleTimestamp", err)
	}
}

func TestProcess_MalformedPayload(t *testing.T) {
	p := testProcessor(t, Config{})
	for _, body := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"id":"evt-1"}`), // no type
	} {
		sig, ts := signedRequest("gh-secret", body)
		if _, err := p.Process(context.Background(), "greenhouse", body, sig, ts); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("body %q: got %v, want ErrMalformedPayload", body, err)
		}
	}
}

func TestParse_GeneratesIDWhenMissing(t *testing.T) {
	p := testProcessor(t, Config{})
	evt, err := p.Parse("lever", []byte(`{"type":"job.updated"}`), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if evt.ID == "" {
		t.Fatal("expected a generated event ID")
	}
}

func TestDispatch_WildcardReceivesAll(t *testing.T) {
	p := testProcessor(t, Config{})

	var created, all atomic.Int32
	p.Register("greenhouse", "job.created", "created-only", func(context.Context, Event) error {
		created.Add(1)
		return nil
	})
	p.Register("greenhouse", Wildcard, "audit", func(context.Context, Event) error {
		all.Add(1)
		return nil
	})

	for _, typ := range []string{"job.created", "job.closed"} {
		body := []byte(fmt.Sprintf(`{"type":%q}`, typ))
		sig, ts := signedRequest("gh-secret", body)
		if _, err := p.Process(context.Background(), "greenhouse", body, sig, ts); err != nil {
			t.Fatalf("Process(%s): %v", typ, err)
		}
	}
	if created.Load() != 1 {
		t.Fatalf("typed handler ran %d times, want 1", created.Load())
	}
	if all.Load() != 2 {
		t.Fatalf("wildcard handler ran %d times, want 2", all.Load())
	}
}

func TestDispatch_HandlerFailureIsolated(t *testing.T) {
	p := testProcessor(t, Config{HandlerRetries: 2, HandlerDelay: time.Millisecond})

	var healthy atomic.Int32
	p.Register("greenhouse", "job.created", "broken", func(context.Context, Event) error {
		return errors.New("downstream unavailable")
	})
	p.Register("greenhouse", "job.created", "healthy", func(context.Context, Event) error {
		healthy.Add(1)
		return nil
	})

	body := []byte(`{"id":"evt-9","type":"job.created"}`)
	sig, ts := signedRequest("gh-secret", body)

	result, err := p.Process(context.Background(), "greenhouse", body, sig, ts)
	if err == nil {
		t.Fatal("expected an error when a handler exhausts retries")
	}
	if healthy.Load() != 1 {
		t.Fatal("healthy handler must still run when a sibling fails")
	}
	if len(result.Failed) != 1 || result.Failed[0] != "broken" {
		t.Fatalf("unexpected failures %v", result.Failed)
	}
}

func TestDispatch_HandlerRetriesThenSucceeds(t *testing.T) {
	p := testProcessor(t, Config{HandlerRetries: 3, HandlerDelay: time.Millisecond})

	var calls atomic.Int32
	p.Register("greenhouse", "job.created", "flaky", func(context.Context, Event) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	body := []byte(`{"type":"job.created"}`)
	sig, ts := signedRequest("gh-secret", body)
	if _, err := p.Process(context.Background(), "greenhouse", body, sig, ts); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("handler called %d times, want 3", calls.Load())
	}
}

func TestDispatch_PanicDoesNotCrash(t *testing.T) {
	p := testProcessor(t, Config{HandlerRetries: 1})
	p.Register("greenhouse", "job.created", "panicky", func(context.Context, Event) error {
		panic("boom")
	})

	body := []byte(`{"type":"job.created"}`)
	sig, ts := signedRequest("gh-secret", body)
	result, err := p.Process(context.Background(), "greenhouse", body, sig, ts)
	if err == nil {
		t.Fatal("expected an error from the panicking handler")
	}
	if len(result.Failed) != 1 {
		t.Fatalf("unexpected failures %v", result.Failed)
	}
}

func TestMetrics_TrackRequestsAndHandlers(t *testing.T) {
	p := testProcessor(t, Config{MetricsWindow: 10, HandlerRetries: 1})
	p.Register("greenhouse", "job.created", "ingest", func(context.Context, Event) error {
		return nil
	})

	body := []byte(`{"type":"job.created"}`)
	sig, ts := signedRequest("gh-secret", body)
	for i := 0; i < 3; i++ {
		if _, err := p.Process(context.Background(), "greenhouse", body, sig, ts); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	// One rejected request lands in the window as a failure.
	if _, err := p.Process(context.Background(), "greenhouse", body, "sha256=00", ts); err == nil {
		t.Fatal("expected signature failure")
	}

	stats := p.Metrics()
	if stats.Requests.Samples != 4 {
		t.Fatalf("samples = %d, want 4", stats.Requests.Samples)
	}
	if stats.Requests.SuccessRate != 0.75 {
		t.Fatalf("success rate = %v, want 0.75", stats.Requests.SuccessRate)
	}
	h, ok := stats.Handlers["ingest"]
	if !ok || h.Samples != 3 || h.SuccessRate != 1 {
		t.Fatalf("unexpected handler stats %+v", h)
	}
}

func TestRollingWindow_EvictsOldest(t *testing.T) {
	w := newRollingWindow(3)
	w.add(sample{success: false})
	w.add(sample{success: true})
	w.add(sample{success: true})
	w.add(sample{success: true}) // overwrites the failure

	s := w.snapshot()
	if s.Samples != 3 || s.SuccessRate != 1 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}
