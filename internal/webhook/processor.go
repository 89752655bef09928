// Package webhook validates signed push notifications from job boards
// and dispatches them to registered handlers. A request moves through
// received → signature-verified → timestamp-verified → parsed →
// dispatched; validation failures are client errors and never reach
// handlers.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Validation errors surfaced at the HTTP boundary as 4xx.
var (
	ErrUnknownSource    = errors.New("webhook: unknown source")
	ErrMissingSignature = errors.New("webhook: missing or malformed signature header")
	ErrBadSignature     = errors.New("webhook: signature mismatch")
	ErrMissingTimestamp = errors.New("webhook: missing or malformed timestamp header")
	ErrStaleTimestamp   = errors.New("webhook: timestamp outside tolerance window")
	ErrMalformedPayload = errors.New("webhook: malformed payload")
)

// Wildcard registers a handler for every event type of a source.
const Wildcard = "*"

// Event is the normalized inbound notification.
type Event struct {
	ID        string
	Source    string
	Type      string
	Timestamp time.Time
	Data      json.RawMessage
}

// HandlerFunc processes one event. Each handler retries independently;
// one handler's failure never blocks another's.
type HandlerFunc func(ctx context.Context, evt Event) error

type registration struct {
	name string
	fn   HandlerFunc
}

// Config tunes the processor.
type Config struct {
	SignatureHeader string        // default "x-signature"
	SignaturePrefix string        // default "sha256="
	TimestampHeader string        // default "x-timestamp"
	Tolerance       time.Duration // default 5m
	MaxBodyBytes    int64         // default 1MB
	HandlerRetries  int           // attempts per handler, default 3
	HandlerDelay    time.Duration // base delay between handler attempts, default 100ms
	MetricsWindow   int           // rolling sample count, default 100
}

// DefaultConfig returns the standard webhook tuning.
func DefaultConfig() Config {
	return Config{
		SignatureHeader: "x-signature",
		SignaturePrefix: "sha256=",
		TimestampHeader: "x-timestamp",
		Tolerance:       5 * time.Minute,
		MaxBodyBytes:    1 << 20,
		HandlerRetries:  3,
		HandlerDelay:    100 * time.Millisecond,
		MetricsWindow:   100,
	}
}

// Result reports one event's dispatch outcome.
type Result struct {
	EventID  string
	Handlers int
	Failed   []string
}

// Processor validates and dispatches webhook events.
type Processor struct {
	mu       sync.RWMutex
	secrets  map[string]string                   // source → shared secret
	handlers map[string]map[string][]registration // source → event type → handlers
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics
}

// NewProcessor creates a processor with per-source shared secrets.
func NewProcessor(secrets map[string]string, cfg Config, logger *slog.Logger) *Processor {
	def := DefaultConfig()
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = def.SignatureHeader
	}
	if cfg.SignaturePrefix == "" {
		cfg.SignaturePrefix = def.SignaturePrefix
	}
	if cfg.TimestampHeader == "" {
		cfg.TimestampHeader = def.TimestampHeader
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.HandlerRetries <= 0 {
		cfg.HandlerRetries = def.HandlerRetries
	}
	if cfg.HandlerDelay <= 0 {
		cfg.HandlerDelay = def.HandlerDelay
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = def.MetricsWindow
	}

	reg := make(map[string]string, len(secrets))
	for source, secret := range secrets {
		reg[source] = secret
	}
	return &Processor{
		secrets:  reg,
		handlers: make(map[string]map[string][]registration),
		cfg:      cfg,
		logger:   logger,
		metrics:  newMetrics(cfg.MetricsWindow),
	}
}

// Register adds a handler for (source, eventType). Use Wildcard as the
// event type to receive every event for the source.
func (p *Processor) Register(source, eventType, name string, fn HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byType, ok := p.handlers[source]
	if !ok {
		byType = make(map[string][]registration)
		p.handlers[source] = byType
	}
	byType[eventType] = append(byType[eventType], registration{name: name, fn: fn})
}

// Sign computes the signature header value for a body, for senders and
// tests.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the raw body
// using constant-time comparison.
func (p *Processor) VerifySignature(source string, body []byte, header string) error {
	p.mu.RLock()
	secret, ok := p.secrets[source]
	p.mu.RUnlock()
	if !ok {
		return ErrUnknownSource
	}

	if header == "" || !strings.HasPrefix(header, p.cfg.SignaturePrefix) {
		return ErrMissingSignature
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, p.cfg.SignaturePrefix))
	if err != nil {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// VerifyTimestamp enforces the replay-protection window.
func (p *Processor) VerifyTimestamp(header string, now time.Time) error {
	if header == "" {
		return ErrMissingTimestamp
	}
	secs, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return ErrMissingTimestamp
	}
	ts := time.Unix(secs, 0)
	drift := now.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > p.cfg.Tolerance {
		return ErrStaleTimestamp
	}
	return nil
}

// payload is the wire shape of an inbound event body.
type payload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Parse extracts the normalized event, generating an ID when the
// payload carries none.
func (p *Processor) Parse(source string, body []byte, headerTimestamp string) (Event, error) {
	var raw payload
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	evt := Event{
		ID:     raw.ID,
		Source: source,
		Type:   raw.Type,
		Data:   raw.Data,
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if raw.Timestamp > 0 {
		evt.Timestamp = time.Unix(raw.Timestamp, 0).UTC()
	} else if secs, err := strconv.ParseInt(headerTimestamp, 10, 64); err == nil {
		evt.Timestamp = time.Unix(secs, 0).UTC()
	}
	return evt, nil
}

// Process runs the full validation pipeline and dispatches the event.
// Validation errors return before any handler runs. A non-nil error
// after dispatch means at least one handler exhausted its retries.
func (p *Processor) Process(ctx context.Context, source string, body []byte, signature, timestamp string) (Result, error) {
	start := time.Now()

	if err := p.VerifySignature(source, body, signature); err != nil {
		p.metrics.recordRequest(time.Since(start), false)
		return Result{}, err
	}
	if err := p.VerifyTimestamp(timestamp, time.Now()); err != nil {
		p.metrics.recordRequest(time.Since(start), false)
		return Result{}, err
	}
	evt, err := p.Parse(source, body, timestamp)
	if err != nil {
		p.metrics.recordRequest(time.Since(start), false)
		return Result{}, err
	}

	result := p.dispatch(ctx, evt)
	success := len(result.Failed) == 0
	p.metrics.recordRequest(time.Since(start), success)

	p.logger.Info("webhook processed",
		"source", source,
		"event", evt.ID,
		"type", evt.Type,
		"handlers", result.Handlers,
		"failed", len(result.Failed),
	)

	if !success {
		return result, fmt.Errorf("webhook event %s: %d of %d handlers failed",
			evt.ID, len(result.Failed), result.Handlers)
	}
	return result, nil
}

// dispatch invokes all matching handlers concurrently and waits for
// every one before reporting. Each handler retries independently with
// exponential delay.
func (p *Processor) dispatch(ctx context.Context, evt Event) Result {
	p.mu.RLock()
	var regs []registration
	if byType, ok := p.handlers[evt.Source]; ok {
		regs = append(regs, byType[evt.Type]...)
		if evt.Type != Wildcard {
			regs = append(regs, byType[Wildcard]...)
		}
	}
	p.mu.RUnlock()

	result := Result{EventID: evt.ID, Handlers: len(regs)}
	if len(regs) == 0 {
		return result
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, reg := range regs {
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()
			start := time.Now()
			err := p.runHandler(ctx, reg, evt)
			p.metrics.recordHandler(reg.name, time.Since(start), err == nil)
			if err != nil {
				p.logger.Warn("webhook handler failed",
					"handler", reg.name,
					"event", evt.ID,
					"error", err,
				)
				mu.Lock()
				result.Failed = append(result.Failed, reg.name)
				mu.Unlock()
			}
		}(reg)
	}
	wg.Wait()
	return result
}

// runHandler executes one handler with its own bounded retry, isolated
// from the processor's other handlers.
func (p *Processor) runHandler(ctx context.Context, reg registration, evt Event) error {
	var lastErr error
	delay := p.cfg.HandlerDelay
	for attempt := 1; attempt <= p.cfg.HandlerRetries; attempt++ {
		if err := safeInvoke(ctx, reg.fn, evt); err != nil {
			lastErr = err
			if attempt < p.cfg.HandlerRetries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
				delay *= 2
			}
			continue
		}
		return nil
	}
	return lastErr
}

// safeInvoke converts a handler panic into an error so a misbehaving
// handler cannot take down the dispatcher.
func safeInvoke(ctx context.Context, fn HandlerFunc, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, evt)
}

// Metrics returns the rolling request and handler stats.
func (p *Processor) Metrics() Stats {
	return p.metrics.stats()
}

// KnownSource reports whether a secret is configured for source.
func (p *Processor) KnownSource(source string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.secrets[source]
	return ok
}

// MaxBodyBytes exposes the configured body size cap to the HTTP layer.
func (p *Processor) MaxBodyBytes() int64 {
	return p.cfg.MaxBodyBytes
}
