// Package webhook implements the inbound webhook receiver: HMAC signature
// verification over the raw body, an optional source allow-list, and a closed
// event dispatch table. The HTTP surface always answers 200 so upstream
// senders never retry-storm on processing failures.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SignatureHeader carries the sender's HMAC signature.
const SignatureHeader = "X-Webhook-Signature"

const maxBodyBytes = 1 << 20

// InboundEvent is one parsed webhook delivery.
type InboundEvent struct {
	Name       string          `json:"event"`
	Payload    map[string]any  `json:"payload"`
	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"received_at"`
}

// HandlerResult describes what a mapped handler did.
type HandlerResult struct {
	Action   string
	EntityID string
}

// EventHandler processes one mapped inbound event.
type EventHandler func(ctx context.Context, event InboundEvent) (HandlerResult, error)

// Response is the receiver's uniform reply body.
type Response struct {
	Success  bool   `json:"success"`
	Action   string `json:"action,omitempty"`
	EntityID string `json:"entityId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FailedPayload retains a delivery whose handler failed, for manual retry.
type FailedPayload struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Raw        json.RawMessage `json:"raw"`
	Error      string          `json:"error"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Receiver verifies and dispatches inbound webhook deliveries.
type Receiver struct {
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	secret    []byte
	allowlist []string
	handlers  map[string]EventHandler
	failed    []FailedPayload
}

// ReceiverOption customizes a Receiver during construction.
type ReceiverOption func(*Receiver)

// WithAllowlist restricts accepted source IPs.
func WithAllowlist(ips []string) ReceiverOption {
	return func(r *Receiver) { r.allowlist = append([]string(nil), ips...) }
}

// WithReceiverLogger sets the diagnostics logger.
func WithReceiverLogger(logger zerolog.Logger) ReceiverOption {
	return func(r *Receiver) { r.logger = logger }
}

// WithReceiverClock replaces the wall clock, for tests.
func WithReceiverClock(now func() time.Time) ReceiverOption {
	return func(r *Receiver) { r.now = now }
}

// NewReceiver constructs a receiver validating against the shared secret.
func NewReceiver(secret string, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		logger:   zerolog.Nop(),
		now:      time.Now,
		secret:   []byte(secret),
		handlers: make(map[string]EventHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configure replaces the secret and allow-list. Handlers and the failed
// payload store survive.
func (r *Receiver) Configure(secret string, allowlist []string) {
	r.mu.Lock()
	r.secret = []byte(secret)
	r.allowlist = append([]string(nil), allowlist...)
	r.mu.Unlock()
}

// Handle maps an inbound event name to a handler. Events with no mapping are
// acknowledged but not processed.
func (r *Receiver) Handle(event string, handler EventHandler) {
	if event == "" || handler == nil {
		return
	}
	r.mu.Lock()
	r.handlers[event] = handler
	r.mu.Unlock()
}

// Process runs one delivery through allow-list, signature and dispatch.
// The returned response is always paired with HTTP 200 by ServeHTTP.
func (r *Receiver) Process(ctx context.Context, remoteAddr, signature string, body []byte) Response {
	r.mu.Lock()
	secret := r.secret
	allowlist := r.allowlist
	r.mu.Unlock()

	if !addrAllowed(allowlist, remoteAddr) {
		r.logger.Warn().Str("remote", remoteAddr).Msg("webhook source not allowed")
		return Response{Error: "source address not allowed"}
	}
	if !VerifySignature(secret, body, signature) {
		r.logger.Warn().Str("remote", remoteAddr).Msg("webhook signature rejected")
		return Response{Error: "invalid signature"}
	}

	var envelope struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Response{Error: "invalid payload"}
	}
	if envelope.Event == "" {
		return Response{Error: "missing event name"}
	}

	r.mu.Lock()
	handler, mapped := r.handlers[envelope.Event]
	r.mu.Unlock()
	if !mapped {
		r.logger.Debug().Str("event", envelope.Event).Msg("unmapped webhook event acknowledged")
		return Response{Success: true, Action: "ignored"}
	}

	event := InboundEvent{
		Name:       envelope.Event,
		Payload:    envelope.Payload,
		Raw:        append(json.RawMessage(nil), body...),
		ReceivedAt: r.now().UTC(),
	}
	result, err := handler(ctx, event)
	if err != nil {
		r.recordFailure(event, err)
		return Response{Error: err.Error()}
	}
	return Response{Success: true, Action: result.Action, EntityID: result.EntityID}
}

func (r *Receiver) recordFailure(event InboundEvent, err error) {
	r.mu.Lock()
	r.failed = append(r.failed, FailedPayload{
		ID:         uuid.NewString(),
		Event:      event.Name,
		Raw:        event.Raw,
		Error:      err.Error(),
		ReceivedAt: event.ReceivedAt,
	})
	r.mu.Unlock()
	r.logger.Warn().Str("event", event.Name).Err(err).Msg("webhook handler failed, payload stored")
}

// Failed returns a copy of stored failed payloads.
func (r *Receiver) Failed() []FailedPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FailedPayload, len(r.failed))
	copy(out, r.failed)
	return out
}

// RetryFailed re-runs the handler for one stored payload. A success removes
// the entry; a failure updates its error and keeps it.
func (r *Receiver) RetryFailed(ctx context.Context, id string) Response {
	r.mu.Lock()
	idx := -1
	for i, f := range r.failed {
		if f.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.mu.Unlock()
		return Response{Error: "failed payload not found"}
	}
	entry := r.failed[idx]
	handler, mapped := r.handlers[entry.Event]
	r.mu.Unlock()
	if !mapped {
		return Response{Error: "no handler for event " + entry.Event}
	}

	var envelope struct {
		Payload map[string]any `json:"payload"`
	}
	_ = json.Unmarshal(entry.Raw, &envelope)
	result, err := handler(ctx, InboundEvent{
		Name:       entry.Event,
		Payload:    envelope.Payload,
		Raw:        entry.Raw,
		ReceivedAt: entry.ReceivedAt,
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.failed {
		if f.ID != id {
			continue
		}
		if err != nil {
			r.failed[i].Error = err.Error()
			return Response{Error: err.Error()}
		}
		r.failed = append(r.failed[:i], r.failed[i+1:]...)
		break
	}
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Success: true, Action: result.Action, EntityID: result.EntityID}
}

// ServeHTTP adapts the receiver to net/http. It always answers 200 with a
// JSON body so the sender never retries on processing failures.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		body = nil
	}
	resp := r.Process(req.Context(), req.RemoteAddr, req.Header.Get(SignatureHeader), body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
