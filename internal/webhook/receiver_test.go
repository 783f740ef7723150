package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testSecret = "shhh-very-secret"

func signedBody(t *testing.T, event string, payload map[string]any) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body, Sign([]byte(testSecret), body)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"security.issue.created"}`)
	sig := Sign([]byte(testSecret), body)

	if !VerifySignature([]byte(testSecret), body, sig) {
		t.Fatalf("expected exact signature to verify")
	}
	if !VerifySignature([]byte(testSecret), body, "sha256="+sig) {
		t.Fatalf("expected prefixed signature to verify")
	}

	// any flipped payload byte rejects
	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0x01
	if VerifySignature([]byte(testSecret), tampered, sig) {
		t.Fatalf("expected tampered payload rejection")
	}
	// any flipped secret byte rejects
	if VerifySignature([]byte("shhh-very-secreT"), body, sig) {
		t.Fatalf("expected wrong secret rejection")
	}
	if VerifySignature([]byte(testSecret), body, "") {
		t.Fatalf("expected empty signature rejection")
	}
	if VerifySignature(nil, body, sig) {
		t.Fatalf("expected missing secret rejection")
	}
}

func TestAddrAllowed(t *testing.T) {
	allow := []string{"10.0.0.5", "2001:db8::1"}
	cases := []struct {
		remote string
		want   bool
	}{
		{"10.0.0.5:44211", true},
		{"::ffff:10.0.0.5", true},
		{"[::ffff:10.0.0.5]:9000", true},
		{"[2001:db8::1]:443", true},
		{"10.0.0.6:1000", false},
	}
	for _, tc := range cases {
		if got := addrAllowed(allow, tc.remote); got != tc.want {
			t.Fatalf("%s: expected %v", tc.remote, tc.want)
		}
	}
	if !addrAllowed(nil, "198.51.100.7:80") {
		t.Fatalf("empty allowlist should admit everything")
	}
}

func TestProcessDispatchesMappedEvent(t *testing.T) {
	r := NewReceiver(testSecret)
	r.Handle("security.issue.created", func(_ context.Context, event InboundEvent) (HandlerResult, error) {
		if event.Payload["title"] != "SQL injection" {
			return HandlerResult{}, errors.New("missing title")
		}
		return HandlerResult{Action: "created", EntityID: "risk-1"}, nil
	})

	body, sig := signedBody(t, "security.issue.created", map[string]any{"title": "SQL injection"})
	resp := r.Process(context.Background(), "10.1.1.1:999", sig, body)
	if !resp.Success || resp.Action != "created" || resp.EntityID != "risk-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestProcessRejectsBadSignature(t *testing.T) {
	r := NewReceiver(testSecret)
	body, _ := signedBody(t, "security.issue.created", nil)
	resp := r.Process(context.Background(), "10.1.1.1:999", "sha256=deadbeef", body)
	if resp.Success || resp.Error != "invalid signature" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestProcessEnforcesAllowlist(t *testing.T) {
	r := NewReceiver(testSecret, WithAllowlist([]string{"192.0.2.10"}))
	body, sig := signedBody(t, "security.issue.created", nil)

	resp := r.Process(context.Background(), "203.0.113.9:4242", sig, body)
	if resp.Success || resp.Error != "source address not allowed" {
		t.Fatalf("unexpected response %+v", resp)
	}
	resp = r.Process(context.Background(), "::ffff:192.0.2.10", sig, body)
	if resp.Error == "source address not allowed" {
		t.Fatalf("expected mapped IPv4 source admitted")
	}
}

func TestProcessAcknowledgesUnmappedEvent(t *testing.T) {
	r := NewReceiver(testSecret)
	body, sig := signedBody(t, "vendor.assessment.completed", nil)
	resp := r.Process(context.Background(), "10.0.0.1:1", sig, body)
	if !resp.Success || resp.Action != "ignored" {
		t.Fatalf("expected acknowledged-not-processed, got %+v", resp)
	}
}

func TestProcessInvalidPayloads(t *testing.T) {
	r := NewReceiver(testSecret)

	garbage := []byte("{not json")
	resp := r.Process(context.Background(), "10.0.0.1:1", Sign([]byte(testSecret), garbage), garbage)
	if resp.Success || resp.Error != "invalid payload" {
		t.Fatalf("unexpected response %+v", resp)
	}

	noEvent := []byte(`{"payload":{}}`)
	resp = r.Process(context.Background(), "10.0.0.1:1", Sign([]byte(testSecret), noEvent), noEvent)
	if resp.Success || resp.Error != "missing event name" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandlerFailureStoredAndRetried(t *testing.T) {
	r := NewReceiver(testSecret)
	fail := true
	r.Handle("security.issue.created", func(context.Context, InboundEvent) (HandlerResult, error) {
		if fail {
			return HandlerResult{}, errors.New("store unavailable")
		}
		return HandlerResult{Action: "created", EntityID: "risk-2"}, nil
	})

	body, sig := signedBody(t, "security.issue.created", nil)
	resp := r.Process(context.Background(), "10.0.0.1:1", sig, body)
	if resp.Success {
		t.Fatalf("expected handler failure surfaced in body")
	}
	failed := r.Failed()
	if len(failed) != 1 || failed[0].Event != "security.issue.created" {
		t.Fatalf("expected stored failed payload, got %+v", failed)
	}

	// retry while still broken keeps the entry
	if resp := r.RetryFailed(context.Background(), failed[0].ID); resp.Success {
		t.Fatalf("expected retry failure")
	}
	if len(r.Failed()) != 1 {
		t.Fatalf("expected entry retained after failed retry")
	}

	fail = false
	resp = r.RetryFailed(context.Background(), failed[0].ID)
	if !resp.Success || resp.EntityID != "risk-2" {
		t.Fatalf("unexpected retry response %+v", resp)
	}
	if len(r.Failed()) != 0 {
		t.Fatalf("expected entry removed after successful retry")
	}

	if resp := r.RetryFailed(context.Background(), "missing"); resp.Success {
		t.Fatalf("expected unknown id rejection")
	}
}

func TestServeHTTPAlwaysReturns200(t *testing.T) {
	r := NewReceiver(testSecret)

	// bad signature still answers 200 with success:false
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"event":"x"}`))
	req.Header.Set(SignatureHeader, "sha256=bogus")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected failure body, got %+v", resp)
	}

	// valid delivery answers 200 with success:true
	body, sig := signedBody(t, "anything.unmapped", nil)
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	req.Header.Set(SignatureHeader, sig)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success body, got %+v", resp)
	}
}
