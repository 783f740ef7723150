package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestDispatchSendsToWebhook(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusOK)
	d := NewDispatcher(Settings{WebhookURL: srv.URL}, WithSleep(func(time.Duration) {}))

	outcome, err := d.Dispatch(context.Background(), Notification{Title: "deploy", Severity: SeverityLow})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomeSent {
		t.Fatalf("expected sent, got %s", outcome)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Fatalf("expected 1 delivery, got %d", *hits)
	}
	if stats := d.Stats(); stats.Sent != 1 || stats.Failed != 0 || stats.Filtered != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDispatchMissingWebhookURL(t *testing.T) {
	d := NewDispatcher(Settings{})
	outcome, err := d.Dispatch(context.Background(), Notification{Title: "x"})
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	if outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}
	if len(d.Queue()) != 0 {
		t.Fatalf("expected nothing queued")
	}
	if d.Stats().Failed != 1 {
		t.Fatalf("expected failed counter, got %+v", d.Stats())
	}
}

func TestQuietHoursWindow(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK)
	quiet := &QuietHours{Start: "22:00", End: "08:00"}

	cases := []struct {
		clock    string
		admitted bool
	}{
		{"23:00", false},
		{"02:00", false},
		{"07:59", false},
		{"08:00", true},
		{"12:00", true},
		{"21:59", true},
	}
	for _, tc := range cases {
		at, err := time.Parse("15:04", tc.clock)
		if err != nil {
			t.Fatalf("parse clock: %v", err)
		}
		d := NewDispatcher(Settings{WebhookURL: srv.URL, QuietHours: quiet},
			WithClock(fixedClock(at)),
			WithSleep(func(time.Duration) {}),
		)
		outcome, err := d.Dispatch(context.Background(), Notification{Title: "t", Severity: SeverityCritical})
		if err != nil {
			t.Fatalf("%s: dispatch: %v", tc.clock, err)
		}
		if tc.admitted && outcome != OutcomeSent {
			t.Fatalf("%s: expected sent, got %s", tc.clock, outcome)
		}
		if !tc.admitted && outcome != OutcomeFiltered {
			t.Fatalf("%s: expected filtered, got %s", tc.clock, outcome)
		}
	}
}

func TestSeverityThreshold(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK)
	d := NewDispatcher(Settings{WebhookURL: srv.URL, MinSeverity: SeverityHigh},
		WithSleep(func(time.Duration) {}))

	cases := []struct {
		severity Severity
		admitted bool
	}{
		{SeverityAll, false},
		{SeverityLow, false},
		{SeverityMedium, false},
		{SeverityHigh, true},
		{SeverityCritical, true},
	}
	for _, tc := range cases {
		outcome, err := d.Dispatch(context.Background(), Notification{Title: "t", Severity: tc.severity})
		if err != nil {
			t.Fatalf("%s: dispatch: %v", tc.severity, err)
		}
		want := OutcomeFiltered
		if tc.admitted {
			want = OutcomeSent
		}
		if outcome != want {
			t.Fatalf("%s: expected %s, got %s", tc.severity, want, outcome)
		}
	}
	if stats := d.Stats(); stats.Filtered != 3 || stats.Sent != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCategoryFilterRunsFirst(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusOK)
	d := NewDispatcher(Settings{
		WebhookURL: srv.URL,
		Categories: map[string]bool{"compliance": true},
	}, WithSleep(func(time.Duration) {}))

	outcome, err := d.Dispatch(context.Background(), Notification{Title: "t", Category: "marketing", Severity: SeverityCritical})
	if err != nil || outcome != OutcomeFiltered {
		t.Fatalf("expected filtered, got %s err %v", outcome, err)
	}
	outcome, err = d.Dispatch(context.Background(), Notification{Title: "t", Category: "compliance", Severity: SeverityCritical})
	if err != nil || outcome != OutcomeSent {
		t.Fatalf("expected sent, got %s err %v", outcome, err)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Fatalf("expected exactly 1 delivery")
	}
}

func TestRateLimitSpacesSends(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK)
	current := time.Unix(1000, 0)
	var slept time.Duration
	d := NewDispatcher(Settings{WebhookURL: srv.URL, MinInterval: 5 * time.Second},
		WithClock(func() time.Time { return current }),
		WithSleep(func(dur time.Duration) {
			slept += dur
			current = current.Add(dur)
		}),
	)

	if _, err := d.Dispatch(context.Background(), Notification{Title: "a"}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if slept != 0 {
		t.Fatalf("first send should not wait, slept %v", slept)
	}
	current = current.Add(2 * time.Second)
	if _, err := d.Dispatch(context.Background(), Notification{Title: "b"}); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if slept != 3*time.Second {
		t.Fatalf("expected 3s wait to honor the interval, slept %v", slept)
	}
}

func TestFailedDeliveryQueuesForRetry(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway)
	d := NewDispatcher(Settings{WebhookURL: srv.URL}, WithSleep(func(time.Duration) {}))

	outcome, err := d.Dispatch(context.Background(), Notification{Title: "flaky"})
	if err != nil {
		t.Fatalf("dispatch should swallow transient failure: %v", err)
	}
	if outcome != OutcomeQueued {
		t.Fatalf("expected queued, got %s", outcome)
	}
	queue := d.Queue()
	if len(queue) != 1 || queue[0].Attempts != 1 || queue[0].ID == "" {
		t.Fatalf("unexpected queue %+v", queue)
	}
	if d.Stats().Failed != 1 {
		t.Fatalf("expected failed counter, got %+v", d.Stats())
	}
}

func TestRetryDropsAfterMaxAttempts(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError)
	d := NewDispatcher(Settings{WebhookURL: srv.URL}, WithSleep(func(time.Duration) {}))

	if outcome, _ := d.Dispatch(context.Background(), Notification{Title: "doomed"}); outcome != OutcomeQueued {
		t.Fatalf("expected queued")
	}
	// attempt 2
	if attempted, delivered := d.RetryNow(context.Background()); attempted != 1 || delivered != 0 {
		t.Fatalf("unexpected retry result %d/%d", attempted, delivered)
	}
	if len(d.Queue()) != 1 {
		t.Fatalf("expected entry still queued after attempt 2")
	}
	// attempt 3 hits the ceiling and drops
	if attempted, _ := d.RetryNow(context.Background()); attempted != 1 {
		t.Fatalf("expected one final attempt")
	}
	if len(d.Queue()) != 0 {
		t.Fatalf("expected dropped notification absent from queue")
	}
	// nothing left to retry
	if attempted, _ := d.RetryNow(context.Background()); attempted != 0 {
		t.Fatalf("expected empty queue")
	}
}

func TestRetrySucceedsAndCounts(t *testing.T) {
	var fail int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Settings{WebhookURL: srv.URL}, WithSleep(func(time.Duration) {}))
	if outcome, _ := d.Dispatch(context.Background(), Notification{Title: "later"}); outcome != OutcomeQueued {
		t.Fatalf("expected queued")
	}
	atomic.StoreInt32(&fail, 0)
	attempted, delivered := d.RetryNow(context.Background())
	if attempted != 1 || delivered != 1 {
		t.Fatalf("unexpected retry result %d/%d", attempted, delivered)
	}
	if len(d.Queue()) != 0 {
		t.Fatalf("expected drained queue")
	}
	stats := d.Stats()
	if stats.Sent != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestClearQueueAndResetStats(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway)
	d := NewDispatcher(Settings{WebhookURL: srv.URL}, WithSleep(func(time.Duration) {}))
	_, _ = d.Dispatch(context.Background(), Notification{Title: "a"})
	_, _ = d.Dispatch(context.Background(), Notification{Title: "b"})

	if n := d.ClearQueue(); n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}
	d.ResetStats()
	if stats := d.Stats(); stats != (Stats{}) {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}
}

func TestConfigureKeepsQueueAndStats(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway)
	d := NewDispatcher(Settings{WebhookURL: srv.URL}, WithSleep(func(time.Duration) {}))
	_, _ = d.Dispatch(context.Background(), Notification{Title: "a"})

	d.Configure(Settings{WebhookURL: srv.URL, MinSeverity: SeverityHigh})
	if len(d.Queue()) != 1 {
		t.Fatalf("expected queue to survive reconfiguration")
	}
	if d.Stats().Failed != 1 {
		t.Fatalf("expected stats to survive reconfiguration")
	}
	if d.Settings().MinSeverity != SeverityHigh {
		t.Fatalf("expected new settings applied")
	}
}
