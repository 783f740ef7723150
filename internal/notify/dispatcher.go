package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// MaxAttempts is the delivery attempt ceiling per notification. A queued
// notification that fails its final attempt is dropped with a logged warning.
const MaxAttempts = 3

// DefaultMinInterval spaces out consecutive sends when none is configured.
const DefaultMinInterval = time.Second

// QueueEntry is one notification waiting for redelivery.
type QueueEntry struct {
	ID           string       `json:"id"`
	Notification Notification `json:"notification"`
	Attempts     int          `json:"attempts"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
	LastError    string       `json:"last_error,omitempty"`
}

// Dispatcher owns all mutable notification state: settings, the last-send
// timestamp, counters and the retry queue. All shared state is mutex-guarded
// so the periodic sweep and manual retries cannot race.
type Dispatcher struct {
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(time.Duration)

	outcomes *prometheus.CounterVec

	mu       sync.Mutex
	settings Settings
	lastSend time.Time
	queue    []QueueEntry
	stats    Stats
}

// DispatcherOption customizes a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the delivery client.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithSleep replaces the rate-limit sleep, for tests.
func WithSleep(sleep func(time.Duration)) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// WithDispatchLogger sets the diagnostics logger.
func WithDispatchLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithOutcomeCounter registers a Prometheus counter mirroring dispatch
// outcomes, labeled by outcome.
func WithOutcomeCounter(reg prometheus.Registerer) DispatcherOption {
	return func(d *Dispatcher) {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginhost",
			Subsystem: "notify",
			Name:      "dispatch_outcomes_total",
			Help:      "Notification dispatch outcomes.",
		}, []string{"outcome"})
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if err := reg.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				return
			}
		}
		d.outcomes = vec
	}
}

// NewDispatcher constructs a dispatcher with the given settings.
func NewDispatcher(settings Settings, opts ...DispatcherOption) *Dispatcher {
	if settings.MinInterval <= 0 {
		settings.MinInterval = DefaultMinInterval
	}
	d := &Dispatcher{
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   zerolog.Nop(),
		now:      time.Now,
		sleep:    time.Sleep,
		settings: settings,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configure replaces the dispatcher settings. Counters and the queue survive
// reconfiguration.
func (d *Dispatcher) Configure(settings Settings) {
	if settings.MinInterval <= 0 {
		settings.MinInterval = DefaultMinInterval
	}
	d.mu.Lock()
	d.settings = settings
	d.mu.Unlock()
}

// Settings returns a copy of the active settings.
func (d *Dispatcher) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.settings
	if s.Categories != nil {
		cp := make(map[string]bool, len(s.Categories))
		for k, v := range s.Categories {
			cp[k] = v
		}
		s.Categories = cp
	}
	return s
}

func (d *Dispatcher) countOutcome(o Outcome) {
	if d.outcomes != nil {
		d.outcomes.WithLabelValues(string(o)).Inc()
	}
}

// Dispatch runs a notification through the filter chain and, when admitted,
// delivers it. A delivery failure is queued for retry and not surfaced as an
// error; only configuration problems (missing webhook URL) are.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) (Outcome, error) {
	d.mu.Lock()
	settings := d.settings
	d.mu.Unlock()

	if settings.WebhookURL == "" {
		d.mu.Lock()
		d.stats.Failed++
		d.mu.Unlock()
		d.countOutcome(OutcomeRejected)
		return OutcomeRejected, fmt.Errorf("no webhook URL configured")
	}

	// filter order: category, quiet hours, severity
	if !settings.categoryEnabled(n.Category) {
		return d.filtered("category disabled", n)
	}
	if settings.QuietHours != nil {
		inside, err := settings.QuietHours.Contains(d.now())
		if err != nil {
			d.logger.Warn().Err(err).Msg("invalid quiet hours window, ignoring")
		} else if inside {
			return d.filtered("quiet hours", n)
		}
	}
	if n.Severity < settings.MinSeverity {
		return d.filtered("below severity threshold", n)
	}

	d.waitForRateLimit(settings.MinInterval)

	if err := d.deliver(ctx, settings.WebhookURL, n); err != nil {
		d.mu.Lock()
		d.stats.Failed++
		d.queue = append(d.queue, QueueEntry{
			ID:           uuid.NewString(),
			Notification: n,
			Attempts:     1,
			EnqueuedAt:   d.now(),
			LastError:    err.Error(),
		})
		d.mu.Unlock()
		d.countOutcome(OutcomeQueued)
		d.logger.Warn().Err(err).Str("title", n.Title).Msg("delivery failed, queued for retry")
		return OutcomeQueued, nil
	}

	d.mu.Lock()
	d.stats.Sent++
	d.mu.Unlock()
	d.countOutcome(OutcomeSent)
	return OutcomeSent, nil
}

func (d *Dispatcher) filtered(reason string, n Notification) (Outcome, error) {
	d.mu.Lock()
	d.stats.Filtered++
	d.mu.Unlock()
	d.countOutcome(OutcomeFiltered)
	d.logger.Debug().Str("reason", reason).Str("title", n.Title).Msg("notification filtered")
	return OutcomeFiltered, nil
}

// waitForRateLimit blocks until the minimum interval since the last send has
// elapsed, then claims the send slot.
func (d *Dispatcher) waitForRateLimit(interval time.Duration) {
	for {
		d.mu.Lock()
		now := d.now()
		remaining := interval - now.Sub(d.lastSend)
		if d.lastSend.IsZero() || remaining <= 0 {
			d.lastSend = now
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
		d.sleep(remaining)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, url string, n Notification) error {
	payload := BuildPayload(DetectPlatform(url), n)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Queue returns a copy of the pending retry entries in FIFO order.
func (d *Dispatcher) Queue() []QueueEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]QueueEntry, len(d.queue))
	copy(out, d.queue)
	return out
}

// ClearQueue drops all pending retries and returns how many were removed.
func (d *Dispatcher) ClearQueue() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	d.queue = nil
	return n
}

// RetryNow drains the queue once. Each entry is attempted immediately,
// bypassing the rate-limit wait; failures re-queue with an incremented
// attempt count until MaxAttempts, then drop with a logged warning.
func (d *Dispatcher) RetryNow(ctx context.Context) (attempted, delivered int) {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	settings := d.settings
	d.mu.Unlock()

	for _, entry := range pending {
		attempted++
		err := d.deliver(ctx, settings.WebhookURL, entry.Notification)
		if err == nil {
			delivered++
			d.mu.Lock()
			d.stats.Sent++
			d.mu.Unlock()
			d.countOutcome(OutcomeSent)
			continue
		}
		entry.Attempts++
		entry.LastError = err.Error()
		if entry.Attempts >= MaxAttempts {
			d.mu.Lock()
			d.stats.Failed++
			d.mu.Unlock()
			d.logger.Warn().
				Str("id", entry.ID).
				Str("title", entry.Notification.Title).
				Int("attempts", entry.Attempts).
				Err(err).
				Msg("notification dropped after max attempts")
			continue
		}
		d.mu.Lock()
		d.stats.Failed++
		d.queue = append(d.queue, entry)
		d.mu.Unlock()
	}
	return attempted, delivered
}

// StartSweeper launches the periodic retry sweep. It stops when ctx is done.
func (d *Dispatcher) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.RetryNow(ctx)
			}
		}
	}()
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ResetStats zeroes the counters. Called on plugin uninstall only.
func (d *Dispatcher) ResetStats() {
	d.mu.Lock()
	d.stats = Stats{}
	d.mu.Unlock()
}
