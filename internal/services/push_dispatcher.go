package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"hound-api/internal/metrics"
	"hound-api/pkg/logging"

	"github.com/google/uuid"
)

// PushEvent tells a user's devices that their entitlement changed
type PushEvent struct {
	ID               string    `json:"id"`
	Event            string    `json:"event"`
	UserID           string    `json:"userId"`
	TransactionID    string    `json:"transactionId"`
	ProductID        string    `json:"productId"`
	NotificationType string    `json:"notificationType,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewSubscriptionPushEvent builds the event sent after a webhook changed a user's ledger
func NewSubscriptionPushEvent(userID, transactionID, productID, notificationType string) PushEvent {
	return PushEvent{
		ID:               uuid.NewString(),
		Event:            "subscription.updated",
		UserID:           userID,
		TransactionID:    transactionID,
		ProductID:        productID,
		NotificationType: notificationType,
		Timestamp:        time.Now().UTC(),
	}
}

// PushSender delivers one event
type PushSender interface {
	Send(ctx context.Context, event PushEvent) error
}

// PushEnqueuer accepts events for asynchronous delivery
type PushEnqueuer interface {
	Enqueue(event PushEvent)
}

// PushDispatcher delivers push events in the background. Events are best effort:
// a full queue drops them, and queued events are lost if the process dies.
type PushDispatcher struct {
	sender  PushSender
	queue   chan PushEvent
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewPushDispatcher(sender PushSender, queueSize, workers int) *PushDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PushDispatcher{
		sender:  sender,
		queue:   make(chan PushEvent, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines
func (d *PushDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Enqueue never blocks
func (d *PushDispatcher) Enqueue(event PushEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		metrics.RecordPushEvent("dropped")
		logging.Warnf("Push dispatcher stopped, dropping event %s for user %s", event.ID, event.UserID)
		return
	}

	select {
	case d.queue <- event:
		metrics.RecordPushEvent("queued")
	default:
		metrics.RecordPushEvent("dropped")
		logging.Warnf("Push queue full, dropping event %s for user %s", event.ID, event.UserID)
	}
}

// Stop refuses new events and waits for queued ones until ctx is done
func (d *PushDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *PushDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *PushDispatcher) deliver(event PushEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPushEvent("failed")
			logging.Errorf("Push sender panicked - event: %s, panic: %v", event.ID, r)
		}
	}()

	if err := d.sender.Send(d.ctx, event); err != nil {
		metrics.RecordPushEvent("failed")
		logging.Errorf("Push event failed - event: %s, user: %s, error: %v", event.ID, event.UserID, err)
		return
	}
	metrics.RecordPushEvent("sent")
}

// HTTPPushSender posts events to the push relay, signing each body with HMAC-SHA256
type HTTPPushSender struct {
	url         string
	secret      string
	httpClient  *http.Client
	retryDelays []time.Duration
}

func NewHTTPPushSender(url, secret string) *HTTPPushSender {
	return &HTTPPushSender{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// Retry schedule: 1s, 5s, 30s
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Send tries once plus one retry per configured delay
func (s *HTTPPushSender) Send(ctx context.Context, event PushEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	attempts := len(s.retryDelays) + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = s.post(ctx, body); lastErr == nil {
			logging.Debugf("Push event delivered - event: %s, attempt: %d", event.ID, attempt+1)
			return nil
		}

		logging.Warnf("Push relay request failed - event: %s, attempt: %d, error: %v", event.ID, attempt+1, lastErr)
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelays[attempt]):
		}
	}

	return fmt.Errorf("push relay failed after %d attempts: %w", attempts, lastErr)
}

func (s *HTTPPushSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Hound-API/1.0")
	if s.secret != "" {
		req.Header.Set("X-Hound-Signature", SignPushPayload(body, s.secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// SignPushPayload returns the hex HMAC-SHA256 of payload under secret
func SignPushPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// LogPushSender only logs events, used when no relay is configured
type LogPushSender struct{}

func (LogPushSender) Send(_ context.Context, event PushEvent) error {
	logging.WithFields(logging.Fields{
		"event_id":       event.ID,
		"user_id":        event.UserID,
		"transaction_id": event.TransactionID,
		"product_id":     event.ProductID,
	}).Info("Push relay not configured, event logged only")
	return nil
}
