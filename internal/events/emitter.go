// Package events publishes tenant lifecycle events to a message backend.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tendant/simple-onboarding/pkg/domain"
)

// DefaultPublishTimeout bounds a single publish attempt.
const DefaultPublishTimeout = 10 * time.Second

// Publisher delivers a tenant event to a backend.
type Publisher interface {
	Publish(ctx context.Context, event domain.TenantProvisioned) error
}

// Recorder observes publish results.
type Recorder interface {
	EventEmitted(result string)
}

// Publish results reported to the Recorder.
const (
	ResultPublished = "published"
	ResultFailed    = "failed"
)

// AsyncEmitter hands events to a Publisher on a background goroutine.
// Failures are logged and never reach the caller.
type AsyncEmitter struct {
	publisher Publisher
	logger    *slog.Logger
	recorder  Recorder
	timeout   time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewAsyncEmitter creates an emitter. recorder may be nil.
func NewAsyncEmitter(publisher Publisher, logger *slog.Logger, recorder Recorder) *AsyncEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncEmitter{
		publisher: publisher,
		logger:    logger,
		recorder:  recorder,
		timeout:   DefaultPublishTimeout,
	}
}

// Emit schedules the event for publishing and returns immediately.
func (e *AsyncEmitter) Emit(ctx context.Context, event domain.TenantProvisioned) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("event dropped, emitter closed",
			"event", domain.TenantProvisionedEventName,
			"tenant_id", event.TenantID)
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer e.wg.Done()

		pubCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		if err := e.publisher.Publish(pubCtx, event); err != nil {
			e.logger.Error("failed to publish event",
				"event", domain.TenantProvisionedEventName,
				"tenant_id", event.TenantID,
				"error", err)
			e.record(ResultFailed)
			return
		}
		e.logger.Debug("event published",
			"event", domain.TenantProvisionedEventName,
			"tenant_id", event.TenantID)
		e.record(ResultPublished)
	}()
}

// Close stops accepting events and waits for in-flight publishes.
func (e *AsyncEmitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *AsyncEmitter) record(result string) {
	if e.recorder != nil {
		e.recorder.EventEmitted(result)
	}
}
