package tasks

import (
	"context"
	"fmt"
	"time"

	"prahsys_clerk/internal/services"
)

// Task names dispatched by the worker.
const (
	TaskProcessWebhook         = "webhook.process"
	TaskRetrySweep             = "webhook.retry_sweep"
	TaskRequeueStalePending    = "webhook.requeue_stale"
	TaskCleanupExpiredSessions = "session.cleanup_expired"
)

// WebhookTasks bundles the reconciliation maintenance work the worker
// runs on a schedule, plus single-event processing.
type WebhookTasks struct {
	processor  *services.WebhookProcessor
	manager    *services.SessionManager
	staleAfter time.Duration
}

func NewWebhookTasks(processor *services.WebhookProcessor, manager *services.SessionManager, staleAfter time.Duration) *WebhookTasks {
	return &WebhookTasks{processor: processor, manager: manager, staleAfter: staleAfter}
}

// ProcessEvent handles one webhook event by its external id.
func (t *WebhookTasks) ProcessEvent(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	eventID, ok := args["event_id"].(string)
	if !ok || eventID == "" {
		return nil, fmt.Errorf("event_id argument is required")
	}

	if err := t.processor.ProcessByID(ctx, eventID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "success", "event_id": eventID}, nil
}

// RetrySweep re-processes failed events under the retry ceiling.
func (t *WebhookTasks) RetrySweep(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	processed, err := t.processor.RetrySweep(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "success", "processed": processed}, nil
}

// RequeueStalePending puts lost pending events back on the queue.
func (t *WebhookTasks) RequeueStalePending(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	requeued, err := t.processor.RequeueStalePending(ctx, t.staleAfter)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "success", "requeued": requeued}, nil
}

// CleanupExpiredSessions expires stale created sessions.
func (t *WebhookTasks) CleanupExpiredSessions(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	expired, err := t.manager.CleanupExpiredSessions(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "success", "expired": expired}, nil
}
