// Package notification delivers queued notifications through the push
// gateways and owns their retry and housekeeping rules.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"companion-chat/internal/logging"
	"companion-chat/internal/models"
	"companion-chat/internal/observability"
	"companion-chat/internal/push"
	"companion-chat/internal/registry"
	"companion-chat/internal/repositories"
)

// ActivityRecorder is the part of the activity tracker the dispatcher uses.
type ActivityRecorder interface {
	Record(ctx context.Context, userID int, chatRoomID *int, activityType models.ActivityType) (models.ActivityRecord, error)
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Auditor receives notifications that reached FAILED.
type Auditor interface {
	NotificationFailed(ctx context.Context, n models.Notification)
}

type Options struct {
	BatchSize             int
	Concurrency           int
	MaxRetries            int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	PushTimeout           time.Duration
	RetryableBudget       int
	NotificationRetention time.Duration
	ActivityRetention     time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Minute
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = time.Hour
	}
	if o.PushTimeout <= 0 {
		o.PushTimeout = 5 * time.Second
	}
	if o.RetryableBudget <= 0 {
		o.RetryableBudget = 2 * o.MaxRetries
	}
	if o.NotificationRetention <= 0 {
		o.NotificationRetention = 30 * 24 * time.Hour
	}
	if o.ActivityRetention <= 0 {
		o.ActivityRetention = 90 * 24 * time.Hour
	}
	return o
}

// DeliveryResult summarizes one processPending pass. Interrupted counts
// notifications left PENDING because the pass was cancelled; they did not
// use up a retry.
type DeliveryResult struct {
	Fetched     int
	Sent        int
	Retried     int
	Failed      int
	Discarded   int
	Interrupted int
}

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	Notifications int64
	Activity      int64
}

type Dispatcher struct {
	notifications repositories.NotificationRepository
	devices       repositories.DeviceRepository
	gateways      *registry.Registry[push.Gateway]
	activity      ActivityRecorder
	audit         Auditor
	opts          Options
	now           func() time.Time
	tracer        trace.Tracer
	logger        *zap.Logger
}

func NewDispatcher(
	notifications repositories.NotificationRepository,
	devices repositories.DeviceRepository,
	gateways *registry.Registry[push.Gateway],
	activity ActivityRecorder,
	audit Auditor,
	opts Options,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		devices:       devices,
		gateways:      gateways,
		activity:      activity,
		audit:         audit,
		opts:          opts.withDefaults(),
		now:           time.Now,
		tracer:        otel.Tracer("companion-chat/notification"),
		logger:        logging.OrNop(logger),
	}
}

// WithClock overrides the time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// BatchSize is the configured default batch for ProcessPending.
func (d *Dispatcher) BatchSize() int { return d.opts.BatchSize }

type tally struct {
	sent, retried, failed, discarded, interrupted atomic.Int64
}

// ProcessPending delivers up to batchSize due PENDING notifications with
// bounded parallelism. Each outcome is applied with a compare-and-swap, so
// overlapping passes and concurrent activity never double-transition a
// notification.
func (d *Dispatcher) ProcessPending(ctx context.Context, batchSize int) (DeliveryResult, error) {
	if batchSize <= 0 {
		batchSize = d.opts.BatchSize
	}
	ctx, span := d.tracer.Start(ctx, "notification.process_pending")
	defer span.End()

	due, err := d.notifications.FetchDue(ctx, d.now(), batchSize)
	if err != nil {
		span.RecordError(err)
		return DeliveryResult{}, fmt.Errorf("fetch due notifications: %w", err)
	}

	var t tally
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, n := range due {
		g.Go(func() error {
			return d.deliver(gctx, n, &t)
		})
	}
	err = g.Wait()

	result := DeliveryResult{
		Fetched:     len(due),
		Sent:        int(t.sent.Load()),
		Retried:     int(t.retried.Load()),
		Failed:      int(t.failed.Load()),
		Discarded:   int(t.discarded.Load()),
		Interrupted: int(t.interrupted.Load()),
	}
	span.SetAttributes(
		attribute.Int("fetched", result.Fetched),
		attribute.Int("sent", result.Sent),
		attribute.Int("retried", result.Retried),
		attribute.Int("failed", result.Failed),
	)
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	if result.Fetched > 0 {
		d.logger.Info("notification delivery pass finished",
			zap.Int("fetched", result.Fetched),
			zap.Int("sent", result.Sent),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed),
			zap.Int("discarded", result.Discarded),
			zap.Int("interrupted", result.Interrupted))
	}
	return result, nil
}

// deliver sends one notification and applies the outcome. Only storage
// errors are returned; they abort the rest of the pass.
func (d *Dispatcher) deliver(ctx context.Context, n models.Notification, t *tally) error {
	if ctx.Err() != nil {
		t.interrupted.Add(1)
		return nil
	}
	gatewayName := "none"
	res := d.resolveAndSend(ctx, n, &gatewayName)
	observability.IncPushDelivery(gatewayName, res.Outcome.String())

	if ctx.Err() != nil {
		if res.Outcome != push.Delivered {
			// A failure caused by the cancelled pass says nothing about the gateway.
			t.interrupted.Add(1)
			return nil
		}
		// The push went out; record it so the next pass does not resend it.
		ctx = context.WithoutCancel(ctx)
	}

	now := d.now()
	switch res.Outcome {
	case push.Delivered:
		ok, err := d.notifications.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusSent, now)
		if err != nil {
			return fmt.Errorf("mark notification %d sent: %w", n.ID, err)
		}
		if !ok {
			t.discarded.Add(1)
			d.logger.Debug("delivered notification no longer pending", zap.Int("notification_id", n.ID))
			return d.retireStale(ctx, n, now)
		}
		t.sent.Add(1)
		observability.IncNotification("sent")
		return nil

	case push.TransientFailure:
		attempt := n.RetryCount + 1
		if attempt < d.opts.MaxRetries {
			next := now.Add(d.retryDelay(attempt))
			ok, err := d.notifications.ScheduleRetry(ctx, n.ID, n.RetryCount, next, res.Reason, now)
			if err != nil {
				return fmt.Errorf("schedule retry for notification %d: %w", n.ID, err)
			}
			if !ok {
				t.discarded.Add(1)
				return nil
			}
			t.retried.Add(1)
			observability.IncNotification("retried")
			d.logger.Info("notification delivery will be retried",
				zap.Int("notification_id", n.ID),
				zap.Int("retry_count", attempt),
				zap.Time("scheduled_at", next),
				zap.String("reason", res.Reason))
			return nil
		}
		return d.fail(ctx, n, attempt, models.FailureTransient, res.Reason, now, t)

	default:
		return d.fail(ctx, n, n.RetryCount, models.FailurePermanent, res.Reason, now, t)
	}
}

func (d *Dispatcher) resolveAndSend(ctx context.Context, n models.Notification, gatewayName *string) push.Result {
	device, err := d.devices.LatestDevice(ctx, n.UserID)
	if errors.Is(err, repositories.ErrDeviceNotFound) {
		return push.Permanent("no push destination")
	}
	if err != nil {
		return push.Transient("device lookup failed: " + err.Error())
	}

	if d.gateways == nil {
		return push.Transient("no healthy push gateway")
	}
	gateway, ok := d.gateways.Select()
	if !ok {
		return push.Transient("no healthy push gateway")
	}
	*gatewayName = gateway.Name()

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.PushTimeout)
	defer cancel()
	return gateway.Send(sendCtx, push.Destination{Token: device.Token, Platform: device.Platform}, n.Title, n.Content, metadata(n))
}

func (d *Dispatcher) fail(ctx context.Context, n models.Notification, retryCount int, kind models.FailureKind, reason string, now time.Time, t *tally) error {
	ok, err := d.notifications.MarkFailed(ctx, n.ID, n.RetryCount, retryCount, kind, reason, now)
	if err != nil {
		return fmt.Errorf("mark notification %d failed: %w", n.ID, err)
	}
	if !ok {
		t.discarded.Add(1)
		return nil
	}
	t.failed.Add(1)
	observability.IncNotification("failed")
	d.logger.Warn("notification delivery failed",
		zap.Int("notification_id", n.ID),
		zap.Int("user_id", n.UserID),
		zap.String("failure_kind", string(kind)),
		zap.Int("retry_count", retryCount),
		zap.String("reason", reason))

	if d.audit != nil {
		n.Status = models.StatusFailed
		n.RetryCount = retryCount
		n.FailureKind = &kind
		n.FailureReason = &reason
		d.audit.NotificationFailed(ctx, n)
	}
	return nil
}

// retireStale disables an idle nudge the store refused to mark SENT because
// the room saw activity after it was created. Anything else is left alone.
func (d *Dispatcher) retireStale(ctx context.Context, n models.Notification, now time.Time) error {
	if n.Type != models.NotificationInactivity {
		return nil
	}
	ok, err := d.notifications.CompareAndSetStatus(ctx, n.ID, models.StatusPending, models.StatusDisabled, now)
	if err != nil {
		return fmt.Errorf("disable stale notification %d: %w", n.ID, err)
	}
	if ok {
		observability.IncNotification("disabled")
	}
	return nil
}

// retryDelay is base * 2^attempt, capped at the configured maximum.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.RetryBaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = d.opts.RetryMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func metadata(n models.Notification) map[string]string {
	md := map[string]string{
		"notification_id": strconv.Itoa(n.ID),
		"type":            string(n.Type),
	}
	if n.ChatRoomID != nil {
		md["chat_room_id"] = strconv.Itoa(*n.ChatRoomID)
	}
	return md
}
