// internal/monitoring/alerts.go - alert creation with cooldown dedup
package monitoring

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
    "sitewarden/internal/database"
    "sitewarden/internal/metrics"
)

const (
    defaultDeliveryTimeout = 30 * time.Second
    defaultDeliveryQueue   = 32
)

const (
    MessageUnreachable = "target unreachable or erroring"
    MessageChanged     = "content changed since last check"
)

// Notifier delivers an alert outside the process.
type Notifier interface {
    Notify(ctx context.Context, alert *database.Alert) error
}

// Dispatcher stores alerts and hands them to the notifier in the background.
// At most cap(slots) deliveries run at once, each bounded by deliveryTimeout.
type Dispatcher struct {
    alerts   database.AlertStore
    notifier Notifier
    metrics  *metrics.Collector
    cooldown time.Duration
    now      func() time.Time

    deliveryTimeout time.Duration
    slots           chan struct{}
    pending         sync.WaitGroup
}

func NewDispatcher(alerts database.AlertStore, notifier Notifier, metricsCollector *metrics.Collector, cooldown time.Duration) *Dispatcher {
    return &Dispatcher{
        alerts:          alerts,
        notifier:        notifier,
        metrics:         metricsCollector,
        cooldown:        cooldown,
        now:             time.Now,
        deliveryTimeout: defaultDeliveryTimeout,
        slots:           make(chan struct{}, defaultDeliveryQueue),
    }
}

// SetDelivery changes the per-alert delivery timeout and how many deliveries
// may be in flight. Call it before the first Dispatch.
func (d *Dispatcher) SetDelivery(timeout time.Duration, inFlight int) {
    if timeout > 0 {
        d.deliveryTimeout = timeout
    }
    if inFlight > 0 {
        d.slots = make(chan struct{}, inFlight)
    }
}

// Wait blocks until every delivery started so far has finished. Stop
// dispatching before calling it.
func (d *Dispatcher) Wait() {
    d.pending.Wait()
}

func alertFor(status database.Status) (database.AlertType, string, bool) {
    switch status {
    case database.StatusError:
        return database.AlertError, MessageUnreachable, true
    case database.StatusChanged:
        return database.AlertChanged, MessageChanged, true
    default:
        return "", "", false
    }
}

// Dispatch turns an erro or alterado result into a stored alert, unless one of
// the same type was raised for the target within the cooldown. It returns the
// alert it created, or nil.
func (d *Dispatcher) Dispatch(ctx context.Context, result *database.CheckResult) (*database.Alert, error) {
    typ, message, ok := alertFor(result.Status)
    if !ok {
        return nil, nil
    }

    now := d.now()
    logger := logrus.WithFields(logrus.Fields{
        "target": result.TargetID,
        "type":   typ,
    })

    if d.cooldown > 0 {
        recent, err := d.alerts.RecentAlerts(ctx, result.TargetID, typ, now.Add(-d.cooldown))
        if err != nil {
            // a missed alert is worse than a duplicate one
            logger.WithError(err).Warn("Alert dedup lookup failed, emitting anyway")
        } else if len(recent) > 0 {
            logger.WithField("cooldown", d.cooldown).Debug("Alert suppressed by cooldown")
            d.metrics.RecordAlert(typ, true)
            return nil, nil
        }
    }

    alert := &database.Alert{
        TargetID:   result.TargetID,
        TargetName: result.TargetName,
        URL:        result.URL,
        Type:       typ,
        Message:    message,
        CreatedAt:  now,
    }

    var storeErr error
    if err := d.alerts.AppendAlert(ctx, alert); err != nil {
        storeErr = fmt.Errorf("failed to store alert for %s: %w", result.TargetID, err)
    }
    d.metrics.RecordAlert(typ, false)
    logger.WithField("url", result.URL).Info("Alert raised")

    d.deliver(ctx, alert, logger)

    return alert, storeErr
}

// deliver notifies without blocking the caller. The delivery keeps ctx's values
// but not its cancellation, so an alert raised just before shutdown still goes
// out within deliveryTimeout.
func (d *Dispatcher) deliver(ctx context.Context, alert *database.Alert, logger *logrus.Entry) {
    if d.notifier == nil {
        return
    }

    select {
    case d.slots <- struct{}{}:
    default:
        logger.WithField("in_flight", cap(d.slots)).Warn("Notification backlog full, dropping notification")
        return
    }

    d.pending.Add(1)
    go func() {
        defer d.pending.Done()
        defer func() { <-d.slots }()
        defer func() {
            if r := recover(); r != nil {
                logger.WithField("panic", fmt.Sprint(r)).Error("Notifier panicked")
            }
        }()

        nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deliveryTimeout)
        defer cancel()

        if err := d.notifier.Notify(nctx, alert); err != nil {
            logger.WithError(err).Error("Failed to send notification")
        }
    }()
}
