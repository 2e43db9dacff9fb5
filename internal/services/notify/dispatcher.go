package notify

import (
	"context"
	"sync"
	"time"

	"liquidator/internal/domain/notification"
	"liquidator/internal/metrics"
	"liquidator/pkg/logger"
)

const defaultSendTimeout = 15 * time.Second

// Dispatcher fans events out to every configured sink. Delivery is best
// effort: failures are logged and counted, never returned.
type Dispatcher struct {
	sinks   []notification.Sink
	timeout time.Duration
	log     *logger.Logger
}

func NewDispatcher(log *logger.Logger, sinks ...notification.Sink) *Dispatcher {
	if log == nil {
		log = logger.Get()
	}
	active := make([]notification.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Dispatcher{
		sinks:   active,
		timeout: defaultSendTimeout,
		log:     log.Component("notify"),
	}
}

// Sinks returns the names of the configured sinks
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Notify builds an event and delivers it to all sinks concurrently
func (d *Dispatcher) Notify(ctx context.Context, kind notification.Kind, severity notification.Severity, title string, fields map[string]interface{}) {
	d.Send(ctx, notification.NewEvent(kind, severity, title, fields))
}

// Send delivers a prepared event and waits for every sink to finish
func (d *Dispatcher) Send(ctx context.Context, event notification.Event) {
	if len(d.sinks) == 0 {
		d.log.Debugw("No notification sinks configured", "kind", event.Kind, "title", event.Title)
		return
	}

	// Alerts about a shutdown must still go out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, sink := range d.sinks {
		wg.Add(1)
		go func(sink notification.Sink) {
			defer wg.Done()

			err := sink.Notify(ctx, event)
			metrics.RecordNotification(sink.Name(), err)
			if err != nil {
				d.log.Warnw("Notification delivery failed",
					"sink", sink.Name(),
					"kind", event.Kind,
					"error", err,
				)
			}
		}(sink)
	}
	wg.Wait()
}
