package metrics

import (
	"context"

	"github.com/kilianp07/solarcharge/core/events"
	coremetrics "github.com/kilianp07/solarcharge/core/metrics"
	"github.com/kilianp07/solarcharge/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards command and
// tick events to the sink's optional recorders. It stops when the context is
// canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe("metrics-collector")
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.CommandEvent:
					if r, ok := sink.(coremetrics.CommandRecorder); ok {
						errStr := ""
						if e.Err != nil {
							errStr = e.Err.Error()
						}
						_ = r.RecordCommand(coremetrics.CommandEvent{
							TickID:     e.TickID,
							ConsumerID: e.ConsumerID,
							Action:     e.Action,
							Success:    e.Err == nil,
							Latency:    e.Latency,
							Error:      errStr,
							Time:       e.Time,
						})
					}
				case events.TickEvent:
					if r, ok := sink.(coremetrics.TickRecorder); ok {
						_ = r.RecordTick(coremetrics.TickEvent{
							TickID:    e.TickID,
							Duration:  e.Duration,
							Consumers: e.Decisions,
							Errors:    e.Errors,
							Time:      e.Started,
						})
					}
				}
			}
		}
	}()
}
