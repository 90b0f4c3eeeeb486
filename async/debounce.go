package async

import (
	"context"
	"time"
)

// Debounce collapses bursts of events arriving on eventsChan into a single
// handler invocation once no further events have arrived for interval. It
// returns when ctx is cancelled.
func Debounce(ctx context.Context, interval time.Duration, eventsChan <-chan interface{}, handler func(event interface{})) {
	var lastEvent interface{}
	timer := time.NewTimer(interval)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventsChan:
			lastEvent = ev
			if !timer.Stop() && armed {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(interval)
			armed = true
		case <-timer.C:
			if armed {
				handler(lastEvent)
				armed = false
			}
		}
	}
}
