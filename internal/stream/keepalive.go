// Package stream holds helpers for long-lived event streams.
package stream

import (
	"context"
	"time"

	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	// KeepAliveInterval defines how often to send keep-alive events
	// if no events are received from the source
	KeepAliveInterval = 30 * time.Second
)

// WithKeepAlive forwards every event from in and injects keepAlive() when
// nothing has been forwarded for interval. The returned channel closes when
// in closes or ctx ends.
func WithKeepAlive[T any](ctx context.Context, in <-chan T, interval time.Duration, keepAlive func() T) <-chan T {
	log := ctrllog.FromContext(ctx).WithName("keepalive")
	if interval <= 0 {
		interval = KeepAliveInterval
	}

	out := make(chan T)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.V(1).Info("Context cancelled, stopping keep-alive stream")
				return

			case event, ok := <-in:
				if !ok {
					log.V(1).Info("Source channel closed")
					return
				}

				select {
				case out <- event:
					ticker.Reset(interval)
				case <-ctx.Done():
					return
				}

			case <-ticker.C:
				select {
				case out <- keepAlive():
					log.V(1).Info("Keep-alive event sent")
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
