// Package analytics streams per-request events to Kafka through a buffered
// collector. The archive serves identically with analytics disabled; Track
// drops events rather than slow a worker when the buffer is full.
package analytics

import (
	"context"
	"log/slog"

	"github.com/jkatz326/ngram/pkg/kafka"
)

// Collector forwards events from a buffered channel to Kafka in the
// background.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan RequestEvent
	logger   *slog.Logger
	done     chan struct{}
}

// NewCollector creates a Collector with the given buffer size.
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan RequestEvent, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the background forwarding loop. The loop exits after
// Close, or after ctx is cancelled and the remaining buffer is drained.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track queues an event for publishing. Never blocks: the event is dropped
// if the buffer is full.
func (c *Collector) Track(event RequestEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped, buffer full")
	}
}

// Close stops intake and waits for the forwarding loop to finish.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event RequestEvent) {
	err := c.producer.Publish(ctx, kafka.Event{
		Key:   string(event.Type),
		Value: event,
	})
	if err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
