package sse

import (
	"log/slog"
	"sync"
	"time"
)

// KeepAliveStrategy defines how keep-alive pings are sent while a turn runs
type KeepAliveStrategy interface {
	// Start begins sending keep-alive pings using the provided writer.
	// The returned channel closes once the strategy has stopped, either
	// through Stop or after a failed write.
	Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{}

	// Stop terminates the keep-alive mechanism. Safe to call more than once.
	Stop()
}

// KeepAliveWriter writes a keep-alive message (an SSE comment).
type KeepAliveWriter interface {
	WriteKeepAlive() error
}

// TickerKeepAlive sends keep-alive pings at fixed intervals
type TickerKeepAlive struct {
	interval time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewTickerKeepAlive creates a ticker-based keep-alive strategy
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start implements KeepAliveStrategy.
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	stopped := make(chan struct{})
	ticker := time.NewTicker(k.interval)

	go func() {
		defer close(stopped)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					logger.Warn("keep-alive write failed, stopping",
						"error", err,
					)
					return
				}
			case <-k.done:
				return
			}
		}
	}()

	return stopped
}

// Stop implements KeepAliveStrategy.
func (k *TickerKeepAlive) Stop() {
	k.once.Do(func() { close(k.done) })
}
