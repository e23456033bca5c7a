package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/pkg/logger"
)

// EventPipeline sits between stream workers and the event sinks (history, brokers).
// Workers enqueue without blocking; one goroutine drains the buffer into every sink.
type EventPipeline struct {
	sinks      []domrepo.EventSink
	metrics    domrepo.Metrics
	log        *logger.Logger
	bufSize    int
	maxRetries int
	backoffMin time.Duration
	backoffMax time.Duration
	timeout    time.Duration

	bufCh   chan *models.TriggerEvent
	stopCh  chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool
}

type PipelineOption func(*EventPipeline)

// WithBufferSize sets how many events may wait for the drain goroutine.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithSinkRetry sets per-sink retry attempts and the capped backoff between them.
func WithSinkRetry(max int, backoffMin, backoffMax time.Duration) PipelineOption {
	return func(p *EventPipeline) {
		if max >= 0 {
			p.maxRetries = max
		}
		if backoffMin > 0 {
			p.backoffMin = backoffMin
		}
		if backoffMax >= p.backoffMin {
			p.backoffMax = backoffMax
		}
	}
}

// WithSinkTimeout bounds one publish call.
func WithSinkTimeout(d time.Duration) PipelineOption {
	return func(p *EventPipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewEventPipeline(sinks []domrepo.EventSink, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		sinks:      sinks,
		metrics:    metrics,
		log:        log,
		bufSize:    1024,
		maxRetries: 3,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		timeout:    5 * time.Second,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.TriggerEvent, p.bufSize)
	return p
}

// Enqueue hands ev to the drain goroutine. It never blocks; a full buffer drops the event.
func (p *EventPipeline) Enqueue(ev *models.TriggerEvent) bool {
	if ev == nil {
		return false
	}
	if len(p.sinks) == 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.metrics.RecordError("pipeline_closed")
		return false
	}
	select {
	case p.bufCh <- ev:
		return true
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return false
	}
}

// Start launches the drain goroutine.
func (p *EventPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	names := make([]string, 0, len(p.sinks))
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	p.log.Info("event pipeline started", logger.Strings("sinks", names), logger.Int("buffer", p.bufSize))

	go p.drain(context.WithoutCancel(ctx))
}

// Stop flushes what is buffered, waits for the drain goroutine up to ctx, then closes the sinks.
// On timeout the sinks are closed later, once the drain goroutine exits.
func (p *EventPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	close(p.stopCh)
	if started {
		select {
		case <-p.done:
		case <-ctx.Done():
			p.log.Warn("event pipeline stop timed out", logger.Int("pending", len(p.bufCh)))
			// sinks stay open until the drain goroutine is done with them
			go func() {
				<-p.done
				_ = p.closeSinks()
			}()
			return fmt.Errorf("event pipeline stop: %w", ctx.Err())
		}
	}
	return p.closeSinks()
}

func (p *EventPipeline) closeSinks() error {
	var firstErr error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			p.log.Warn("close event sink", logger.String("sink", s.Name()), logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Pending returns the number of buffered events.
func (p *EventPipeline) Pending() int { return len(p.bufCh) }

func (p *EventPipeline) drain(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case ev := <-p.bufCh:
			p.deliver(ctx, ev)
		case <-p.stopCh:
			for {
				select {
				case ev := <-p.bufCh:
					p.deliver(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// deliver publishes ev to each sink in turn with capped retries.
func (p *EventPipeline) deliver(ctx context.Context, ev *models.TriggerEvent) {
	start := time.Now()
	for _, s := range p.sinks {
		backoff := p.backoffMin
		for attempt := 0; ; attempt++ {
			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			err := s.PublishTrigger(pctx, ev)
			cancel()
			if err == nil {
				break
			}
			if attempt >= p.maxRetries {
				p.metrics.RecordError("pipeline_sink_" + s.Name())
				p.log.Error("event sink publish failed", logger.String("sink", s.Name()), logger.Int64("event_id", ev.ID),
					logger.Int("attempts", attempt+1), logger.Error(err))
				break
			}
			if !p.sleep(backoff) {
				// stopping: one attempt per remaining event
				p.metrics.RecordError("pipeline_sink_" + s.Name())
				break
			}
			if backoff < p.backoffMax {
				backoff *= 2
				if backoff > p.backoffMax {
					backoff = p.backoffMax
				}
			}
		}
	}
	p.metrics.RecordLatency("pipeline_deliver", time.Since(start).Seconds())
}

func (p *EventPipeline) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stopCh:
		return false
	}
}
