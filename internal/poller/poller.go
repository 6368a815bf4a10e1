package poller

import (
	"context"
	"sync"
	"time"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/pkg/backoff"
	"QuantBoard/pkg/logger"
)

// Sink receives a completed per-symbol snapshot event.
type Sink func(*models.RawEvent)

// Poller pulls wide per-symbol snapshots on a jittered interval under a
// concurrency limiter. It never terminates except via cancellation; an
// unexpected loop failure restarts the whole loop after a fixed cooldown.
type Poller struct {
	client      *Client
	log         *logger.Logger
	metrics     domrepo.Metrics
	concurrency int
	cooldown    backoff.Policy
}

// New creates a snapshot poller.
func New(client *Client, log *logger.Logger, m domrepo.Metrics, concurrency int, cooldown time.Duration) *Poller {
	if concurrency <= 0 {
		concurrency = 10
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	return &Poller{
		client:      client,
		log:         log,
		metrics:     m,
		concurrency: concurrency,
		cooldown:    backoff.Fixed(cooldown),
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, symbols []string, sink Sink, interval time.Duration) {
	p.log.Info("snapshot poller starting",
		logger.Int("symbols", len(symbols)),
		logger.Duration("interval", interval))

	for {
		if err := p.loop(ctx, symbols, sink, interval); err != nil {
			if ctx.Err() != nil {
				p.log.Info("snapshot poller cancelled")
				return
			}
			p.metrics.RecordError("poller_loop")
			p.log.Error("snapshot poller loop failed, cooling down", logger.Error(err))
			if p.cooldown.Sleep(ctx, 0) != nil {
				return
			}
		}
	}
}

func (p *Poller) loop(ctx context.Context, symbols []string, sink Sink, interval time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &loopPanic{val: r}
		}
	}()

	for {
		start := time.Now()
		p.pollOnce(ctx, symbols, sink)
		p.metrics.RecordStageLatency("poll_cycle", time.Since(start).Seconds())

		t := time.NewTimer(backoff.JitterInterval(interval, 0.1))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// pollOnce fetches every symbol under the concurrency limiter and pushes
// each result to the sink as it completes.
func (p *Poller) pollOnce(ctx context.Context, symbols []string, sink Sink) {
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()

			ev := p.client.FetchSymbol(ctx, sym)
			if ev.Err != "" {
				p.metrics.RecordError("poll_symbol")
				p.log.Warn("snapshot fetch failed",
					logger.String("symbol", sym),
					logger.String("error", ev.Err))
			}
			sink(ev)
		}(sym)
	}
	wg.Wait()
}

type loopPanic struct{ val interface{} }

func (e *loopPanic) Error() string { return "poller: loop panic" }
