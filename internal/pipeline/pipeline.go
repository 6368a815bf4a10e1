package pipeline

import (
	"context"
	"time"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/pkg/logger"
)

// Config tunes the ingestion pipeline.
type Config struct {
	QueueCapacity int
	BatchSize     int
	FlushInterval time.Duration
	Timeframe     domrepo.Timeframe
}

// Pipeline merges stream and snapshot events into canonical metric rows.
// The bounded queue is the system's only deliberate backpressure point:
// Put never blocks, it drops on a full queue.
type Pipeline struct {
	cfg     Config
	store   domrepo.MetricStore
	log     *logger.Logger
	metrics domrepo.Metrics

	queue chan *models.RawEvent

	// lastSnapshot keeps the most recent poll event per symbol so its
	// funding/ratio/volume fields can override stream-derived values.
	lastSnapshot map[string]*models.RawEvent
}

// New creates an ingestion pipeline.
func New(cfg Config, store domrepo.MetricStore, log *logger.Logger, m domrepo.Metrics) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	return &Pipeline{
		cfg:          cfg,
		store:        store,
		log:          log,
		metrics:      m,
		queue:        make(chan *models.RawEvent, cfg.QueueCapacity),
		lastSnapshot: make(map[string]*models.RawEvent),
	}
}

// Put enqueues a raw event. It never blocks; on a full queue the event is
// dropped with a warning.
func (p *Pipeline) Put(ev *models.RawEvent) {
	if ev == nil || ev.Symbol == "" {
		return
	}
	select {
	case p.queue <- ev:
		p.metrics.RecordEvent(string(ev.Source), ev.Symbol)
		p.metrics.RecordQueueDepth(len(p.queue))
	default:
		p.metrics.RecordDrop("queue_full")
		p.log.Warn("ingest queue full, dropping event",
			logger.String("symbol", ev.Symbol),
			logger.String("source", string(ev.Source)))
	}
}

// Run consumes the queue until ctx is cancelled, flushing the buffer on
// size or time, whichever triggers first. Cancellation performs exactly one
// final flush before returning.
func (p *Pipeline) Run(ctx context.Context) {
	p.log.Info("ingestion pipeline starting",
		logger.Int("queue_capacity", p.cfg.QueueCapacity),
		logger.Int("batch_size", p.cfg.BatchSize))

	buf := make([]*models.RawEvent, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush(buf)
			p.log.Info("ingestion pipeline stopped", logger.Int("final_flush", len(buf)))
			return
		case ev := <-p.queue:
			p.metrics.RecordQueueDepth(len(p.queue))
			buf = append(buf, ev)
			if len(buf) >= p.cfg.BatchSize {
				p.flush(buf)
				buf = buf[:0]
			}
		case <-ticker.C:
			if len(buf) > 0 {
				p.flush(buf)
				buf = buf[:0]
			}
		}
	}
}

// flush transforms buffered events into merged rows and writes them,
// batch-first with a row-by-row fallback so one bad row cannot void a batch.
func (p *Pipeline) flush(buf []*models.RawEvent) {
	if len(buf) == 0 {
		return
	}
	start := time.Now()
	rows := p.transform(buf)
	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.store.UpsertBatch(ctx, rows); err != nil {
		p.metrics.RecordError("batch_write")
		p.log.Warn("batch write failed, falling back to per-row", logger.Error(err))
		written := 0
		for _, row := range rows {
			if err := p.store.Upsert(ctx, row); err != nil {
				p.metrics.RecordError("row_write")
				p.log.Warn("row write failed",
					logger.String("symbol", row.Symbol),
					logger.Error(err))
				continue
			}
			written++
		}
		p.metrics.RecordRowsWritten(written)
	} else {
		p.metrics.RecordRowsWritten(len(rows))
	}
	for _, row := range rows {
		if row.Price != nil {
			p.metrics.RecordLastPrice(row.Symbol, *row.Price)
		}
	}
	p.metrics.RecordStageLatency("pipeline_flush", time.Since(start).Seconds())
}

type rowKey struct {
	symbol string
	bucket time.Time
}

// transform folds events into at most one row per (symbol, timeframe,
// bucket). Stream last price wins over snapshot mark price; snapshot
// funding/ratio/volume override stream-derived values.
func (p *Pipeline) transform(buf []*models.RawEvent) []*models.MetricRow {
	merged := make(map[rowKey]*models.MetricRow)
	order := make([]rowKey, 0, len(buf))

	for _, ev := range buf {
		if ev.Err != "" {
			// total-failure snapshots carry nothing to persist
			continue
		}
		if ev.Source == models.SourcePoll {
			p.lastSnapshot[ev.Symbol] = ev
		}

		key := rowKey{symbol: ev.Symbol, bucket: domrepo.Bucket(ev.Timestamp.UTC(), p.cfg.Timeframe)}
		row, ok := merged[key]
		if !ok {
			row = &models.MetricRow{
				Symbol:    ev.Symbol,
				Timeframe: string(p.cfg.Timeframe),
				Timestamp: key.bucket,
			}
			merged[key] = row
			order = append(order, key)
		}
		applyEvent(row, ev)
	}

	rows := make([]*models.MetricRow, 0, len(order))
	for _, key := range order {
		row := merged[key]
		p.overlaySnapshot(row)
		rows = append(rows, row)
	}
	return rows
}

func applyEvent(row *models.MetricRow, ev *models.RawEvent) {
	if ev.LastPrice != nil {
		row.Price = ev.LastPrice
	} else if ev.MarkPrice != nil && row.Price == nil {
		row.Price = ev.MarkPrice
	}
	if ev.OpenInterest != nil {
		row.OpenInterest = ev.OpenInterest
	}
	if ev.OpenInterestUSD != nil {
		row.OpenInterestUSD = ev.OpenInterestUSD
	}
	if ev.Volume != nil {
		row.Volume = ev.Volume
	}
	if ev.Funding != nil {
		row.Funding = ev.Funding
	}
	if ev.GlobalLongShort != nil {
		row.GlobalLongShort = ev.GlobalLongShort
	}
	if ev.TopTraderAccounts != nil {
		row.TopTraderAccounts = ev.TopTraderAccounts
	}
	if ev.TopTraderPosition != nil {
		row.TopTraderPosition = ev.TopTraderPosition
	}
	if ev.BookTop != nil {
		row.BidVolume = models.Float(ev.BookTop.BidVolume)
		row.AskVolume = models.Float(ev.BookTop.AskVolume)
	}
	if ev.TradeTally != nil {
		row.TakerBuys += ev.TradeTally.TakerBuys
		row.TakerSells += ev.TradeTally.TakerSells
	}
	if len(ev.Raw) > 0 {
		row.RawJSON = ev.Raw
	}
}

// overlaySnapshot applies the symbol's most recent poll snapshot on top of
// the merged row: snapshot funding, ratios, and volume are authoritative;
// price only falls back to the snapshot mark price when no streamed last
// price was seen.
func (p *Pipeline) overlaySnapshot(row *models.MetricRow) {
	snap, ok := p.lastSnapshot[row.Symbol]
	if !ok {
		return
	}
	if snap.Funding != nil {
		row.Funding = snap.Funding
	}
	if snap.GlobalLongShort != nil {
		row.GlobalLongShort = snap.GlobalLongShort
	}
	if snap.TopTraderAccounts != nil {
		row.TopTraderAccounts = snap.TopTraderAccounts
	}
	if snap.TopTraderPosition != nil {
		row.TopTraderPosition = snap.TopTraderPosition
	}
	if snap.Volume != nil {
		row.Volume = snap.Volume
	}
	if snap.OpenInterestUSD != nil {
		row.OpenInterestUSD = snap.OpenInterestUSD
	}
	if row.Price == nil && snap.MarkPrice != nil {
		row.Price = snap.MarkPrice
	}
}

// Depth reports the current queue depth, for health reporting.
func (p *Pipeline) Depth() int { return len(p.queue) }
