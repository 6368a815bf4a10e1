package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/pkg/backoff"
	"QuantBoard/pkg/logger"
)

// OnEvent receives every decoded frame. It must be cheap; heavy work belongs
// behind the ingestion queue.
type OnEvent func(*models.RawEvent) error

// Config tunes the stream manager.
type Config struct {
	URL               string
	Suffixes          []string
	MaxStreamsPerConn int
	ReadTimeout       time.Duration
	StopTimeout       time.Duration
	// MaxDispatch bounds outstanding callback goroutines across all
	// connections. Frames beyond the bound are shed.
	MaxDispatch int
}

// Manager multiplexes websocket connections over symbol stream groups,
// reconnecting each with exponential backoff.
type Manager struct {
	cfg     Config
	log     *logger.Logger
	metrics domrepo.Metrics
	policy  backoff.Policy

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	dispatch chan struct{}
}

// NewManager creates a stream manager. Defaults mirror the production feed
// limits: 40 streams per connection, 60s read timeout.
func NewManager(cfg Config, log *logger.Logger, m domrepo.Metrics) *Manager {
	if cfg.MaxStreamsPerConn <= 0 {
		cfg.MaxStreamsPerConn = 40
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = time.Second
	}
	if cfg.MaxDispatch <= 0 {
		cfg.MaxDispatch = 4096
	}
	if len(cfg.Suffixes) == 0 {
		cfg.Suffixes = []string{"ticker", "markPrice", "openInterest", "depth@100ms", "aggTrade"}
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		policy:   backoff.Default,
		dispatch: make(chan struct{}, cfg.MaxDispatch),
	}
}

// Start opens one connection per stream-token group and begins dispatching
// decoded frames to onEvent. Calling Start while running is a warn no-op.
func (m *Manager) Start(ctx context.Context, symbols []string, onEvent OnEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.log.Warn("stream manager already running, start ignored")
		return nil
	}
	if onEvent == nil {
		return fmt.Errorf("stream: onEvent callback is required")
	}

	tokens := m.tokens(symbols)
	if len(tokens) == 0 {
		return fmt.Errorf("stream: no symbols to subscribe")
	}
	groups := groupTokens(tokens, m.cfg.MaxStreamsPerConn)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	m.log.Info("stream manager starting",
		logger.Int("connections", len(groups)),
		logger.Int("streams", len(tokens)),
		logger.Int("symbols", len(symbols)))

	var wg sync.WaitGroup
	for _, grp := range groups {
		wg.Add(1)
		go func(grp []string) {
			defer wg.Done()
			m.runConnection(runCtx, grp, onEvent)
		}(grp)
	}
	done := m.done
	go func() {
		wg.Wait()
		close(done)
	}()
	return nil
}

// Stop signals all connections to close and waits up to StopTimeout.
// Calling Stop while idle is a warn no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		m.log.Warn("stream manager not running, stop ignored")
		return
	}
	m.cancel()
	select {
	case <-m.done:
	case <-time.After(m.cfg.StopTimeout):
		m.log.Warn("stream manager stop timed out, abandoning connections")
	}
	m.running = false
	m.log.Info("stream manager stopped")
}

// IsRunning reports whether any connection loops are active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// runConnection owns one websocket for its stream group: connect, read until
// closed or errored, reconnect with backoff. Only cancellation exits.
func (m *Manager) runConnection(ctx context.Context, tokens []string, onEvent OnEvent) {
	url := combinedURL(m.cfg.URL, tokens)
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			m.metrics.RecordError("stream_connect")
			m.log.Warn("stream connect failed",
				logger.Int("streams", len(tokens)),
				logger.Error(err))
			if m.policy.Sleep(ctx, attempt) != nil {
				return
			}
			attempt++
			continue
		}

		m.log.Info("stream connected", logger.Int("streams", len(tokens)))
		attempt = 0

		err = m.readLoop(ctx, conn, onEvent)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		m.metrics.RecordError("stream_read")
		m.log.Warn("stream disconnected, reconnecting", logger.Error(err))
		if m.policy.Sleep(ctx, attempt) != nil {
			return
		}
		attempt++
	}
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, onEvent OnEvent) error {
	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := Decode(raw)
		if err != nil {
			// unparseable frames drop silently
			continue
		}
		m.dispatchEvent(ev, onEvent)
	}
}

// dispatchEvent hands the event to the callback without awaiting completion.
// Outstanding dispatches are bounded; under connection flood excess frames
// are shed rather than queued.
func (m *Manager) dispatchEvent(ev *models.RawEvent, onEvent OnEvent) {
	select {
	case m.dispatch <- struct{}{}:
	default:
		m.metrics.RecordDrop("dispatch_saturated")
		return
	}
	go func() {
		defer func() { <-m.dispatch }()
		if err := onEvent(ev); err != nil {
			m.metrics.RecordError("stream_callback")
			m.log.Warn("stream callback failed",
				logger.String("symbol", ev.Symbol),
				logger.Error(err))
		}
	}()
}

func (m *Manager) tokens(symbols []string) []string {
	out := make([]string, 0, len(symbols)*len(m.cfg.Suffixes))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		base := strings.ToLower(normalizeSymbol(s))
		for _, suf := range m.cfg.Suffixes {
			out = append(out, base+"@"+suf)
		}
	}
	return out
}

// combinedURL builds the combined-stream dial URL. The endpoint expects
// /stream?streams=a/b/c; a base that already carries a query is used as is,
// so a bare endpoint in config cannot produce a malformed URL.
func combinedURL(base string, tokens []string) string {
	if !strings.Contains(base, "?") {
		base = strings.TrimSuffix(base, "/") + "?streams="
	}
	return base + strings.Join(tokens, "/")
}

func groupTokens(tokens []string, perConn int) [][]string {
	var groups [][]string
	for len(tokens) > perConn {
		groups = append(groups, tokens[:perConn])
		tokens = tokens[perConn:]
	}
	if len(tokens) > 0 {
		groups = append(groups, tokens)
	}
	return groups
}
