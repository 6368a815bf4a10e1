package api

import (
	"time"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/internal/usecase"
	xhttp "QuantBoard/pkg/http"
	xlogger "QuantBoard/pkg/logger"
	"QuantBoard/pkg/util"

	"github.com/labstack/echo/v4"
)

// StreamStatus reports whether the websocket ingest is connected.
type StreamStatus interface {
	IsRunning() bool
}

// QueueStatus reports the ingestion queue backlog.
type QueueStatus interface {
	Depth() int
}

// MarketEchoHandler exposes the read accessors over Echo. All endpoints are
// latest-N reads; writes only ever come from the ingest loops.
type MarketEchoHandler struct {
	logger  *xlogger.Logger
	reader  *usecase.MarketReader
	symbols []string
	stream  StreamStatus
	queue   QueueStatus
}

func NewMarketEchoHandler(logger *xlogger.Logger, reader *usecase.MarketReader, symbols []string, stream StreamStatus, queue QueueStatus) *MarketEchoHandler {
	return &MarketEchoHandler{logger: logger, reader: reader, symbols: symbols, stream: stream, queue: queue}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/metrics/:symbol", h.Metrics)
	g.GET("/features/:symbol", h.Features)
	g.GET("/signals/:symbol", h.Signals)
	g.GET("/confluence/:symbol", h.Confluence)
	g.GET("/regime/:symbol", h.Regime)
	g.GET("/context/:symbol", h.Context)
	g.GET("/summary", h.Summary)
	g.GET("/health", h.Healthz)
}

func (h *MarketEchoHandler) Metrics(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)

	res, err := h.reader.History(c.Request().Context(), req.Symbol, req.N, tf)
	if err != nil {
		h.logger.Error("metrics read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if req.From != "" || req.To != "" {
		from := xhttp.ParseTimeDefault(req.From, time.Time{})
		to := xhttp.ParseTimeDefault(req.To, time.Now().UTC())
		from, to = util.AlignFromTo(from, to, string(tf))
		res = filterByRange(res, from, to)
	}
	return xhttp.SuccessResponse(c, res)
}

// filterByRange keeps rows with from <= ts <= to.
func filterByRange(rows []*models.MetricRow, from, to time.Time) []*models.MetricRow {
	out := rows[:0]
	for _, r := range rows {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (h *MarketEchoHandler) Features(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.reader.LatestFeatures(c.Request().Context(), req.Symbol, req.N)
	if err != nil {
		h.logger.Error("features read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Signals(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.reader.LatestSignals(c.Request().Context(), req.Symbol, req.N)
	if err != nil {
		h.logger.Error("signals read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Confluence(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.reader.LatestConfluence(c.Request().Context(), req.Symbol, req.N)
	if err != nil {
		h.logger.Error("confluence read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Regime(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.reader.LatestRegimes(c.Request().Context(), req.Symbol, req.N)
	if err != nil {
		h.logger.Error("regime read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Context(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.reader.LatestContexts(c.Request().Context(), req.Symbol, req.N)
	if err != nil {
		h.logger.Error("context read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Summary(c echo.Context) error {
	req := &models.SummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)

	res, err := h.reader.Summary(c.Request().Context(), h.symbols, tf)
	if err != nil {
		h.logger.Error("summary read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Healthz(c echo.Context) error {
	if err := h.reader.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("storage unreachable"))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":      "ok",
		"stream":      h.stream.IsRunning(),
		"queue_depth": h.queue.Depth(),
	})
}
