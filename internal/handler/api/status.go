package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/ledger"
	"TradePulse/internal/market"
	"TradePulse/internal/service/ratelimit"
	xhttp "TradePulse/pkg/http"
	xlogger "TradePulse/pkg/logger"
)

// StatusHandler exposes the read-only operational surface: health,
// per-symbol indicator and book state, and the trade history.
type StatusHandler struct {
	logger    *xlogger.Logger
	indicator *market.IndicatorEngine
	lots      *ledger.LotsIndex
	feed      repository.PriceFeed
	history   repository.TradeHistory // nil when history is disabled
	rl        *ratelimit.Limiter
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(
	logger *xlogger.Logger,
	indicator *market.IndicatorEngine,
	lots *ledger.LotsIndex,
	feed repository.PriceFeed,
	history repository.TradeHistory,
) *StatusHandler {
	return &StatusHandler{
		logger:    logger,
		indicator: indicator,
		lots:      lots,
		feed:      feed,
		history:   history,
		rl:        ratelimit.New(),
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/status/:symbol", h.Status)
	g.GET("/lots/:symbol", h.Lots)
	g.GET("/history", h.History)
}

func (h *StatusHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

type symbolStatus struct {
	Symbol            string     `json:"symbol"`
	Price             *float64   `json:"price"`
	MA                *float64   `json:"ma"`
	Threshold         float64    `json:"threshold"`
	MomentumThreshold float64    `json:"momentum_threshold"`
	IndicatorAt       *time.Time `json:"indicator_at,omitempty"`
	OpenLong          int        `json:"open_long"`
	OpenShort         int        `json:"open_short"`
}

func (h *StatusHandler) Status(c echo.Context) error {
	symbol := c.Param("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}

	out := symbolStatus{
		Symbol:    symbol,
		Price:     h.feed.Price(symbol),
		OpenLong:  h.lots.Count(symbol, models.SideLong),
		OpenShort: h.lots.Count(symbol, models.SideShort),
	}
	if state := h.indicator.State(symbol); state != nil {
		out.MA = state.CurrentMA
		out.Threshold = state.Threshold
		out.MomentumThreshold = state.MomentumThreshold
		at := state.UpdatedAt
		out.IndicatorAt = &at
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *StatusHandler) Lots(c echo.Context) error {
	symbol := c.Param("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}
	return xhttp.SuccessResponse(c, map[string][]models.Lot{
		"long":  h.lots.Open(symbol, models.SideLong),
		"short": h.lots.Open(symbol, models.SideShort),
	})
}

func (h *StatusHandler) History(c echo.Context) error {
	if h.history == nil {
		return xhttp.NotFoundResponse(c, "trade history disabled")
	}
	if !h.rl.Allow(c.RealIP()+":history", 5, 2) {
		return echo.NewHTTPError(429, "rate limited")
	}
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}
	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	trades, err := h.history.Query(c.Request().Context(), symbol, from, to, limit)
	if err != nil {
		h.logger.Error("history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}
