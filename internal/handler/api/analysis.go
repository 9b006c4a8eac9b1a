package api

import (
	"errors"
	"strings"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/scoring"
	"TradePulse/internal/usecase"
	xhttp "TradePulse/pkg/http"
	xlogger "TradePulse/pkg/logger"
	"TradePulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// AnalysisHandler exposes the coordinator over HTTP.
type AnalysisHandler struct {
	logger *xlogger.Logger
	coord  *usecase.Coordinator
}

func NewAnalysisHandler(logger *xlogger.Logger, coord *usecase.Coordinator) *AnalysisHandler {
	return &AnalysisHandler{logger: logger, coord: coord}
}

func (h *AnalysisHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/analyze/:symbol", h.AnalyzeSymbol)
	g.POST("/analyze/batch", h.AnalyzeBatch)
	g.POST("/scan", h.Scan)
	g.GET("/signals", h.Signals)
	g.GET("/signals/analytics", h.SignalAnalytics)
	g.GET("/overview", h.Overview)
	g.GET("/usage", h.Usage)
	g.GET("/weights", h.Weights)
	g.PUT("/weights", h.UpdateWeights)
	g.PUT("/users/:user/lists/:list/:symbol", h.AddToList)
	g.DELETE("/users/:user/lists/:list/:symbol", h.RemoveFromList)
}

func (h *AnalysisHandler) Health(c echo.Context) error {
	if err := h.coord.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c,
			xhttp.InternalError("storage unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *AnalysisHandler) AnalyzeSymbol(c echo.Context) error {
	symbol := strings.TrimSpace(c.Param("symbol"))

	res, err := h.coord.AnalyzeSymbol(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("analyze symbol failed",
			xlogger.String("symbol", symbol), xlogger.Error(err))
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) AnalyzeBatch(c echo.Context) error {
	req := &models.AnalyzeBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.coord.AnalyzeBatch(c.Request().Context(), req.Symbols)
	if err != nil {
		h.logger.Error("batch analysis failed",
			xlogger.Int("symbols", len(req.Symbols)), xlogger.Error(err))
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Scan(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.coord.ScanMarket(c.Request().Context(), models.ScanFilters{
		Exchange:     req.Exchange,
		MinPrice:     req.MinPrice,
		MaxPrice:     req.MaxPrice,
		MinVolume:    req.MinVolume,
		MinChangePct: req.MinChangePct,
		Limit:        req.Limit,
	})
	if err != nil {
		h.logger.Error("market scan failed",
			xlogger.String("exchange", req.Exchange), xlogger.Error(err))
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, total, err := h.coord.QuerySignals(c.Request().Context(), models.SignalQuery{
		Symbol:     req.Symbol,
		Market:     req.Market,
		MinScore:   req.MinScore,
		Strength:   models.Strength(req.Strength),
		SortBy:     req.SortBy,
		Descending: true,
		Limit:      req.Limit,
		Offset:     req.Offset,
		ActiveOnly: req.Active,
	})
	if err != nil {
		h.logger.Error("signal query failed", xlogger.Error(err))
		return h.domainError(c, err)
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *AnalysisHandler) SignalAnalytics(c echo.Context) error {
	req := &models.AnalyticsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	since := util.ParseTimeDefault(req.Since, time.Now().AddDate(0, 0, -req.Days))
	res, err := h.coord.SignalAnalytics(c.Request().Context(), req.Market, since)
	if err != nil {
		h.logger.Error("signal analytics failed",
			xlogger.String("market", req.Market), xlogger.Error(err))
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Overview(c echo.Context) error {
	req := &models.OverviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.coord.GetMarketOverview(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("market overview failed", xlogger.Error(err))
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Usage(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.coord.GetAPIUsageStats())
}

func (h *AnalysisHandler) Weights(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.coord.Weights())
}

func (h *AnalysisHandler) UpdateWeights(c echo.Context) error {
	req := &models.WeightsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	w := scoring.Weights{
		Technical: req.Technical,
		Sentiment: req.Sentiment,
		Liquidity: req.Liquidity,
	}
	if err := h.coord.UpdateWeights(w); err != nil {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, h.coord.Weights())
}

func (h *AnalysisHandler) AddToList(c echo.Context) error {
	return h.toggleList(c, true)
}

func (h *AnalysisHandler) RemoveFromList(c echo.Context) error {
	return h.toggleList(c, false)
}

func (h *AnalysisHandler) toggleList(c echo.Context, add bool) error {
	userID := c.Param("user")
	list := c.Param("list")
	symbol := c.Param("symbol")

	err := h.coord.ToggleUserList(c.Request().Context(), userID, list, symbol, add)
	if err != nil {
		return h.domainError(c, err)
	}
	return xhttp.NoContentResponse(c)
}

// domainError translates the domain error taxonomy into HTTP responses.
func (h *AnalysisHandler) domainError(c echo.Context, err error) error {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return xhttp.BadRequestResponse(c,
			xhttp.NewAppError("ERR_VALIDATION", verr.Field, verr.Message, 400))
	}

	var aerr *models.ExternalAPIError
	if errors.As(err, &aerr) {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_UPSTREAM", "", aerr.Error(), 502).WithError(aerr))
	}

	var derr *models.DatabaseError
	if errors.As(err, &derr) {
		return xhttp.AppErrorResponse(c,
			xhttp.InternalError("storage unavailable").WithError(derr))
	}

	return xhttp.InternalServerErrorResponse(c)
}

var _ xhttp.Handler = (*AnalysisHandler)(nil)
