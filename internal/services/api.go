package services

import (
	"context"
	"net/http"
	"sort"

	"bridge/relayer/internal/models"
	"bridge/relayer/internal/stores"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusSource reports the loop state of each role.
type StatusSource interface {
	Status() map[models.Role]RoleStatus
}

// ApiService is the read-only status surface of the relayer.
type ApiService struct {
	echo    *echo.Echo
	addr    string
	cursors stores.CursorStore
	events  stores.EventLog
	status  StatusSource
}

func NewApiService(addr string, cs stores.CursorStore, el stores.EventLog, status StatusSource, gatherer prometheus.Gatherer) *ApiService {
	a := &ApiService{
		echo:    echo.New(),
		addr:    addr,
		cursors: cs,
		events:  el,
		status:  status,
	}
	a.echo.HideBanner = true
	a.echo.HidePort = true

	a.echo.GET("/healthz", a.handleHealth)
	a.echo.GET("/cursors", a.handleCursors)
	a.echo.GET("/events", a.handleListEvents)
	a.echo.GET("/events/:id", a.handleGetEvent)
	if gatherer != nil {
		a.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return a
}

func (a *ApiService) Handler() http.Handler { return a.echo }

func (a *ApiService) Start() error {
	log.Info().Str("addr", a.addr).Msg("[ApiService] listening")
	if err := a.echo.Start(a.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *ApiService) Shutdown(ctx context.Context) error {
	return a.echo.Shutdown(ctx)
}

type healthResponse struct {
	Status string                     `json:"status"`
	Roles  map[models.Role]RoleStatus `json:"roles,omitempty"`
}

func (a *ApiService) handleHealth(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	if a.status != nil {
		resp.Roles = a.status.Status()
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *ApiService) handleCursors(c echo.Context) error {
	cursors, err := stores.LoadAll(c.Request().Context(), a.cursors)
	if err != nil {
		log.Error().Err(err).Msg("[ApiService] [Cursors] load failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, cursors)
}

func (a *ApiService) handleListEvents(c echo.Context) error {
	var statuses []models.Status
	if s := c.QueryParam("status"); s != "" {
		st, ok := models.ParseStatus(s)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
		}
		statuses = append(statuses, st)
	}
	var role models.Role
	if r := c.QueryParam("role"); r != "" {
		parsed, err := models.ParseRole(r)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
		}
		role = parsed
	}

	recs, err := stores.FilterStatus(c.Request().Context(), a.events, statuses...)
	if err != nil {
		log.Error().Err(err).Msg("[ApiService] [Events] scan failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	out := make([]*models.EventRecord, 0, len(recs))
	for _, r := range recs {
		if role == "" || r.Role == role {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return c.JSON(http.StatusOK, out)
}

func (a *ApiService) handleGetEvent(c echo.Context) error {
	rec, err := a.events.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, stores.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "event not found")
	}
	if err != nil {
		log.Error().Err(err).Msg("[ApiService] [Event] get failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, rec)
}
