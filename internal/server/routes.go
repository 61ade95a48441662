package server

import (
	"net/http"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/forecast", s.ForecastHandler)
	e.GET("/api/energy", s.EnergyForecastHandler)
	e.POST("/api/refresh", s.RefreshHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ForecastHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetForecastRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "forecast unavailable")
	}
	response, ok := res.(domain.GetForecastResponse)
	if !ok || response.HasResponseError() {
		return c.String(http.StatusServiceUnavailable, "forecast unavailable")
	}
	if response.Forecast == nil {
		return c.String(http.StatusNotFound, "no forecast computed yet")
	}
	return c.JSON(http.StatusOK, response.Forecast)
}

func (s *Server) EnergyForecastHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetEnergyForecastRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "energy forecast unavailable")
	}
	response, ok := res.(domain.GetEnergyForecastResponse)
	if !ok || response.HasResponseError() {
		return c.String(http.StatusServiceUnavailable, "energy forecast unavailable")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"wh_hours": response.WhHours,
	})
}

func (s *Server) RefreshHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.RefreshForecastRequest{}, 25*time.Second).Result()
	if err != nil {
		// a cold refresh can outlive the request, the cycle keeps running
		return c.String(http.StatusAccepted, "refresh in progress")
	}
	response, ok := res.(domain.RefreshForecastResponse)
	if !ok || response.HasResponseError() {
		return c.String(http.StatusServiceUnavailable, "refresh failed")
	}
	return c.JSON(http.StatusOK, response.Forecast)
}
