package server

import (
	"net/http"
	"time"

	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type componentStatus struct {
	Healthy bool   `json:"healthy"`
	State   string `json:"state,omitempty"`
}

type healthCheckResponse struct {
	Healthy    bool                       `json:"healthy"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, healthCheckResponse{Healthy: false})
	}
	response, ok := res.(domain.ActorHealthResponse)
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, healthCheckResponse{Healthy: false})
	}
	body := healthCheckResponse{
		Healthy:    response.Healthy,
		Components: make(map[string]componentStatus, len(response.Components)),
	}
	for _, comp := range response.Components {
		body.Components[comp.Id] = componentStatus{Healthy: comp.Healthy, State: comp.State}
	}
	status := http.StatusOK
	if !response.Healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, body)
}
