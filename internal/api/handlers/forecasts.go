// Package handlers contains the HTTP handler implementations for the weather
// forecast API.
//
// This file implements the forecast handler:
//   - Five-day synthetic forecast (GET /weatherforecast)
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"weatherforecast/internal/core"
	"weatherforecast/internal/forecast"
	"weatherforecast/internal/types"
)

// ForecastGenerator produces the forecast entries served by ForecastHandler.
// *forecast.Generator satisfies it; tests inject fakes.
type ForecastGenerator interface {
	Forecast(ctx context.Context) ([]forecast.Entry, error)
}

// ForecastEntryResponse is the wire form of one forecast day.
type ForecastEntryResponse struct {
	Date         forecast.Date `json:"date"`
	TemperatureC int           `json:"temperatureC"`
	Summary      *string       `json:"summary"`
	TemperatureF int           `json:"temperatureF"`
}

// ForecastHandler maps HTTP requests to the forecast generator.
type ForecastHandler struct {
	generator ForecastGenerator
	logger    *slog.Logger
}

// NewForecastHandler creates a new ForecastHandler with the provided dependencies.
func NewForecastHandler(gen ForecastGenerator, logger *slog.Logger) *ForecastHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastHandler{
		generator: gen,
		logger:    logger,
	}
}

// RegisterRoutes mounts the forecast endpoints onto the router.
func (h *ForecastHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weatherforecast", h.HandleGetForecast)
}

// HandleGetForecast handles GET /weatherforecast. Query parameters and
// request bodies are ignored. A generation failure yields a 500 and never a
// partial list.
func (h *ForecastHandler) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.generator.Forecast(ctx)
	if err != nil {
		types.LoggerFromContext(ctx, h.logger).Error("forecast generation failed", "error", err)
		if errors.Is(err, forecast.ErrEnvironmentUnavailable) {
			err = types.NewAppError(
				types.ErrCodeInternalEnvironment,
				"forecast environment unavailable",
				err,
			)
		}
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	core.JSON(w, r, http.StatusOK, toForecastResponse(entries))
}

func toForecastResponse(entries []forecast.Entry) []ForecastEntryResponse {
	out := make([]ForecastEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := ForecastEntryResponse{
			Date:         e.Date,
			TemperatureC: e.TemperatureC,
			TemperatureF: e.TemperatureF(),
		}
		if e.Summary != nil {
			s := string(*e.Summary)
			resp.Summary = &s
		}
		out = append(out, resp)
	}
	return out
}
