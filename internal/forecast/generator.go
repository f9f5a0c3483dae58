package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEnvironmentUnavailable is returned when the clock or random source
// cannot serve a forecast.
var ErrEnvironmentUnavailable = errors.New("environment unavailable")

// Generator produces forecasts. It is stateless apart from its injected
// collaborators and may be shared across goroutines.
type Generator struct {
	clock    Clock
	source   Source
	location *time.Location
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithLocation sets the location in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) { g.location = loc }
}

// NewGenerator returns a Generator drawing from source.
func NewGenerator(source Source, opts ...Option) (*Generator, error) {
	if source == nil {
		return nil, fmt.Errorf("random source must not be nil")
	}
	g := &Generator{
		clock:    SystemClock{},
		source:   source,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.clock == nil {
		return nil, fmt.Errorf("clock must not be nil")
	}
	if g.location == nil {
		g.location = time.UTC
	}
	return g, nil
}

// Forecast returns DaysAhead entries dated tomorrow onward in ascending
// order. It either returns all entries or an error wrapping
// ErrEnvironmentUnavailable; partial results are never returned.
func (g *Generator) Forecast(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := g.clock.Now()
	if now.IsZero() {
		return nil, fmt.Errorf("%w: clock returned zero time", ErrEnvironmentUnavailable)
	}
	today := DateOf(now.In(g.location))

	entries := make([]Entry, 0, DaysAhead)
	for i := 1; i <= DaysAhead; i++ {
		c, err := g.source.IntN(MaxCelsius - MinCelsius)
		if err != nil {
			return nil, fmt.Errorf("%w: drawing temperature: %v", ErrEnvironmentUnavailable, err)
		}
		idx, err := g.source.IntN(len(summaries))
		if err != nil {
			return nil, fmt.Errorf("%w: drawing summary: %v", ErrEnvironmentUnavailable, err)
		}
		summary := summaries[idx]
		entries = append(entries, Entry{
			Date:         today.AddDays(i),
			TemperatureC: MinCelsius + c,
			Summary:      &summary,
		})
	}
	return entries, nil
}

// CheckClock reports whether the clock can serve forecasts.
func (g *Generator) CheckClock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.clock.Now().IsZero() {
		return fmt.Errorf("%w: clock returned zero time", ErrEnvironmentUnavailable)
	}
	return nil
}

// CheckSource draws one value to confirm the random source is serviceable.
func (g *Generator) CheckSource(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := g.source.IntN(len(summaries)); err != nil {
		return fmt.Errorf("%w: %v", ErrEnvironmentUnavailable, err)
	}
	return nil
}
