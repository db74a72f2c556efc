// Package similarity measures how close two travel intents are: point
// distances, routed distances with a great-circle fallback, route overlap and
// the resulting match score.
package similarity

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/companion-matching/internal/fallback"
	"github.com/example/companion-matching/internal/geo"
	"github.com/example/companion-matching/internal/geocache"
	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/observability"
	"github.com/example/companion-matching/internal/routing"
)

const (
	DefaultProviderTimeout = 8 * time.Second
	DefaultCorridorWidth   = 100.0
)

// Router is the routing provider the engine consults.
type Router interface {
	Route(ctx context.Context, from, to models.Coord, mode models.TravelMode) (routing.Route, error)
}

// Leg is one journey from source to destination.
type Leg struct {
	From models.Coord
	To   models.Coord
}

// Trip is a routed distance and duration.
type Trip struct {
	DistanceMeters  float64
	DurationSeconds float64
}

type Engine struct {
	Router  Router
	Cache   *geocache.Cache
	Weights ScoreWeights
	// Timeout bounds every provider call.
	Timeout time.Duration
	// CorridorWidth is the buffer in meters on each side of a route.
	CorridorWidth float64
	// FallbackSpeedMps turns a great-circle distance into a duration when
	// the router is unavailable.
	FallbackSpeedMps float64
	Logger           *slog.Logger
}

func New(router Router, cache *geocache.Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Router:           router,
		Cache:            cache,
		Weights:          DefaultWeights,
		Timeout:          DefaultProviderTimeout,
		CorridorWidth:    DefaultCorridorWidth,
		FallbackSpeedMps: routing.DefaultSpeedMps,
		Logger:           logger,
	}
}

// GreatCircleDistance is the haversine distance in meters.
func (e *Engine) GreatCircleDistance(a, b models.Coord) float64 { return geo.Distance(a, b) }

// RoutedDistance is the network distance from a to b, or the great-circle
// distance flagged degraded when the router fails.
func (e *Engine) RoutedDistance(ctx context.Context, a, b models.Coord, mode models.TravelMode) fallback.Result[float64] {
	t := e.Travel(ctx, a, b, mode)
	if t.IsDegraded() {
		return fallback.Degraded(t.Value.DistanceMeters, t.Reason)
	}
	return fallback.Exact(t.Value.DistanceMeters)
}

// Travel is RoutedDistance plus the travel duration.
func (e *Engine) Travel(ctx context.Context, a, b models.Coord, mode models.TravelMode) fallback.Result[Trip] {
	if a == b {
		return fallback.Exact(Trip{})
	}
	key := geocache.Key("route", geocache.CoordParam("from", a), geocache.CoordParam("to", b), geocache.P("mode", string(mode)))
	if v, ok := e.Cache.Get(key); ok {
		if t, ok := v.(Trip); ok {
			return fallback.Exact(t)
		}
	}
	approx := func(reason string) fallback.Result[Trip] {
		d := geo.Distance(a, b)
		return fallback.Degraded(Trip{DistanceMeters: d, DurationSeconds: routing.EstimateSeconds(d, e.FallbackSpeedMps)}, reason)
	}
	if e.Router == nil {
		return approx("routing provider not configured")
	}
	r, err := e.route(ctx, a, b, mode)
	if err != nil {
		e.degrade("distance", err)
		return approx(err.Error())
	}
	t := Trip{DistanceMeters: r.DistanceMeters, DurationSeconds: r.DurationSeconds}
	e.Cache.Set(key, t, 0)
	return fallback.Exact(t)
}

// RouteOverlap is area(A∩B)/min(area(A), area(B)) of the two routes buffered
// by CorridorWidth. It is 0 and degraded when either geometry is unavailable.
func (e *Engine) RouteOverlap(ctx context.Context, a, b Leg, mode models.TravelMode) fallback.Result[float64] {
	ka, kb := legKey(a, mode), legKey(b, mode)
	if kb < ka {
		ka, kb = kb, ka
	}
	key := geocache.Key("overlap", geocache.P("a", ka), geocache.P("b", kb), geocache.FloatParam("width", e.width()))
	if v, ok := e.Cache.Float(key); ok {
		return fallback.Exact(v)
	}
	if e.Router == nil {
		return fallback.Degraded(0.0, "routing provider not configured")
	}

	var ga, gb []models.Coord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ga, err = e.geometry(gctx, a, mode)
		return err
	})
	g.Go(func() error {
		var err error
		gb, err = e.geometry(gctx, b, mode)
		return err
	})
	if err := g.Wait(); err != nil {
		e.degrade("overlap", err)
		return fallback.Degraded(0.0, err.Error())
	}
	if len(ga) < 2 || len(gb) < 2 {
		return fallback.Degraded(0.0, "route geometry unavailable")
	}
	ov := geo.CorridorOverlap(ga, gb, e.width())
	e.Cache.Set(key, ov, 0)
	return fallback.Exact(ov)
}

// MatchScore scores the pair of source and destination distances with the
// engine weights.
func (e *Engine) MatchScore(srcDist, dstDist float64) float64 {
	return e.Weights.Score(srcDist, dstDist)
}

func (e *Engine) geometry(ctx context.Context, l Leg, mode models.TravelMode) ([]models.Coord, error) {
	key := geocache.Key("geometry", geocache.P("leg", legKey(l, mode)))
	if v, ok := e.Cache.Get(key); ok {
		if g, ok := v.([]models.Coord); ok {
			return g, nil
		}
	}
	r, err := e.route(ctx, l.From, l.To, mode)
	if err != nil {
		return nil, err
	}
	e.Cache.Set(key, r.Geometry, 0)
	return r.Geometry, nil
}

func (e *Engine) route(ctx context.Context, a, b models.Coord, mode models.TravelMode) (routing.Route, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.Router.Route(ctx, a, b, mode)
}

func (e *Engine) degrade(op string, err error) {
	observability.ProviderDegradations.WithLabelValues("routing", op).Inc()
	e.Logger.Warn("routing degraded", "op", op, "reason", err.Error())
}

func (e *Engine) width() float64 {
	if e.CorridorWidth <= 0 {
		return DefaultCorridorWidth
	}
	return e.CorridorWidth
}

func legKey(l Leg, mode models.TravelMode) string {
	from := geocache.CoordParam("from", l.From).Value
	to := geocache.CoordParam("to", l.To).Value
	return from + ">" + to + "@" + string(mode)
}
