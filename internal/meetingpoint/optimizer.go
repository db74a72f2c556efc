// Package meetingpoint proposes a place for two parties to meet between their
// starting points.
package meetingpoint

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/companion-matching/internal/fallback"
	"github.com/example/companion-matching/internal/geo"
	"github.com/example/companion-matching/internal/geocache"
	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/observability"
	"github.com/example/companion-matching/internal/routing"
)

// POIProvider lists public places around a point.
type POIProvider interface {
	Nearby(ctx context.Context, center models.Coord, radius float64, filters []models.CategoryFilter) ([]models.MeetingPointCandidate, error)
}

// SafetyFeatureProvider is optionally implemented by a POIProvider that can
// count safety-relevant features.
type SafetyFeatureProvider interface {
	SafetyFeatures(ctx context.Context, center models.Coord) (models.SafetyFeatures, error)
}

type ReverseGeocoder interface {
	Reverse(ctx context.Context, at models.Coord) (string, error)
}

// Distancer is satisfied by *similarity.Engine.
type Distancer interface {
	RoutedDistance(ctx context.Context, a, b models.Coord, mode models.TravelMode) fallback.Result[float64]
}

// Party is one side of the meeting. Destination is optional.
type Party struct {
	Source      *models.Coord
	Destination *models.Coord
}

type Optimizer struct {
	POI       POIProvider
	Geocoder  ReverseGeocoder
	Distances Distancer
	Cache     *geocache.Cache
	Config    Config
	Logger    *slog.Logger
}

func New(poi POIProvider, geocoder ReverseGeocoder, distances Distancer, cache *geocache.Cache, cfg Config, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{POI: poi, Geocoder: geocoder, Distances: distances, Cache: cache, Config: cfg.withDefaults(), Logger: logger}
}

// Suggest picks the meeting point for user and companion. Only missing or
// invalid source coordinates produce an error; provider trouble degrades to
// the calculated midpoint.
func (o *Optimizer) Suggest(ctx context.Context, user, companion Party, mode models.TravelMode) (models.MeetingPointResult, error) {
	if err := models.ValidateCoord("user_source", user.Source); err != nil {
		return models.MeetingPointResult{}, err
	}
	if err := models.ValidateCoord("companion_source", companion.Source); err != nil {
		return models.MeetingPointResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.Config.Budget)
	defer cancel()
	mid := geo.Midpoint(*user.Source, *companion.Source)
	var approx approximations

	cands := o.nearby(ctx, mid, &approx)
	if len(cands) == 0 {
		res := o.calculated(ctx, mid, *user.Source, *companion.Source, &approx)
		approx.mark(&res)
		observability.MeetingPoints.WithLabelValues(res.Source).Inc()
		return res, nil
	}

	best := cands[o.cheapest(ctx, cands, []Party{user, companion}, mode, &approx)]

	// address and safety are independent lookups at the chosen point
	at := best.Coordinates
	var (
		g       errgroup.Group
		address = best.Address
		score   float64
		factors []string
	)
	if address == "" {
		g.Go(func() error {
			address = o.address(ctx, at, &approx)
			return nil
		})
	}
	g.Go(func() error {
		score, factors = o.safety(ctx, at, &approx)
		return nil
	})
	_ = g.Wait()
	best.Address = address
	factors = append(factors, candidateFactors(best)...)

	res := models.MeetingPointResult{
		MeetingPointCandidate: best,
		SafetyScore:           score,
		SafetyFactors:         factors,
		Distances:             o.distances(*user.Source, *companion.Source, best.Coordinates),
		Midpoint:              mid,
		IsExactMidpoint:       best.DistanceFromMidpoint <= exactMidpointMeters,
		Source:                models.SourcePOI,
	}
	approx.mark(&res)
	observability.MeetingPoints.WithLabelValues(res.Source).Inc()
	return res, nil
}

// Refresh returns the top alternatives around the midpoint ranked by
// distance from it. With nothing nearby the midpoint itself is returned as
// the single alternative.
func (o *Optimizer) Refresh(ctx context.Context, userLoc, companionLoc *models.Coord) (models.RefreshResult, error) {
	if err := models.ValidateCoord("user_location", userLoc); err != nil {
		return models.RefreshResult{}, err
	}
	if err := models.ValidateCoord("companion_location", companionLoc); err != nil {
		return models.RefreshResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.Config.Budget)
	defer cancel()
	mid := geo.Midpoint(*userLoc, *companionLoc)
	var approx approximations

	cands := o.nearby(ctx, mid, &approx)
	if len(cands) == 0 {
		c := midpointCandidate(mid, o.address(ctx, mid, &approx))
		c.Rank = 1
		reasons := approx.list()
		return models.RefreshResult{
			Midpoint:       mid,
			Alternatives:   []models.MeetingPointCandidate{c},
			Source:         models.SourceFallback,
			Degraded:       len(reasons) > 0,
			Approximations: reasons,
		}, nil
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].DistanceFromMidpoint < cands[j].DistanceFromMidpoint })
	if len(cands) > o.Config.RefreshTopN {
		cands = cands[:o.Config.RefreshTopN]
	}
	for i := range cands {
		cands[i].Rank = i + 1
	}
	reasons := approx.list()
	return models.RefreshResult{Midpoint: mid, Alternatives: cands, Source: models.SourcePOI, Degraded: len(reasons) > 0, Approximations: reasons}, nil
}

// Fallback builds a degraded midpoint answer without consulting any
// provider.
func (o *Optimizer) Fallback(user, companion models.Coord, reason string) models.MeetingPointResult {
	mid := geo.Midpoint(user, companion)
	res := models.MeetingPointResult{
		MeetingPointCandidate: midpointCandidate(mid, UnknownAddress),
		SafetyScore:           o.Config.Safety.Calculated,
		SafetyFactors:         []string{FactorCalculated, FactorRequiresVerification},
		Distances:             o.distances(user, companion, mid),
		Midpoint:              mid,
		IsExactMidpoint:       true,
		Source:                models.SourceFallback,
		Degraded:              true,
		DegradedReason:        reason,
	}
	observability.MeetingPoints.WithLabelValues(res.Source).Inc()
	return res
}

func (o *Optimizer) calculated(ctx context.Context, mid, user, companion models.Coord, approx *approximations) models.MeetingPointResult {
	return models.MeetingPointResult{
		MeetingPointCandidate: midpointCandidate(mid, o.address(ctx, mid, approx)),
		SafetyScore:           o.Config.Safety.Calculated,
		SafetyFactors:         []string{FactorCalculated, FactorRequiresVerification},
		Distances:             o.distances(user, companion, mid),
		Midpoint:              mid,
		IsExactMidpoint:       true,
		Source:                models.SourceCalculated,
	}
}

func midpointCandidate(mid models.Coord, address string) models.MeetingPointCandidate {
	return models.MeetingPointCandidate{
		Coordinates: mid,
		Name:        "Calculated Midpoint",
		Address:     address,
		Category:    "midpoint",
	}
}

// nearby queries the POI provider and drops disallowed places. A failure is
// recorded in approx and read as "nothing nearby".
func (o *Optimizer) nearby(ctx context.Context, mid models.Coord, approx *approximations) []models.MeetingPointCandidate {
	if o.POI == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, o.Config.Timeout)
	defer cancel()
	found, err := o.POI.Nearby(cctx, mid, o.Config.RadiusMeters, o.Config.Categories)
	if err != nil {
		observability.ProviderDegradations.WithLabelValues("poi", "nearby").Inc()
		o.Logger.Warn("poi lookup degraded", "reason", err.Error(), "midpoint", mid.String())
		approx.add("poi", err.Error())
		return nil
	}
	out := make([]models.MeetingPointCandidate, 0, len(found))
	for _, c := range found {
		if o.disallowed(c) {
			continue
		}
		c.DistanceFromMidpoint = geo.Distance(mid, c.Coordinates)
		out = append(out, c)
	}
	return out
}

func (o *Optimizer) disallowed(c models.MeetingPointCandidate) bool {
	name, cat := strings.ToLower(c.Name), strings.ToLower(c.Category)
	for _, kw := range o.Config.DisallowedKeywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(name, kw) || strings.Contains(cat, kw) {
			return true
		}
	}
	return false
}

// cheapest returns the index of the candidate minimizing
// Σ routed(source, c) + DestinationWeight × Σ routed(c, destination).
// The first of equally cheap candidates wins.
func (o *Optimizer) cheapest(ctx context.Context, cands []models.MeetingPointCandidate, parties []Party, mode models.TravelMode, approx *approximations) int {
	type leg struct {
		from, to models.Coord
		weight   float64
	}
	legsOf := func(c models.MeetingPointCandidate) []leg {
		var ls []leg
		for _, p := range parties {
			ls = append(ls, leg{from: *p.Source, to: c.Coordinates, weight: 1})
			if p.Destination != nil {
				ls = append(ls, leg{from: c.Coordinates, to: *p.Destination, weight: o.Config.DestinationWeight})
			}
		}
		return ls
	}

	parts := make([][]float64, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Config.Concurrency)
	for i, c := range cands {
		legs := legsOf(c)
		parts[i] = make([]float64, len(legs))
		for j, l := range legs {
			g.Go(func() error {
				parts[i][j] = o.distance(gctx, l.from, l.to, mode, approx) * l.weight
				return nil
			})
		}
	}
	_ = g.Wait()

	best, bestCost := 0, 0.0
	for i := range parts {
		cost := 0.0
		for _, v := range parts[i] {
			cost += v
		}
		if i == 0 || cost < bestCost {
			best, bestCost = i, cost
		}
	}
	return best
}

func (o *Optimizer) distance(ctx context.Context, a, b models.Coord, mode models.TravelMode, approx *approximations) float64 {
	if o.Distances == nil {
		return geo.Distance(a, b)
	}
	r := o.Distances.RoutedDistance(ctx, a, b, mode)
	if r.IsDegraded() {
		approx.add("routing", r.Reason)
	}
	return r.Value
}

func (o *Optimizer) safety(ctx context.Context, at models.Coord, approx *approximations) (float64, []string) {
	sp, ok := o.POI.(SafetyFeatureProvider)
	if !ok {
		return o.Config.Safety.Neutral, []string{FactorUnverified}
	}
	key := geocache.Key("safety", geocache.CoordParam("at", at))
	if v, ok := o.Cache.Get(key); ok {
		if f, ok := v.(models.SafetyFeatures); ok {
			return o.Config.Safety.Score(f)
		}
	}
	cctx, cancel := context.WithTimeout(ctx, o.Config.Timeout)
	defer cancel()
	f, err := sp.SafetyFeatures(cctx, at)
	if err != nil {
		observability.ProviderDegradations.WithLabelValues("poi", "safety").Inc()
		o.Logger.Warn("safety census degraded", "reason", err.Error())
		approx.add("safety", err.Error())
		return o.Config.Safety.Neutral, []string{FactorUnverified}
	}
	o.Cache.Set(key, f, 0)
	return o.Config.Safety.Score(f)
}

// address never fails; an unresolved point gets UnknownAddress.
func (o *Optimizer) address(ctx context.Context, at models.Coord, approx *approximations) string {
	if o.Geocoder == nil {
		return UnknownAddress
	}
	key := geocache.Key("reverse", geocache.CoordParam("at", at))
	if s, ok := o.Cache.String(key); ok {
		return s
	}
	cctx, cancel := context.WithTimeout(ctx, o.Config.Timeout)
	defer cancel()
	s, err := o.Geocoder.Reverse(cctx, at)
	if err != nil || s == "" {
		observability.ProviderDegradations.WithLabelValues("geocoding", "reverse").Inc()
		reason := "empty result"
		if err != nil {
			reason = err.Error()
			o.Logger.Warn("reverse geocode degraded", "reason", reason)
		}
		approx.add("reverse_geocode", reason)
		return UnknownAddress
	}
	o.Cache.Set(key, s, 0)
	return s
}

func (o *Optimizer) distances(user, companion, at models.Coord) models.PartyDistances {
	du, dc := geo.Distance(user, at), geo.Distance(companion, at)
	return models.PartyDistances{
		UserDistance:         du,
		CompanionDistance:    dc,
		UserWalkMinutes:      routing.WalkMinutes(du, o.Config.WalkingPace),
		CompanionWalkMinutes: routing.WalkMinutes(dc, o.Config.WalkingPace),
		Fairness:             Fairness(du, dc),
	}
}

// approximations collects, per provider, why answers were replaced by
// estimates while one result was built. Unconfigured providers are not
// recorded; only failing ones are.
type approximations struct {
	mu      sync.Mutex
	reasons []string
}

func (a *approximations) add(provider, reason string) {
	r := provider + ": " + reason
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, have := range a.reasons {
		if have == r {
			return
		}
	}
	a.reasons = append(a.reasons, r)
}

// list returns the reasons sorted, or nil.
func (a *approximations) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.reasons) == 0 {
		return nil
	}
	out := append([]string(nil), a.reasons...)
	sort.Strings(out)
	return out
}

func (a *approximations) mark(res *models.MeetingPointResult) {
	res.Approximations = a.list()
	if len(res.Approximations) > 0 {
		res.Degraded = true
		res.DegradedReason = strings.Join(res.Approximations, "; ")
	}
}
