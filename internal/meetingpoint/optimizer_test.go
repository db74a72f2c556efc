package meetingpoint

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/example/companion-matching/internal/fallback"
	"github.com/example/companion-matching/internal/geocache"
	"github.com/example/companion-matching/internal/models"
)

type fakePOI struct {
	cands []models.MeetingPointCandidate
	err   error
}

func (f *fakePOI) Nearby(ctx context.Context, center models.Coord, radius float64, filters []models.CategoryFilter) ([]models.MeetingPointCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.MeetingPointCandidate, len(f.cands))
	copy(out, f.cands)
	return out, nil
}

type censusPOI struct {
	fakePOI
	features models.SafetyFeatures
	err      error
}

func (c *censusPOI) SafetyFeatures(ctx context.Context, center models.Coord) (models.SafetyFeatures, error) {
	return c.features, c.err
}

type fakeGeocoder struct {
	addr string
	err  error
}

func (f fakeGeocoder) Reverse(ctx context.Context, at models.Coord) (string, error) { return f.addr, f.err }

// costByTarget returns a fixed distance for any leg ending at a known point.
type costByTarget struct {
	mu    sync.Mutex
	costs map[models.Coord]float64
}

func (c *costByTarget) RoutedDistance(ctx context.Context, a, b models.Coord, mode models.TravelMode) fallback.Result[float64] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fallback.Exact(c.costs[b])
}

var (
	userSrc = models.Coord{Lng: 77.20, Lat: 28.61}
	compSrc = models.Coord{Lng: 77.22, Lat: 28.61}
	mid     = models.Coord{Lng: 77.21, Lat: 28.61}
)

func poiAt(name, category string, lng, lat float64) models.MeetingPointCandidate {
	return models.MeetingPointCandidate{Name: name, Category: category, Coordinates: models.Coord{Lng: lng, Lat: lat}}
}

func newOptimizer(poi POIProvider, dist Distancer) *Optimizer {
	return New(poi, fakeGeocoder{addr: "Janpath, New Delhi"}, dist, geocache.New(time.Minute, time.Minute), DefaultConfig(), nil)
}

func parties() (Party, Party) {
	u, c := userSrc, compSrc
	return Party{Source: &u}, Party{Source: &c}
}

func TestSuggestEmptyPOIFallsBackToMidpoint(t *testing.T) {
	o := newOptimizer(&fakePOI{}, nil)
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != models.SourceCalculated || res.SafetyScore != 0.6 {
		t.Fatalf("got source=%s safety=%v", res.Source, res.SafetyScore)
	}
	if res.Coordinates != res.Midpoint || !res.IsExactMidpoint {
		t.Fatalf("expected the midpoint itself, got %+v", res.Coordinates)
	}
	if len(res.SafetyFactors) != 2 || res.SafetyFactors[0] != FactorCalculated || res.SafetyFactors[1] != FactorRequiresVerification {
		t.Fatalf("factors = %v", res.SafetyFactors)
	}
	if math.Abs(res.Midpoint.Lng-mid.Lng) > 1e-9 || math.Abs(res.Midpoint.Lat-mid.Lat) > 1e-9 {
		t.Fatalf("midpoint = %+v", res.Midpoint)
	}
	if res.Distances.Fairness < 0.999 {
		t.Fatalf("midpoint should be fair, got %v", res.Distances.Fairness)
	}
}

func TestSuggestPOIFailureFallsBackToMidpoint(t *testing.T) {
	o := newOptimizer(&fakePOI{err: errors.New("overpass timeout")}, nil)
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeBus)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != models.SourceCalculated || !res.Degraded {
		t.Fatalf("got %+v", res)
	}
	if len(res.Approximations) != 1 || res.Approximations[0] != "poi: overpass timeout" {
		t.Fatalf("approximations = %v", res.Approximations)
	}

	// an area with genuinely nothing around stays exact
	empty, err := newOptimizer(&fakePOI{}, nil).Suggest(context.Background(), u, c, models.ModeBus)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Degraded || len(empty.Approximations) != 0 {
		t.Fatalf("empty area reported as degraded: %v", empty.Approximations)
	}
}

// degradedRouter answers every leg with an estimate.
type degradedRouter struct{}

func (degradedRouter) RoutedDistance(ctx context.Context, a, b models.Coord, mode models.TravelMode) fallback.Result[float64] {
	return fallback.Degraded(1000.0, "osrm: 502")
}

func TestSuggestRoutingFallbackIsFlagged(t *testing.T) {
	cands := []models.MeetingPointCandidate{poiAt("Cafe A", "food", 77.211, 28.611), poiAt("Bank B", "service", 77.212, 28.612)}
	o := newOptimizer(&fakePOI{cands: cands}, degradedRouter{})
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeCab)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != models.SourcePOI || !res.Degraded {
		t.Fatalf("got source=%s degraded=%v", res.Source, res.Degraded)
	}
	// one entry however many legs degraded
	if len(res.Approximations) != 1 || res.Approximations[0] != "routing: osrm: 502" {
		t.Fatalf("approximations = %v", res.Approximations)
	}
}

func TestSuggestPicksCheapestCandidate(t *testing.T) {
	a := poiAt("Cafe A", "food", 77.211, 28.611)
	b := poiAt("Bank B", "service", 77.212, 28.612)
	c := poiAt("Library C", "public", 77.213, 28.613)
	dist := &costByTarget{costs: map[models.Coord]float64{
		a.Coordinates: 10000,
		b.Coordinates: 8000,
		c.Coordinates: 12000,
	}}
	o := newOptimizer(&fakePOI{cands: []models.MeetingPointCandidate{a, b, c}}, dist)
	u, cp := parties()
	res, err := o.Suggest(context.Background(), u, cp, models.ModeCab)
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "Bank B" {
		t.Fatalf("expected Bank B, got %s", res.Name)
	}
	if res.Source != models.SourcePOI {
		t.Fatalf("source = %s", res.Source)
	}
	if res.Address != "Janpath, New Delhi" {
		t.Fatalf("address = %q", res.Address)
	}
}

func TestSuggestTieKeepsProviderOrder(t *testing.T) {
	a := poiAt("First", "food", 77.211, 28.611)
	b := poiAt("Second", "food", 77.212, 28.612)
	dist := &costByTarget{costs: map[models.Coord]float64{a.Coordinates: 500, b.Coordinates: 500}}
	o := newOptimizer(&fakePOI{cands: []models.MeetingPointCandidate{a, b}}, dist)
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeCab)
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "First" {
		t.Fatalf("expected First, got %s", res.Name)
	}
}

func TestSuggestDestinationTermCounts(t *testing.T) {
	a := poiAt("Near sources", "food", 77.211, 28.611)
	b := poiAt("Near destination", "food", 77.212, 28.612)
	dest := models.Coord{Lng: 77.3, Lat: 28.7}
	dist := &costByDestination{dest: dest, toCand: map[models.Coord]float64{a.Coordinates: 1000, b.Coordinates: 1200},
		toDest: map[models.Coord]float64{a.Coordinates: 5000, b.Coordinates: 1000}}
	o := newOptimizer(&fakePOI{cands: []models.MeetingPointCandidate{a, b}}, dist)
	u, c := parties()
	u.Destination, c.Destination = &dest, &dest
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	// a: 2*1000 + 0.5*2*5000 = 7000, b: 2*1200 + 0.5*2*1000 = 3400
	if res.Name != "Near destination" {
		t.Fatalf("got %s", res.Name)
	}
}

type costByDestination struct {
	dest   models.Coord
	toCand map[models.Coord]float64
	toDest map[models.Coord]float64
}

func (c *costByDestination) RoutedDistance(ctx context.Context, a, b models.Coord, mode models.TravelMode) fallback.Result[float64] {
	if b == c.dest {
		return fallback.Exact(c.toDest[a])
	}
	return fallback.Exact(c.toCand[b])
}

func TestSuggestDropsDisallowedPlaces(t *testing.T) {
	cands := []models.MeetingPointCandidate{
		poiAt("Sky BAR", "food", 77.2101, 28.6101),
		poiAt("Quiet Corner", "Wine_Shop", 77.2102, 28.6102),
		poiAt("Central Library", "public", 77.215, 28.615),
	}
	o := newOptimizer(&fakePOI{cands: cands}, nil)
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "Central Library" {
		t.Fatalf("got %s", res.Name)
	}
}

func TestSuggestSafetyFromCensus(t *testing.T) {
	poi := &censusPOI{
		fakePOI:  fakePOI{cands: []models.MeetingPointCandidate{poiAt("Rajiv Chowk", "transport", 77.2101, 28.6101)}},
		features: models.SafetyFeatures{Police: 1, Shops: 500},
	}
	o := newOptimizer(poi, nil)
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.SafetyScore-0.75) > 1e-9 {
		t.Fatalf("safety = %v, want 0.75", res.SafetyScore)
	}
	want := map[string]bool{FactorPolice: true, FactorBusyArea: true, FactorPublicTransport: true, FactorNearMidpoint: true}
	for _, f := range res.SafetyFactors {
		delete(want, f)
	}
	if len(want) != 0 {
		t.Fatalf("missing factors %v in %v", want, res.SafetyFactors)
	}
	if !res.IsExactMidpoint {
		t.Fatalf("a place ~15m from the midpoint counts as the midpoint")
	}
}

func TestSuggestSafetyCensusFailureIsNeutral(t *testing.T) {
	poi := &censusPOI{
		fakePOI: fakePOI{cands: []models.MeetingPointCandidate{poiAt("Cafe", "food", 77.2101, 28.6101)}},
		err:     errors.New("503"),
	}
	o := newOptimizer(poi, nil)
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	if res.SafetyScore != 0.5 || res.SafetyFactors[0] != FactorUnverified {
		t.Fatalf("got %v %v", res.SafetyScore, res.SafetyFactors)
	}
	if !res.Degraded || res.DegradedReason != "safety: 503" {
		t.Fatalf("census failure not flagged: %v %q", res.Degraded, res.DegradedReason)
	}
}

func TestSuggestReverseGeocodeFailure(t *testing.T) {
	o := New(&fakePOI{}, fakeGeocoder{err: errors.New("429")}, nil, geocache.New(0, 0), DefaultConfig(), nil)
	u, c := parties()
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	if res.Address != UnknownAddress {
		t.Fatalf("address = %q", res.Address)
	}
	if !res.Degraded || len(res.Approximations) != 1 || res.Approximations[0] != "reverse_geocode: 429" {
		t.Fatalf("approximations = %v", res.Approximations)
	}
}

// blockingCensus and blockingGeocoder answer only when ctx ends.
type blockingCensus struct{ fakePOI }

func (b *blockingCensus) SafetyFeatures(ctx context.Context, center models.Coord) (models.SafetyFeatures, error) {
	<-ctx.Done()
	return models.SafetyFeatures{}, ctx.Err()
}

type blockingGeocoder struct{}

func (blockingGeocoder) Reverse(ctx context.Context, at models.Coord) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSuggestLooksUpAddressAndSafetyTogether(t *testing.T) {
	poi := &blockingCensus{fakePOI{cands: []models.MeetingPointCandidate{poiAt("Cafe", "food", 77.2101, 28.6101)}}}
	cfg := DefaultConfig()
	cfg.Timeout = 150 * time.Millisecond
	o := New(poi, blockingGeocoder{}, nil, geocache.New(0, 0), cfg, nil)
	u, c := parties()

	start := time.Now()
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	// sequential lookups would need two full timeouts
	if elapsed := time.Since(start); elapsed >= 280*time.Millisecond {
		t.Fatalf("address and safety ran one after the other: %s", elapsed)
	}
	if res.Address != UnknownAddress || len(res.Approximations) != 2 {
		t.Fatalf("got address=%q approximations=%v", res.Address, res.Approximations)
	}
}

// slowPOI blocks until ctx ends.
type slowPOI struct{}

func (slowPOI) Nearby(ctx context.Context, center models.Coord, radius float64, filters []models.CategoryFilter) ([]models.MeetingPointCandidate, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSuggestHonorsBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.Budget = 100 * time.Millisecond
	o := New(slowPOI{}, blockingGeocoder{}, nil, geocache.New(0, 0), cfg, nil)
	u, c := parties()

	start := time.Now()
	res, err := o.Suggest(context.Background(), u, c, models.ModeMetro)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("suggest outlived its budget: %s", elapsed)
	}
	if res.Source != models.SourceCalculated || !res.Degraded {
		t.Fatalf("got source=%s degraded=%v", res.Source, res.Degraded)
	}
}

func TestSuggestRequiresSources(t *testing.T) {
	o := newOptimizer(&fakePOI{}, nil)
	u, _ := parties()
	if _, err := o.Suggest(context.Background(), u, Party{}, models.ModeMetro); !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	bad := models.Coord{Lng: 200, Lat: 10}
	if _, err := o.Suggest(context.Background(), Party{Source: &bad}, u, models.ModeMetro); !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefreshRanksByDistance(t *testing.T) {
	cands := []models.MeetingPointCandidate{
		poiAt("far", "food", 77.218, 28.618),
		poiAt("nearest", "food", 77.2101, 28.6101),
		poiAt("middle", "food", 77.213, 28.613),
		poiAt("near", "food", 77.211, 28.611),
	}
	o := newOptimizer(&fakePOI{cands: cands}, nil)
	u, c := userSrc, compSrc
	res, err := o.Refresh(context.Background(), &u, &c)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alternatives) != 3 {
		t.Fatalf("got %d alternatives", len(res.Alternatives))
	}
	for i, want := range []string{"nearest", "near", "middle"} {
		if res.Alternatives[i].Name != want || res.Alternatives[i].Rank != i+1 {
			t.Fatalf("alternative %d = %s rank %d", i, res.Alternatives[i].Name, res.Alternatives[i].Rank)
		}
	}
}

func TestRefreshEmptyReturnsMidpoint(t *testing.T) {
	o := newOptimizer(&fakePOI{}, nil)
	u, c := userSrc, compSrc
	res, err := o.Refresh(context.Background(), &u, &c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != models.SourceFallback || len(res.Alternatives) != 1 || res.Alternatives[0].Rank != 1 {
		t.Fatalf("got %+v", res)
	}
	if res.Degraded {
		t.Fatalf("empty area reported as degraded: %v", res.Approximations)
	}

	failing := newOptimizer(&fakePOI{err: errors.New("overpass timeout")}, nil)
	res, err = failing.Refresh(context.Background(), &u, &c)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded || len(res.Approximations) != 1 {
		t.Fatalf("poi failure not flagged: %+v", res)
	}
}

func TestFallbackIsDegraded(t *testing.T) {
	o := newOptimizer(nil, nil)
	res := o.Fallback(userSrc, compSrc, "boom")
	if !res.Degraded || res.DegradedReason != "boom" || res.Source != models.SourceFallback {
		t.Fatalf("got %+v", res)
	}
	if res.Address != UnknownAddress {
		t.Fatalf("address = %q", res.Address)
	}
}
