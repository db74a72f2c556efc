// Package matcher orchestrates candidate search and meeting-point
// suggestion on top of the intent store and the map providers.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/companion-matching/internal/candidates"
	"github.com/example/companion-matching/internal/meetingpoint"
	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/observability"
	"github.com/example/companion-matching/internal/similarity"
	"github.com/example/companion-matching/internal/storage"
)

// Publisher receives intent lifecycle events.
type Publisher interface {
	PublishIntent(ctx context.Context, ev models.IntentEvent) error
}

type Geocoder interface {
	Forward(ctx context.Context, address string) (models.Coord, error)
	Autocomplete(ctx context.Context, prefix string) ([]string, error)
}

type Config struct {
	// MaxCandidateDistance drops candidates starting farther than this many
	// meters from the requester. Zero disables the cut.
	MaxCandidateDistance float64
	// RouteOverlap attaches the routed overlap metric to every candidate.
	RouteOverlap bool
	// OverlapConcurrency bounds concurrent overlap computations.
	OverlapConcurrency int
	// ProviderTimeout bounds each geocoding call.
	ProviderTimeout time.Duration
}

type Service struct {
	Store      storage.IntentStore
	Candidates *candidates.Filter
	Similarity *similarity.Engine
	Optimizer  *meetingpoint.Optimizer
	Geocoder   Geocoder
	Publisher  Publisher // optional
	Config     Config
	Logger     *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store storage.IntentStore, filter *candidates.Filter, sim *similarity.Engine, opt *meetingpoint.Optimizer, geocoder Geocoder, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OverlapConcurrency <= 0 {
		cfg.OverlapConcurrency = 4
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = similarity.DefaultProviderTimeout
	}
	return &Service{
		Store:      store,
		Candidates: filter,
		Similarity: sim,
		Optimizer:  opt,
		Geocoder:   geocoder,
		Config:     cfg,
		Logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// FindRequest describes the requester's trip.
type FindRequest struct {
	UserID      string            `json:"user_id" validate:"required"`
	Source      *models.Coord     `json:"source" validate:"required"`
	Destination *models.Coord     `json:"destination" validate:"required"`
	Mode        models.TravelMode `json:"travel_mode" validate:"required,oneof=bus metro cab"`
	TravelTime  time.Time         `json:"travel_time" validate:"required"`
}

// FindCandidates returns the co-travel candidates for r, closest start first.
func (s *Service) FindCandidates(ctx context.Context, r FindRequest) ([]models.CandidateMatch, error) {
	if err := models.Validate(r); err != nil {
		return nil, err
	}
	start := time.Now()
	observability.CandidateSearches.Inc()

	intents, err := s.Candidates.Find(ctx, candidates.Query{UserID: r.UserID, Mode: r.Mode, TravelTime: r.TravelTime})
	if err != nil {
		return nil, err
	}

	out := make([]models.CandidateMatch, 0, len(intents))
	for _, in := range intents {
		src, dst := in.Source.Coordinates, in.Destination.Coordinates
		if src == nil || dst == nil {
			s.Logger.Debug("candidate without coordinates skipped", "intent_id", in.ID)
			continue
		}
		d := s.Similarity.GreatCircleDistance(*r.Source, *src)
		if s.Config.MaxCandidateDistance > 0 && d > s.Config.MaxCandidateDistance {
			continue
		}
		dd := s.Similarity.GreatCircleDistance(*r.Destination, *dst)
		score := s.Similarity.MatchScore(d, dd)
		out = append(out, models.CandidateMatch{
			Intent: in,
			Metrics: models.MatchMetrics{
				DistanceFromRequester: d,
				DestinationDistance:   dd,
				MatchScore:            score,
				MatchLevel:            similarity.Level(score),
			},
		})
	}

	if s.Config.RouteOverlap && len(out) > 0 {
		s.attachOverlap(ctx, r, out)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Metrics.DistanceFromRequester, out[j].Metrics.DistanceFromRequester
		if a != b {
			return a < b
		}
		return out[i].Intent.ID < out[j].Intent.ID
	})

	observability.CandidatesFound.Observe(float64(len(out)))
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	return out, nil
}

func (s *Service) attachOverlap(ctx context.Context, r FindRequest, out []models.CandidateMatch) {
	mine := similarity.Leg{From: *r.Source, To: *r.Destination}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Config.OverlapConcurrency)
	for i := range out {
		in := out[i].Intent
		theirs := similarity.Leg{From: *in.Source.Coordinates, To: *in.Destination.Coordinates}
		g.Go(func() error {
			ov := s.Similarity.RouteOverlap(gctx, mine, theirs, r.Mode)
			out[i].Metrics.RouteOverlap = ov.Value
			out[i].Metrics.RouteOverlapExact = ov.IsExact()
			return nil
		})
	}
	_ = g.Wait()
}

// SuggestRequest names the companion's intent; sources override the ones
// stored on the intents.
type SuggestRequest struct {
	UserID            string        `json:"user_id" validate:"required"`
	CompanionIntentID string        `json:"companion_intent_id" validate:"required"`
	UserSource        *models.Coord `json:"user_source,omitempty"`
	CompanionSource   *models.Coord `json:"companion_source,omitempty"`
}

// SuggestMeetingPoint proposes where the requester and the owner of the
// companion intent should meet. Anything short of bad input or a missing
// intent yields a result; optimizer failures degrade to the midpoint.
func (s *Service) SuggestMeetingPoint(ctx context.Context, r SuggestRequest) (models.MeetingPointResult, error) {
	if err := models.Validate(r); err != nil {
		return models.MeetingPointResult{}, err
	}
	comp, err := s.Store.FindByID(ctx, r.CompanionIntentID)
	if err != nil {
		return models.MeetingPointResult{}, err
	}
	mine, err := s.latestIntent(ctx, r.UserID)
	if err != nil {
		return models.MeetingPointResult{}, err
	}

	user := meetingpoint.Party{Source: r.UserSource}
	if mine != nil {
		if user.Source == nil {
			user.Source = mine.Source.Coordinates
		}
		user.Destination = mine.Destination.Coordinates
	}
	companion := meetingpoint.Party{Source: r.CompanionSource, Destination: comp.Destination.Coordinates}
	if companion.Source == nil {
		companion.Source = comp.Source.Coordinates
	}
	if err := models.ValidateCoord("user_source", user.Source); err != nil {
		return models.MeetingPointResult{}, err
	}
	if err := models.ValidateCoord("companion_source", companion.Source); err != nil {
		return models.MeetingPointResult{}, err
	}

	res, err := s.suggest(ctx, user, companion, comp.Mode)
	if err == nil {
		return res, nil
	}
	if models.IsValidation(err) {
		return models.MeetingPointResult{}, err
	}
	s.Logger.Warn("meeting point degraded", "reason", err.Error(), "companion_intent_id", r.CompanionIntentID)
	return s.Optimizer.Fallback(*user.Source, *companion.Source, err.Error()), nil
}

func (s *Service) suggest(ctx context.Context, user, companion meetingpoint.Party, mode models.TravelMode) (res models.MeetingPointResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("meeting point optimizer panicked: %v", rec)
		}
	}()
	return s.Optimizer.Suggest(ctx, user, companion, mode)
}

// latestIntent is the most recently created active intent of userID, or nil.
func (s *Service) latestIntent(ctx context.Context, userID string) (*models.TravelIntent, error) {
	mine, err := s.Store.Find(ctx, storage.IntentFilter{UserID: userID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("find intents of %s: %w", userID, err)
	}
	var latest *models.TravelIntent
	for i := range mine {
		if latest == nil || mine[i].CreatedAt.After(latest.CreatedAt) {
			latest = &mine[i]
		}
	}
	return latest, nil
}

type RefreshRequest struct {
	UserLocation      *models.Coord `json:"user_location" validate:"required"`
	CompanionLocation *models.Coord `json:"companion_location" validate:"required"`
}

func (s *Service) RefreshMeetingPoint(ctx context.Context, r RefreshRequest) (models.RefreshResult, error) {
	if err := models.Validate(r); err != nil {
		return models.RefreshResult{}, err
	}
	return s.Optimizer.Refresh(ctx, r.UserLocation, r.CompanionLocation)
}

// CreateIntent validates and stores a new active intent. Places given only
// by address are geocoded.
func (s *Service) CreateIntent(ctx context.Context, in models.TravelIntent) (*models.TravelIntent, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	var err error
	if in.Source, err = s.resolvePlace(ctx, "source", in.Source); err != nil {
		return nil, err
	}
	if in.Destination, err = s.resolvePlace(ctx, "destination", in.Destination); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	in.ID = s.newID()
	in.Active = true
	in.CreatedAt, in.UpdatedAt = now, now
	if err := s.Store.Insert(ctx, &in); err != nil {
		return nil, err
	}

	if s.Publisher != nil {
		ev := models.IntentEvent{Type: models.EventIntentCreated, Intent: in, OccurredAt: now}
		if err := s.Publisher.PublishIntent(ctx, ev); err != nil {
			s.Logger.Warn("intent event not published", "intent_id", in.ID, "error", err.Error())
		}
	}
	return &in, nil
}

// resolvePlace geocodes a place given only by address.
func (s *Service) resolvePlace(ctx context.Context, field string, p models.Place) (models.Place, error) {
	if p.Coordinates != nil {
		return p, nil
	}
	if s.Geocoder == nil {
		return p, models.Invalid(field+".coordinates", "is required")
	}
	c, err := s.Geocode(ctx, p.Address)
	if models.IsNotFound(err) {
		return p, models.Invalid(field, "address could not be geocoded")
	}
	if err != nil {
		return p, err
	}
	p.Coordinates = &c
	return p, nil
}
