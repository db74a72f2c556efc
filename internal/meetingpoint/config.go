package meetingpoint

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/routing"
)

const (
	DefaultRadiusMeters      = 1000.0
	DefaultRefreshTopN       = 3
	DefaultDestinationWeight = 0.5
	DefaultConcurrency       = 8
	DefaultProviderTimeout   = 8 * time.Second
	// DefaultBudget bounds a whole Suggest or Refresh call. It must stay
	// below the HTTP write timeout.
	DefaultBudget = 9 * time.Second

	// exactMidpointMeters is how close a POI must be to count as the midpoint.
	exactMidpointMeters = 100.0
	nearMidpointMeters  = 500.0
	popularImportance   = 0.7

	// UnknownAddress is used when the address cannot be resolved.
	UnknownAddress = "Address not available"
)

var DefaultDisallowedKeywords = []string{"bar", "liquor", "nightclub", "alcohol", "brewery", "wine"}

// DefaultCategories are public places where strangers can safely meet.
var DefaultCategories = []models.CategoryFilter{
	{Tag: "amenity", Values: []string{"cafe", "bank", "library", "community_centre", "post_office"}},
	{Tag: "shop", Values: []string{"mall", "department_store", "supermarket"}},
	{Tag: "public_transport", Values: []string{"station", "stop_position"}},
	{Tag: "railway", Values: []string{"station"}},
	{Tag: "tourism", Values: []string{"information"}},
}

// SafetyWeights turn feature counts into a score. Each Per* increment is
// multiplied by its count and capped at the matching Max*.
type SafetyWeights struct {
	Base          float64 `mapstructure:"base"`
	PerPolice     float64 `mapstructure:"per_police"`
	MaxPolice     float64 `mapstructure:"max_police"`
	PerHospital   float64 `mapstructure:"per_hospital"`
	MaxHospital   float64 `mapstructure:"max_hospital"`
	PerLamp       float64 `mapstructure:"per_lamp"`
	MaxLamp       float64 `mapstructure:"max_lamp"`
	PerShop       float64 `mapstructure:"per_shop"`
	MaxShop       float64 `mapstructure:"max_shop"`
	PerCommercial float64 `mapstructure:"per_commercial"`
	MaxCommercial float64 `mapstructure:"max_commercial"`
	// Neutral is reported when no census of the area is available.
	Neutral float64 `mapstructure:"neutral"`
	// Calculated is reported for a bare midpoint with no POI behind it.
	Calculated float64 `mapstructure:"calculated"`
}

var DefaultSafetyWeights = SafetyWeights{
	Base:          0.5,
	PerPolice:     0.1,
	MaxPolice:     0.3,
	PerHospital:   0.05,
	MaxHospital:   0.15,
	PerLamp:       0.02,
	MaxLamp:       0.1,
	PerShop:       0.03,
	MaxShop:       0.15,
	PerCommercial: 0.02,
	MaxCommercial: 0.1,
	Neutral:       0.5,
	Calculated:    0.6,
}

// Validate rejects weights that would let the score fall as a count grows
// or report fixed scores outside [0,1].
func (w SafetyWeights) Validate() []error {
	var errs []error
	for name, v := range map[string]float64{
		"per_police": w.PerPolice, "max_police": w.MaxPolice,
		"per_hospital": w.PerHospital, "max_hospital": w.MaxHospital,
		"per_lamp": w.PerLamp, "max_lamp": w.MaxLamp,
		"per_shop": w.PerShop, "max_shop": w.MaxShop,
		"per_commercial": w.PerCommercial, "max_commercial": w.MaxCommercial,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("meeting.safety.%s must be >= 0, got %v", name, v))
		}
	}
	for name, v := range map[string]float64{"base": w.Base, "neutral": w.Neutral, "calculated": w.Calculated} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("meeting.safety.%s must be within [0,1], got %v", name, v))
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

type Config struct {
	RadiusMeters       float64
	RefreshTopN        int
	DisallowedKeywords []string
	Categories         []models.CategoryFilter
	Safety             SafetyWeights
	// DestinationWeight scales the onward legs in the selection cost.
	DestinationWeight float64
	// WalkingPace is in meters per minute.
	WalkingPace float64
	Concurrency int
	// Timeout bounds each provider call, Budget the whole suggestion.
	Timeout time.Duration
	Budget  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RadiusMeters:       DefaultRadiusMeters,
		RefreshTopN:        DefaultRefreshTopN,
		DisallowedKeywords: DefaultDisallowedKeywords,
		Categories:         DefaultCategories,
		Safety:             DefaultSafetyWeights,
		DestinationWeight:  DefaultDestinationWeight,
		WalkingPace:        routing.WalkingMetersPerMinute,
		Concurrency:        DefaultConcurrency,
		Timeout:            DefaultProviderTimeout,
		Budget:             DefaultBudget,
	}
}

// withDefaults fills zero fields so a partially populated Config works.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RadiusMeters <= 0 {
		c.RadiusMeters = d.RadiusMeters
	}
	if c.RefreshTopN <= 0 {
		c.RefreshTopN = d.RefreshTopN
	}
	if c.DisallowedKeywords == nil {
		c.DisallowedKeywords = d.DisallowedKeywords
	}
	if len(c.Categories) == 0 {
		c.Categories = d.Categories
	}
	if c.Safety == (SafetyWeights{}) {
		c.Safety = d.Safety
	}
	if c.DestinationWeight <= 0 {
		c.DestinationWeight = d.DestinationWeight
	}
	if c.WalkingPace <= 0 {
		c.WalkingPace = d.WalkingPace
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Budget <= 0 {
		c.Budget = d.Budget
	}
	return c
}
