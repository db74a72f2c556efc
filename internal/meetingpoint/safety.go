package meetingpoint

import (
	"math"

	"github.com/example/companion-matching/internal/models"
)

// Safety factor tags.
const (
	FactorPolice               = "police_nearby"
	FactorHospital             = "hospital_nearby"
	FactorWellLit              = "well_lit"
	FactorBusyArea             = "busy_area"
	FactorCommercial           = "commercial_area"
	FactorPublicTransport      = "public_transport"
	FactorPublicAmenity        = "public_amenity"
	FactorPopular              = "popular_location"
	FactorNearMidpoint         = "near_midpoint"
	FactorUnverified           = "unverified_safety"
	FactorCalculated           = "calculated_location"
	FactorRequiresVerification = "requires_verification"
)

// Score combines the feature counts into a value in [0,1] and names the
// features that contributed.
func (w SafetyWeights) Score(f models.SafetyFeatures) (float64, []string) {
	var factors []string
	add := func(count int, per, limit float64, factor string) float64 {
		if count <= 0 {
			return 0
		}
		factors = append(factors, factor)
		return math.Min(float64(count)*per, limit)
	}
	s := w.Base
	s += add(f.Police, w.PerPolice, w.MaxPolice, FactorPolice)
	s += add(f.Hospitals, w.PerHospital, w.MaxHospital, FactorHospital)
	s += add(f.StreetLamps, w.PerLamp, w.MaxLamp, FactorWellLit)
	s += add(f.Shops, w.PerShop, w.MaxShop, FactorBusyArea)
	s += add(f.Commercial, w.PerCommercial, w.MaxCommercial, FactorCommercial)
	return clamp01(s), factors
}

// candidateFactors are the tags a place earns on its own.
func candidateFactors(c models.MeetingPointCandidate) []string {
	var out []string
	switch c.Category {
	case "transport":
		out = append(out, FactorPublicTransport)
	case "public", "service":
		out = append(out, FactorPublicAmenity)
	}
	if c.Importance > popularImportance {
		out = append(out, FactorPopular)
	}
	if c.DistanceFromMidpoint < nearMidpointMeters {
		out = append(out, FactorNearMidpoint)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Fairness is min/max of the two walking distances: 1 when both parties
// walk the same, approaching 0 as one carries the whole trip.
func Fairness(a, b float64) float64 {
	lo, hi := math.Min(a, b), math.Max(a, b)
	if hi <= 0 {
		return 1
	}
	return math.Max(lo, 0) / hi
}
