package meetingpoint

import (
	"math"
	"testing"

	"github.com/example/companion-matching/internal/models"
)

func TestSafetyScoreBase(t *testing.T) {
	s, factors := DefaultSafetyWeights.Score(models.SafetyFeatures{})
	if s != 0.5 || len(factors) != 0 {
		t.Fatalf("got %v %v", s, factors)
	}
}

func TestSafetyScoreCapsEachFeature(t *testing.T) {
	s, _ := DefaultSafetyWeights.Score(models.SafetyFeatures{Shops: 500})
	if math.Abs(s-0.65) > 1e-9 {
		t.Fatalf("500 shops = %v, want 0.65", s)
	}
	s, _ = DefaultSafetyWeights.Score(models.SafetyFeatures{Police: 10})
	if math.Abs(s-0.8) > 1e-9 {
		t.Fatalf("10 police = %v, want 0.8", s)
	}
}

func TestSafetyScoreClamped(t *testing.T) {
	s, factors := DefaultSafetyWeights.Score(models.SafetyFeatures{Police: 9, Hospitals: 9, StreetLamps: 99, Shops: 500, Commercial: 40})
	if s != 1 {
		t.Fatalf("got %v, want 1", s)
	}
	if len(factors) != 5 {
		t.Fatalf("factors = %v", factors)
	}
}

func TestFairness(t *testing.T) {
	if Fairness(0, 0) != 1 {
		t.Fatalf("Fairness(0,0) should be 1")
	}
	if Fairness(300, 600) != Fairness(600, 300) {
		t.Fatalf("Fairness not symmetric")
	}
	if got := Fairness(300, 600); got != 0.5 {
		t.Fatalf("Fairness(300,600) = %v", got)
	}
	if got := Fairness(0, 600); got != 0 {
		t.Fatalf("Fairness(0,600) = %v", got)
	}
	for _, pair := range [][2]float64{{1, 2}, {1000, 1}, {5, 5}} {
		f := Fairness(pair[0], pair[1])
		if f < 0 || f > 1 {
			t.Fatalf("Fairness(%v) = %v out of range", pair, f)
		}
	}
}

func TestSafetyWeightsValidate(t *testing.T) {
	if errs := DefaultSafetyWeights.Validate(); len(errs) != 0 {
		t.Fatalf("defaults rejected: %v", errs)
	}
	w := DefaultSafetyWeights
	w.PerPolice, w.MaxCommercial, w.Calculated = -0.1, -0.1, 2
	if errs := w.Validate(); len(errs) != 3 {
		t.Fatalf("got %d errors: %v", len(errs), errs)
	}
}
